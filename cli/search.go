package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(globals *Globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), globals, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results (1-50)")

	return cmd
}

func runSearch(ctx context.Context, globals *Globals, query string, limit int) error {
	client := NewClient(globals.Registry, globals.Config.Token)

	results, err := client.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")

		return nil
	}

	for _, r := range results {
		fmt.Printf("%s %s %s\n",
			headingStyle.Render(r.Slug),
			subtleStyle.Render("@"+r.Version),
			r.Summary,
		)
	}

	return nil
}

// exploreSummaryWidth is the display truncation for explore output,
// ellipsis included.
const exploreSummaryWidth = 50

func newExploreCmd(globals *Globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Browse popular skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 || limit > 50 {
				return fmt.Errorf("limit must be between 1 and 50")
			}

			return runExplore(cmd.Context(), globals, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum skills to list (1-50)")

	return cmd
}

func runExplore(ctx context.Context, globals *Globals, limit int) error {
	client := NewClient(globals.Registry, globals.Config.Token)

	skills, err := client.ListSkills(ctx, "trending", limit)
	if err != nil {
		return err
	}
	if len(skills) == 0 {
		fmt.Println("The registry is empty.")

		return nil
	}

	for _, s := range skills {
		fmt.Printf("%-24s %s %s\n",
			headingStyle.Render(s.Slug),
			subtleStyle.Render(fmt.Sprintf("↓%d ★%d", s.Stats.Downloads, s.Stats.Stars)),
			truncateSummary(s.Summary, exploreSummaryWidth),
		)
	}

	return nil
}

// truncateSummary caps a summary at width runes, the trailing ellipsis
// counting against the width.
func truncateSummary(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	return string(runes[:width-1]) + "…"
}
