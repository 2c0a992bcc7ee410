package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSyncCmd(globals *Globals) *cobra.Command {
	var (
		roots        []string
		all          bool
		dryRun       bool
		bump         string
		changelogMsg string
		tags         string
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Publish local skill folders that changed since their last published version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), globals, syncOptions{
				roots:       roots,
				all:         all,
				dryRun:      dryRun,
				bump:        bump,
				changelog:   changelogMsg,
				tags:        splitTags(tags),
				concurrency: concurrency,
			})
		},
	}

	cmd.Flags().StringArrayVar(&roots, "root", nil, "additional skill roots (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "select every actionable skill without prompting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan and exit without publishing")
	cmd.Flags().StringVar(&bump, "bump", "patch", "version bump for updates: patch, minor, or major")
	cmd.Flags().StringVar(&changelogMsg, "changelog", "", "changelog for every published version")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags to set on published versions")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultConcurrency, "parallel registry requests (1-32)")

	return cmd
}

type syncOptions struct {
	roots       []string
	all         bool
	dryRun      bool
	bump        string
	changelog   string
	tags        []string
	concurrency int
}

func runSync(ctx context.Context, globals *Globals, opts syncOptions) error {
	if opts.concurrency < minConcurrency || opts.concurrency > maxConcurrency {
		return fmt.Errorf("concurrency must be between %d and %d", minConcurrency, maxConcurrency)
	}

	client := NewClient(globals.Registry, globals.Config.Token)

	roots := DiscoverRoots(globals, opts.roots)
	if len(roots) == 0 {
		return fmt.Errorf("no skill roots found; pass --root or create %s", globals.InstallDir)
	}

	skills, skippedDuplicates, err := ScanRoots(roots)
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %d skill folder(s) across %d root(s)...\n", len(skills), len(roots))

	plan, err := BuildPlan(ctx, client, skills, skippedDuplicates, opts.concurrency)
	if err != nil {
		return err
	}

	printPlan(plan)

	// Dry run reports the plan even when there is nothing to do; the
	// synced listing above is part of its output.
	if opts.dryRun {
		fmt.Println(subtleStyle.Render("Dry run: nothing was published."))

		return nil
	}

	actionable := plan.Actionable()
	if len(actionable) == 0 {
		fmt.Println(successStyle.Render("Everything is in sync."))

		return nil
	}

	selected := actionable
	if !opts.all && !globals.NoInput {
		selected, err = promptSelection(actionable)
		if err != nil {
			return err
		}
	}
	if len(selected) == 0 {
		fmt.Println("Nothing selected.")

		return nil
	}

	changelogText := opts.changelog
	if changelogText == "" && !globals.NoInput && !opts.all {
		changelogText = promptLine("Changelog (empty for auto-generated): ")
	}

	failures := 0
	for _, item := range selected {
		version, err := NextVersion(item, opts.bump)
		if err != nil {
			fmt.Println(errorStyle.Render("  ✗ ") + item.Skill.Slug + ": " + err.Error())
			failures++

			continue
		}

		if err := publishItem(ctx, client, item, version, changelogText, opts.tags); err != nil {
			fmt.Println(errorStyle.Render("  ✗ ") + item.Skill.Slug + ": " + err.Error())
			failures++

			continue
		}
		fmt.Printf("%s %s@%s\n", successStyle.Render("  ✓ published"), item.Skill.Slug, version)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d publish(es) failed", failures, len(selected))
	}

	return nil
}

func publishItem(
	ctx context.Context,
	client *Client,
	item PlanItem,
	version, changelogText string,
	tags []string,
) error {
	fmt.Printf("Publishing %s@%s (%d files)\n", headingStyle.Render(item.Skill.Slug), version, len(item.Skill.Files))

	_, err := client.Publish(ctx, PublishOptions{
		Slug:        item.Skill.Slug,
		DisplayName: item.Skill.DisplayName,
		Version:     version,
		Changelog:   changelogText,
		Tags:        tags,
	}, item.Skill.Files, func(path string) {
		fmt.Println(subtleStyle.Render("    ↑ " + path))
	})

	return err
}

func printPlan(plan *Plan) {
	if synced := plan.Synced(); len(synced) > 0 {
		slugs := make([]string, 0, len(synced))
		for _, item := range synced {
			slugs = append(slugs, fmt.Sprintf("%s@%s", item.Skill.Slug, item.MatchedVersion))
		}
		fmt.Printf("%s %s\n", subtleStyle.Render("In sync:"), strings.Join(slugs, ", "))
	}

	for _, item := range plan.Actionable() {
		switch item.Class {
		case ClassNew:
			fmt.Printf("  %s %s\n", newStyle.Render("new     "), item.Skill.Slug)
		case ClassUpdate:
			fmt.Printf("  %s %s (latest %s)\n", warnStyle.Render("update  "), item.Skill.Slug, item.LatestVersion)
		}
	}

	for _, dir := range plan.SkippedDuplicates {
		fmt.Printf("  %s %s\n", subtleStyle.Render("skipped duplicate slug:"), dir)
	}
}

// promptSelection shows a numbered multi-select with every actionable
// item preselected; an empty answer accepts them all.
func promptSelection(items []PlanItem) ([]PlanItem, error) {
	fmt.Println(headingStyle.Render("Select skills to publish") + subtleStyle.Render(" (comma-separated numbers, empty = all):"))
	for i, item := range items {
		fmt.Printf("  [%d] %s (%s)\n", i+1, item.Skill.Slug, item.Class)
	}

	answer := promptLine("> ")
	if strings.TrimSpace(answer) == "" {
		return items, nil
	}

	var selected []PlanItem
	for _, token := range strings.Split(answer, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil || idx < 1 || idx > len(items) {
			return nil, fmt.Errorf("invalid selection %q", strings.TrimSpace(token))
		}
		selected = append(selected, items[idx-1])
	}

	return selected, nil
}

func promptLine(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')

	return strings.TrimRight(line, "\r\n")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return tags
}
