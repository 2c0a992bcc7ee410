package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd(globals *Globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Soft-delete a published skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteToggle(cmd.Context(), globals, args[0], yes, true)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")

	return cmd
}

func newUndeleteCmd(globals *Globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "undelete <slug>",
		Short: "Restore a soft-deleted skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteToggle(cmd.Context(), globals, args[0], yes, false)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")

	return cmd
}

func runDeleteToggle(ctx context.Context, globals *Globals, slug string, yes, deleting bool) error {
	verb := "delete"
	if !deleting {
		verb = "restore"
	}

	if !yes {
		if globals.NoInput {
			return fmt.Errorf("pass --yes when running with --no-input")
		}
		answer := promptLine(fmt.Sprintf("Really %s %s? [y/N] ", verb, slug))
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted.")

			return nil
		}
	}

	client := NewClient(globals.Registry, globals.Config.Token)

	var err error
	if deleting {
		err = client.Delete(ctx, slug)
	} else {
		err = client.Undelete(ctx, slug)
	}
	if err != nil {
		return err
	}

	if deleting {
		fmt.Println(successStyle.Render("✓ deleted ") + slug + subtleStyle.Render(" (restore with clawdhub undelete)"))
	} else {
		fmt.Println(successStyle.Render("✓ restored ") + slug)
	}

	return nil
}
