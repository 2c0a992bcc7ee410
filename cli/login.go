package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(globals *Globals) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token for the configured registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), globals, token)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token (prompted when omitted)")

	return cmd
}

func runLogin(ctx context.Context, globals *Globals, token string) error {
	if token == "" {
		if globals.NoInput {
			return fmt.Errorf("pass --token when running with --no-input")
		}
		if globals.Site != "" {
			fmt.Println("Create a token at " + globals.Site + "/settings/tokens")
		}
		token = strings.TrimSpace(promptLine("Token: "))
	}
	if token == "" {
		return fmt.Errorf("no token provided")
	}

	// Validate before persisting.
	client := NewClient(globals.Registry, token)
	user, err := client.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("token rejected by %s: %w", globals.Registry, err)
	}

	globals.Config.Registry = globals.Registry
	globals.Config.Token = token
	if err := SaveConfig(globals.ConfigPath, globals.Config); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	who := user.Handle
	if who == "" {
		who = user.DisplayName
	}
	fmt.Println(successStyle.Render("✓ logged in as ") + who)

	return nil
}

func newLogoutCmd(globals *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if globals.Config.Token == "" {
				fmt.Println("Not logged in.")

				return nil
			}

			globals.Config.Token = ""
			if err := SaveConfig(globals.ConfigPath, globals.Config); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Println("Logged out.")

			return nil
		},
	}
}

func newWhoamiCmd(globals *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context(), globals)
		},
	}
}

func runWhoami(ctx context.Context, globals *Globals) error {
	if globals.Config.Token == "" {
		return fmt.Errorf("not logged in; run clawdhub login")
	}

	client := NewClient(globals.Registry, globals.Config.Token)
	user, err := client.Whoami(ctx)
	if err != nil {
		return err
	}

	if user.Handle != "" {
		fmt.Printf("%s (%s)\n", user.Handle, user.DisplayName)
	} else {
		fmt.Println(user.DisplayName)
	}

	return nil
}
