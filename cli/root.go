// Package cli implements the clawdhub command line client: publishing,
// installing, and syncing skill bundles against a registry.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Globals carries the resolved global flags and persisted config for
// every subcommand. It is built once in the root PersistentPreRun and
// passed explicitly rather than living in package state.
type Globals struct {
	Workdir    string
	InstallDir string
	Site       string
	Registry   string
	NoInput    bool

	Config     Config
	ConfigPath string
}

// DefaultRegistry is used when neither flag, env, nor config name one.
const DefaultRegistry = "https://clawdhub.com"

func NewRootCmd() *cobra.Command {
	globals := &Globals{}

	root := &cobra.Command{
		Use:           "clawdhub",
		Short:         "Publish, install, and sync agent skills",
		Long:          "clawdhub is the command line client for the skill registry: it publishes skill folders, installs published versions, and keeps local workdirs in sync.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initGlobals(cmd, globals)
		},
	}

	flags := root.PersistentFlags()
	flags.String("workdir", "", "work directory (default: current directory)")
	flags.String("dir", "skills", "install directory below the workdir")
	flags.String("site", "", "web site base URL")
	flags.String("registry", "", "registry base URL")
	flags.Bool("no-input", false, "never prompt; fail instead of asking")

	root.AddCommand(
		newLoginCmd(globals),
		newLogoutCmd(globals),
		newWhoamiCmd(globals),
		newSearchCmd(globals),
		newExploreCmd(globals),
		newInstallCmd(globals),
		newUpdateCmd(globals),
		newListCmd(globals),
		newPublishCmd(globals),
		newSyncCmd(globals),
		newDeleteCmd(globals),
		newUndeleteCmd(globals),
	)

	return root
}

func initGlobals(cmd *cobra.Command, globals *Globals) error {
	flags := cmd.Flags()

	cfg, cfgPath, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	globals.Config = cfg
	globals.ConfigPath = cfgPath

	globals.Workdir, _ = flags.GetString("workdir")
	if globals.Workdir == "" {
		globals.Workdir = os.Getenv("CLAWDHUB_WORKDIR")
	}
	if globals.Workdir == "" {
		globals.Workdir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
	}

	globals.InstallDir, _ = flags.GetString("dir")
	globals.NoInput, _ = flags.GetBool("no-input")

	globals.Site, _ = flags.GetString("site")
	if globals.Site == "" {
		globals.Site = os.Getenv("CLAWDHUB_SITE")
	}

	globals.Registry, _ = flags.GetString("registry")
	if globals.Registry == "" {
		globals.Registry = os.Getenv("CLAWDHUB_REGISTRY")
	}
	if globals.Registry == "" {
		globals.Registry = cfg.Registry
	}
	if globals.Registry == "" {
		globals.Registry = DefaultRegistry
	}

	return nil
}

// Execute runs the root command; any failure exits 1.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
