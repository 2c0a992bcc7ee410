package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

func newUpdateCmd(globals *Globals) *cobra.Command {
	var (
		all     bool
		version string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "update [slug]",
		Short: "Update installed skills to their latest versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := ""
			if len(args) == 1 {
				slug = args[0]
			}
			if slug == "" && !all {
				return fmt.Errorf("name a skill or pass --all")
			}

			return runUpdate(cmd.Context(), globals, slug, version, force)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "update every installed skill")
	cmd.Flags().StringVar(&version, "version", "", "update to a specific version")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite local modifications")

	return cmd
}

func runUpdate(ctx context.Context, globals *Globals, slug, version string, force bool) error {
	lock, err := LoadLockfile(globals.Workdir)
	if err != nil {
		return fmt.Errorf("reading lockfile: %w", err)
	}

	var slugs []string
	if slug != "" {
		if _, ok := lock.Skills[slug]; !ok {
			return fmt.Errorf("%s is not installed in this workdir", slug)
		}
		slugs = []string{slug}
	} else {
		for s := range lock.Skills {
			slugs = append(slugs, s)
		}
		sort.Strings(slugs)
	}

	client := NewClient(globals.Registry, globals.Config.Token)

	failures := 0
	for _, s := range slugs {
		if err := updateOne(ctx, globals, client, s, version, force); err != nil {
			fmt.Println(errorStyle.Render("  ✗ ") + s + ": " + err.Error())
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d update(s) failed", failures)
	}

	return nil
}

func updateOne(
	ctx context.Context,
	globals *Globals,
	client *Client,
	slug, pinVersion string,
	force bool,
) error {
	skillDir := filepath.Join(globals.Workdir, globals.InstallDir, slug)

	local, err := HashSkillDir(skillDir)
	if err != nil {
		return fmt.Errorf("hashing installed folder: %w", err)
	}

	res, err := client.Resolve(ctx, slug, local.Fingerprint)
	if err != nil {
		return err
	}
	if res.LatestVersion == nil {
		return fmt.Errorf("registry has no versions for %s", slug)
	}
	latest := res.LatestVersion.Version

	target := pinVersion
	if target == "" {
		target = latest
	}

	if res.Match != nil {
		// Local folder is a pristine published version.
		if !semverLess(res.Match.Version, target) {
			fmt.Printf("%s %s@%s is up to date\n", successStyle.Render("✓"), slug, res.Match.Version)

			return nil
		}
	} else if !force {
		// Local folder matches no published version: it was modified.
		if globals.NoInput {
			return fmt.Errorf("local changes detected; re-run with --force to overwrite")
		}
		answer := promptLine(
			warnStyle.Render("local changes detected in "+slug) + " — overwrite? [y/N] ",
		)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			return fmt.Errorf("skipped: local changes kept")
		}
	}

	return runInstall(ctx, globals, slug, target, true)
}

// semverLess reports a < b, falling back to string inequality when
// either side fails to parse.
func semverLess(a, b string) bool {
	va, errA := semver.StrictNewVersion(a)
	vb, errB := semver.StrictNewVersion(b)
	if errA != nil || errB != nil {
		return a != b
	}

	return va.LessThan(vb)
}
