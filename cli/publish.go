package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrey167/molthub/registry"
)

func newPublishCmd(globals *Globals) *cobra.Command {
	var (
		slug         string
		name         string
		version      string
		changelogMsg string
		tags         string
		forkOf       string
	)

	cmd := &cobra.Command{
		Use:   "publish <path>",
		Short: "Publish a single skill folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), globals, publishCmdOptions{
				path:      args[0],
				slug:      slug,
				name:      name,
				version:   version,
				changelog: changelogMsg,
				tags:      splitTags(tags),
				forkOf:    forkOf,
			})
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "registry slug (default: derived from the folder name)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: frontmatter name)")
	cmd.Flags().StringVar(&version, "version", "", "version to publish (default: bump of the registry latest)")
	cmd.Flags().StringVar(&changelogMsg, "changelog", "", "changelog text (empty = auto-generated)")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.Flags().StringVar(&forkOf, "fork-of", "", "upstream skill as slug or slug@version")

	return cmd
}

type publishCmdOptions struct {
	path      string
	slug      string
	name      string
	version   string
	changelog string
	tags      []string
	forkOf    string
}

func runPublish(ctx context.Context, globals *Globals, opts publishCmdOptions) error {
	local, err := HashSkillDir(opts.path)
	if err != nil {
		return err
	}

	if opts.slug != "" {
		local.Slug = opts.slug
	}
	if !registry.ValidSlug(local.Slug) {
		return fmt.Errorf("invalid slug %q; pass --slug", local.Slug)
	}
	if opts.name != "" {
		local.DisplayName = opts.name
	}

	client := NewClient(globals.Registry, globals.Config.Token)

	version := opts.version
	if version == "" {
		item := PlanItem{Skill: *local, Class: ClassNew}
		if info, err := client.GetSkill(ctx, local.Slug); err == nil && info.LatestVersion != nil {
			item.Class = ClassUpdate
			item.LatestVersion = info.LatestVersion.Version
		} else if err != nil && !IsNotFound(err) {
			return err
		}
		version, err = NextVersion(item, "patch")
		if err != nil {
			return err
		}
	}

	fmt.Printf("Publishing %s@%s (%d files)\n", headingStyle.Render(local.Slug), version, len(local.Files))

	resp, err := client.Publish(ctx, PublishOptions{
		Slug:        local.Slug,
		DisplayName: local.DisplayName,
		Version:     version,
		Changelog:   opts.changelog,
		Tags:        opts.tags,
		ForkOf:      opts.forkOf,
	}, local.Files, func(path string) {
		fmt.Println(subtleStyle.Render("  ↑ " + path))
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s %s@%s (fingerprint %s)\n",
		successStyle.Render("✓ published"), local.Slug, resp.Version, resp.Fingerprint[:12])

	return nil
}
