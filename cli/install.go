package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newInstallCmd(globals *Globals) *cobra.Command {
	var (
		version string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "install <slug>",
		Short: "Install a skill into the workdir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), globals, args[0], version, force)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "install a specific version (default: latest)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite local changes")

	return cmd
}

func runInstall(ctx context.Context, globals *Globals, slug, version string, force bool) error {
	client := NewClient(globals.Registry, globals.Config.Token)

	info, err := client.GetSkill(ctx, slug)
	if err != nil {
		return err
	}
	if version == "" {
		if info.LatestVersion == nil {
			return fmt.Errorf("%s has no published versions", slug)
		}
		version = info.LatestVersion.Version
	}

	targetDir := filepath.Join(globals.Workdir, globals.InstallDir, slug)
	if _, err := os.Stat(targetDir); err == nil && !force {
		// Refuse to clobber a folder we did not put there.
		if _, err := ReadOriginMarker(targetDir); err != nil {
			return fmt.Errorf(
				"%s exists and was not installed by clawdhub; use --force to overwrite",
				targetDir,
			)
		}
	}

	fmt.Printf("Installing %s@%s...\n", headingStyle.Render(slug), version)

	archive, err := client.DownloadZip(ctx, slug, version)
	if err != nil {
		return err
	}

	if err := extractZip(archive, targetDir); err != nil {
		return fmt.Errorf("extracting bundle: %w", err)
	}

	if err := WriteOriginMarker(targetDir, globals.Registry, slug, version); err != nil {
		return fmt.Errorf("writing origin marker: %w", err)
	}

	lock, err := LoadLockfile(globals.Workdir)
	if err != nil {
		return fmt.Errorf("reading lockfile: %w", err)
	}
	lock.Skills[slug] = LockEntry{Version: version, InstalledAt: nowUTC()}
	if err := SaveLockfile(globals.Workdir, lock); err != nil {
		return fmt.Errorf("writing lockfile: %w", err)
	}

	fmt.Println(successStyle.Render("✓ installed ") + slug + "@" + version)

	return nil
}

// extractZip unpacks a bundle archive into dir, rejecting entries that
// would escape it.
func extractZip(archive []byte, dir string) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, entry := range reader.File {
		name := filepath.FromSlash(entry.Name)
		if strings.Contains(entry.Name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes the target directory: %q", entry.Name)
		}

		target := filepath.Join(dir, name)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := entry.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return err
		}
	}

	return nil
}
