package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/registry"
)

// LocalFile is one hashed file of a local bundle.
type LocalFile struct {
	Path    string
	Size    int64
	SHA256  string
	Content []byte
}

// LocalSkill is a discovered skill folder with its hashed bundle.
type LocalSkill struct {
	Slug        string
	DisplayName string
	Summary     string
	Dir         string
	Files       []LocalFile
	Fingerprint string
}

// DiscoverRoots merges explicit roots, the workdir install dir, and
// companion-product defaults, deduplicated by canonical path.
func DiscoverRoots(globals *Globals, explicit []string) []string {
	candidates := make([]string, 0, len(explicit)+4)
	candidates = append(candidates, explicit...)
	candidates = append(candidates, filepath.Join(globals.Workdir, globals.InstallDir))

	// Companion-product defaults: a workspace pointer file plus shared
	// skill directories.
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".claude", "skills"),
			filepath.Join(home, ".config", "agents", "skills"),
		)
	}
	if pointer := readWorkspacePointer(globals.Workdir); pointer != "" {
		candidates = append(candidates, pointer)
	}
	if extra := os.Getenv("CLAWDHUB_EXTRA_ROOTS"); extra != "" {
		candidates = append(candidates, filepath.SplitList(extra)...)
	}

	seen := make(map[string]bool)
	var roots []string
	for _, c := range candidates {
		resolved, err := filepath.EvalSymlinks(c)
		if err != nil {
			// Missing candidates are normal; only existing dirs count.
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.IsDir() {
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		roots = append(roots, resolved)
	}

	return roots
}

// readWorkspacePointer reads an optional .clawdhub/workspace file whose
// single line names an additional skill root.
func readWorkspacePointer(workdir string) string {
	data, err := os.ReadFile(filepath.Join(workdir, ".clawdhub", "workspace"))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
}

// ScanRoots finds skill folders (direct subdirectories holding a
// SKILL.md) in every root. When nothing is found it retries the legacy
// fallback layout (the roots themselves as single skill folders).
func ScanRoots(roots []string) ([]LocalSkill, []string, error) {
	var skills []LocalSkill
	var skippedDuplicates []string
	bySlug := make(map[string]bool)

	appendSkill := func(dir string) {
		skill, err := HashSkillDir(dir)
		if err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("skipping undreadable skill folder")

			return
		}
		if bySlug[skill.Slug] {
			skippedDuplicates = append(skippedDuplicates, skill.Dir)

			return
		}
		bySlug[skill.Slug] = true
		skills = append(skills, *skill)
	}

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if manifestPath(dir) != "" {
				appendSkill(dir)
			}
		}
	}

	if len(skills) == 0 {
		// Legacy layout: the root itself is a skill folder.
		for _, root := range roots {
			if manifestPath(root) != "" {
				appendSkill(root)
			}
		}
	}

	if len(skills) == 0 {
		return nil, nil, fmt.Errorf(
			"no skill folders found; a skill folder is a directory containing a SKILL.md file",
		)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Slug < skills[j].Slug })

	return skills, skippedDuplicates, nil
}

// manifestPath returns the SKILL.md (or skills.md) path inside dir, or
// "" when absent.
func manifestPath(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lower := strings.ToLower(entry.Name())
		if lower == "skill.md" || lower == "skills.md" {
			return filepath.Join(dir, entry.Name())
		}
	}

	return ""
}

// HashSkillDir enumerates the allow-listed text files below dir, reads
// and hashes each, and computes the bundle fingerprint exactly as the
// server does.
func HashSkillDir(dir string) (*LocalSkill, error) {
	manifest := manifestPath(dir)
	if manifest == "" {
		return nil, fmt.Errorf("%s has no SKILL.md", dir)
	}

	skill := &LocalSkill{
		Slug: SlugFromDir(dir),
		Dir:  dir,
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}

			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !registry.IsAllowedTextFile(rel, "") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(content)

		skill.Files = append(skill.Files, LocalFile{
			Path:    rel,
			Size:    int64(len(content)),
			SHA256:  hex.EncodeToString(sum[:]),
			Content: content,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]registry.FingerprintEntry, 0, len(skill.Files))
	for _, f := range skill.Files {
		entries = append(entries, registry.FingerprintEntry{Path: f.Path, SHA256: f.SHA256})
	}
	skill.Fingerprint = registry.Fingerprint(entries)

	// Pull display name and summary out of the manifest frontmatter.
	if content, err := os.ReadFile(manifest); err == nil {
		parsed := registry.ParseManifest(content)
		if parsed.Name != "" {
			skill.DisplayName = parsed.Name
		}
		skill.Summary = parsed.Description
	}
	if skill.DisplayName == "" {
		skill.DisplayName = skill.Slug
	}

	return skill, nil
}

// SlugFromDir derives the registry slug from a folder name: lowercase,
// url-safe, leading junk trimmed.
func SlugFromDir(dir string) string {
	name := strings.ToLower(filepath.Base(dir))

	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if b.Len() > 0 {
				b.WriteByte('-')
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
