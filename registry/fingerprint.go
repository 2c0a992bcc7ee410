package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/xrey167/molthub/orm"
)

// FingerprintEntry is one (path, sha256) pair of a bundle.
type FingerprintEntry struct {
	Path   string
	SHA256 string
}

// Fingerprint computes the bundle fingerprint: the SHA-256 of the
// newline-joined "path:sha256" lines sorted by path. It depends only on
// the file contents and their paths, never on metadata, so identical
// bundles fingerprint identically across skills and publishes.
func Fingerprint(entries []FingerprintEntry) string {
	sorted := make([]FingerprintEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		lines = append(lines, e.Path+":"+strings.ToLower(e.SHA256))
	}

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))

	return hex.EncodeToString(sum[:])
}

// FingerprintFiles computes the fingerprint of a stored file manifest.
func FingerprintFiles(files []orm.VersionFile) string {
	entries := make([]FingerprintEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, FingerprintEntry{Path: f.Path, SHA256: f.SHA256})
	}

	return Fingerprint(entries)
}
