package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/orm"
)

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

func TestFingerprintDeterminism(t *testing.T) {
	t.Parallel()

	entries := []FingerprintEntry{
		{Path: "SKILL.md", SHA256: sha("manifest")},
		{Path: "docs/usage.md", SHA256: sha("usage")},
		{Path: "config.yaml", SHA256: sha("config")},
	}
	reversed := []FingerprintEntry{entries[2], entries[1], entries[0]}

	assert.Equal(t, Fingerprint(entries), Fingerprint(reversed),
		"fingerprint must not depend on input order")
}

func TestFingerprintSortsByPathNotByLine(t *testing.T) {
	t.Parallel()

	// "a-b" sorts before "a:" as a joined line but after "a" as a
	// path; the fingerprint is defined over path order.
	h := sha("x")
	a := Fingerprint([]FingerprintEntry{
		{Path: "a", SHA256: h},
		{Path: "a-b", SHA256: h},
	})
	b := Fingerprint([]FingerprintEntry{
		{Path: "a-b", SHA256: h},
		{Path: "a", SHA256: h},
	})

	assert.Equal(t, a, b)
	assert.Equal(t, sha("a:"+h+"\na-b:"+h), a)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	t.Parallel()

	base := []FingerprintEntry{{Path: "SKILL.md", SHA256: sha("one")}}
	changed := []FingerprintEntry{{Path: "SKILL.md", SHA256: sha("two")}}

	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
}

func TestFingerprintFilesMatchesEntries(t *testing.T) {
	t.Parallel()

	files := []orm.VersionFile{
		{Path: "SKILL.md", SHA256: sha("m"), Size: 1},
		{Path: "notes.txt", SHA256: sha("n"), Size: 1},
	}
	entries := []FingerprintEntry{
		{Path: "SKILL.md", SHA256: sha("m")},
		{Path: "notes.txt", SHA256: sha("n")},
	}

	require.Equal(t, Fingerprint(entries), FingerprintFiles(files))
}

func TestFingerprintIsHex64(t *testing.T) {
	t.Parallel()

	fp := Fingerprint([]FingerprintEntry{{Path: "SKILL.md", SHA256: sha("x")}})
	assert.Len(t, fp, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", fp)
}
