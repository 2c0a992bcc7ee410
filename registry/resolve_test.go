package registry_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/registry"
)

func unzipFingerprintEntries(t *testing.T, data []byte) []registry.FingerprintEntry {
	t.Helper()

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var entries []registry.FingerprintEntry
	for _, entry := range reader.File {
		src, err := entry.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(src)
		require.NoError(t, err)
		require.NoError(t, src.Close())

		sum := sha256.Sum256(content)
		entries = append(entries, registry.FingerprintEntry{
			Path:   entry.Name,
			SHA256: hex.EncodeToString(sum[:]),
		})
	}

	return entries
}

func TestResolveUnknownSlug(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Resolve(context.Background(), "nope", strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	assert.Nil(t, res.LatestVersion)
}

func TestResolveRejectsMalformedInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, "demo", "not-a-hash")
	require.Error(t, err)

	_, err = f.svc.Resolve(ctx, "demo", strings.ToUpper(strings.Repeat("ab", 32)))
	require.Error(t, err, "uppercase hex is rejected")

	_, err = f.svc.Resolve(ctx, "Bad Slug", strings.Repeat("ab", 32))
	require.Error(t, err)
}

func TestResolveUnmatchedFingerprint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.publishDemo(t, "u1", "demo", "1.0.0")

	res, err := f.svc.Resolve(ctx, "demo", strings.Repeat("00", 32))
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	require.NotNil(t, res.LatestVersion, "latestVersion is reported regardless of the match")
	assert.Equal(t, "1.0.0", res.LatestVersion.Version)
}

func TestResolveSoundness(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	result := f.publishDemo(t, "u1", "demo", "1.0.0")
	f.publishDemo(t, "u1", "demo", "1.0.1")

	res, err := f.svc.Resolve(ctx, "demo", result.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, res.Match)

	// Soundness: recomputing the matched version's fingerprint yields
	// the requested hash.
	version, err := f.svc.GetVersion(ctx, "demo", res.Match.Version)
	require.NoError(t, err)
	assert.Equal(t, result.Fingerprint, registry.FingerprintFiles(version.Files))
}
