package cli

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout around fn. Tests using it must not
// run in parallel.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func syncGlobals(t *testing.T, registryURL string) *Globals {
	t.Helper()

	// Keep the companion-product default roots out of the scan.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLAWDHUB_EXTRA_ROOTS", "")

	return &Globals{
		Workdir:    t.TempDir(),
		InstallDir: "skills",
		Registry:   registryURL,
		NoInput:    true,
	}
}

func TestSyncDryRunWithEverythingSynced(t *testing.T) {
	root := t.TempDir()
	dir := writeSkillDir(t, root, "demo", map[string]string{
		"SKILL.md": "---\nname: demo\n---\nunchanged",
	})

	local, err := HashSkillDir(dir)
	require.NoError(t, err)

	stub := &stubRegistry{
		latest: map[string]string{"demo": "1.0.0"},
		known: map[string]map[string]string{
			"demo": {local.Fingerprint: "1.0.0"},
		},
	}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	globals := syncGlobals(t, server.URL)

	var runErr error
	out := captureStdout(t, func() {
		runErr = runSync(context.Background(), globals, syncOptions{
			roots:       []string{root},
			all:         true,
			dryRun:      true,
			bump:        "patch",
			concurrency: defaultConcurrency,
		})
	})
	require.NoError(t, runErr)

	// Nothing is published; the output names the synced version and
	// says so.
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "demo@1.0.0")
}

func TestSyncDryRunWithActionableItems(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "brand-new", map[string]string{
		"SKILL.md": "---\nname: brand-new\n---\nnever published",
	})

	// The stub has no publish endpoint: a dry run that tried to
	// publish would fail loudly.
	stub := &stubRegistry{latest: map[string]string{}, known: map[string]map[string]string{}}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	globals := syncGlobals(t, server.URL)

	var runErr error
	out := captureStdout(t, func() {
		runErr = runSync(context.Background(), globals, syncOptions{
			roots:       []string{root},
			all:         true,
			dryRun:      true,
			bump:        "patch",
			concurrency: defaultConcurrency,
		})
	})
	require.NoError(t, runErr)

	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "brand-new")
}
