package changelog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/orm"
)

func TestDeltaSummarizerInitialRelease(t *testing.T) {
	t.Parallel()

	text, err := DeltaSummarizer{}.Summarize(context.Background(), Request{
		Slug:    "demo",
		Version: "1.0.0",
		Current: []orm.VersionFile{{Path: "SKILL.md", SHA256: "aa"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Initial release with 1 files.", text)
}

func TestDeltaSummarizerFileDelta(t *testing.T) {
	t.Parallel()

	text, err := DeltaSummarizer{}.Summarize(context.Background(), Request{
		Slug:    "demo",
		Version: "1.1.0",
		Previous: []orm.VersionFile{
			{Path: "SKILL.md", SHA256: "aa"},
			{Path: "old.md", SHA256: "bb"},
		},
		Current: []orm.VersionFile{
			{Path: "SKILL.md", SHA256: "cc"},
			{Path: "new.md", SHA256: "dd"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "- Added `new.md`")
	assert.Contains(t, text, "- Updated `SKILL.md`")
	assert.Contains(t, text, "- Removed `old.md`")
}

func TestDeltaSummarizerNoChanges(t *testing.T) {
	t.Parallel()

	files := []orm.VersionFile{{Path: "SKILL.md", SHA256: "aa"}}
	text, err := DeltaSummarizer{}.Summarize(context.Background(), Request{
		Previous: files,
		Current:  files,
	})
	require.NoError(t, err)
	assert.Equal(t, "No file changes.", text)
}
