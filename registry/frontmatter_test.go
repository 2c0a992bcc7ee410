package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Parallel()

	content := []byte(`---
name: demo
description: |-
  A demo skill
  spanning two lines
metadata:
  moltbot:
    emoji: "🦀"
---
# Demo

Body text.
`)

	m := ParseManifest(content)
	require.NotNil(t, m)
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, "A demo skill\nspanning two lines", m.Description)
	assert.Contains(t, m.Body, "Body text.")
	require.NotNil(t, m.Metadata)
	assert.Contains(t, m.Metadata, "moltbot")
}

func TestParseManifestWithoutFrontmatter(t *testing.T) {
	t.Parallel()

	m := ParseManifest([]byte("# Just markdown\n"))
	assert.Empty(t, m.Name)
	assert.Empty(t, m.Description)
	assert.Nil(t, m.Frontmatter)
	assert.Equal(t, "# Just markdown\n", m.Body)
}

func TestParseManifestMalformedYAML(t *testing.T) {
	t.Parallel()

	content := []byte("---\nname: [unclosed\n---\nBody\n")
	m := ParseManifest(content)
	// Malformed frontmatter never blocks a publish; the raw body is kept.
	assert.Empty(t, m.Name)
	assert.Contains(t, m.Body, "Body")
}

func TestParseManifestUnterminatedFrontmatter(t *testing.T) {
	t.Parallel()

	content := []byte("---\nname: demo\nno terminator")
	m := ParseManifest(content)
	assert.Empty(t, m.Name)
	assert.Equal(t, string(content), m.Body)
}
