package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"gif", []string{"gif"}},
		{"Google Workspace CLI", []string{"google", "workspace", "cli"}},
		{"a b", nil},
		{"", nil},
		{"  ", nil},
		{"foo-bar_baz2", []string{"foo", "bar", "baz2"}},
		{"C++ helper!", []string{"helper"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.in), tt.in)
	}
}

func TestContainsAllTokensWholeWord(t *testing.T) {
	t.Parallel()

	// "gif" must not match inside "gift" or "gifted".
	assert.True(t, ContainsAllTokens("Animated GIF encoder", []string{"gif"}))
	assert.False(t, ContainsAllTokens("gifted developer tools", []string{"gif"}))
	assert.True(t, ContainsAllTokens("gif-encoder", []string{"gif", "encoder"}))
	assert.False(t, ContainsAllTokens("Google Workspace CLI", []string{"gif"}))

	// Every token must appear.
	assert.False(t, ContainsAllTokens("gif encoder", []string{"gif", "decoder"}))
	assert.True(t, ContainsAllTokens("edge GIF", []string{"gif"}))
}
