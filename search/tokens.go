package search

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the query and splits it into alphanumeric runs,
// dropping runs shorter than two characters.
func Tokenize(query string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= 2 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// ContainsAllTokens reports whether every token appears as a whole word
// in haystack, case-insensitively. "Whole word" means the token is not
// flanked by another letter or digit.
func ContainsAllTokens(haystack string, tokens []string) bool {
	lower := strings.ToLower(haystack)
	for _, token := range tokens {
		if !containsWholeWord(lower, token) {
			return false
		}
	}

	return true
}

func containsWholeWord(haystack, word string) bool {
	for start := 0; ; {
		i := strings.Index(haystack[start:], word)
		if i < 0 {
			return false
		}
		i += start

		before := i - 1
		after := i + len(word)
		beforeOK := before < 0 || !isWordByte(haystack[before])
		afterOK := after >= len(haystack) || !isWordByte(haystack[after])
		if beforeOK && afterOK {
			return true
		}

		start = i + 1
	}
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')
}
