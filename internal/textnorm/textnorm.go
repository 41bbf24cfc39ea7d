// Package textnorm turns free text into comparable token sets.
//
// Everything here is pure: case folding, accent stripping, separator
// normalization and the word-boundary tokenizer that mirrors the index
// analyzer (lower-case, no stop words, no stemming).
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	camelBoundaryRE = regexp.MustCompile(`([a-z])([A-Z])`)
	spaceRE         = regexp.MustCompile(`\s+`)
	alnumRE         = regexp.MustCompile(`[a-z0-9]+`)
	wordRE          = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Fold lower-cases s, strips combining marks and trims surrounding space.
// "Éducation " and "education" fold to the same value.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Tokens splits s into its set of ASCII alphanumeric tokens. camelCase
// boundaries, underscores and dashes all act as separators.
func Tokens(s string) map[string]struct{} {
	s = strings.TrimSpace(s)
	s = camelBoundaryRE.ReplaceAllString(s, "$1 $2")
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
	return toSet(alnumRE.FindAllString(s, -1))
}

// ReadmeKeyTokens returns the key tokens of a README_<key>.md file name.
// Any other file name yields an empty set.
func ReadmeKeyTokens(filename string) map[string]struct{} {
	name := strings.TrimSpace(filename)
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, "readme_") || !strings.HasSuffix(lower, ".md") {
		return map[string]struct{}{}
	}
	base := name[len("readme_") : len(name)-len(".md")]
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.ToLower(strings.TrimSpace(spaceRE.ReplaceAllString(base, " ")))
	return toSet(alnumRE.FindAllString(base, -1))
}

// WordTokens tokenizes on word boundaries and lower-cases each token.
// Nothing is dropped: short tokens and common words survive.
func WordTokens(s string) []string {
	words := wordRE.FindAllString(s, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// Subset reports whether every element of a is in b. An empty a is never a
// subset, so callers cannot match on "no key".
func Subset(a, b map[string]struct{}) bool {
	if len(a) == 0 {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
