package locate

import (
	"strconv"
	"strings"
	"unicode"
)

// Query is a locator search: either pre-tokenized terms or a raw string
// that still needs splitting.
type Query struct {
	terms []string
	raw   string
	isRaw bool
}

// Terms builds a query from already separated terms.
func Terms(terms ...string) Query {
	return Query{terms: terms}
}

// Raw builds a query from a command-line style string.
func Raw(s string) Query {
	return Query{raw: s, isRaw: true}
}

// Tokens returns the cleaned argument tokens of q.
func (q Query) Tokens() []string {
	if q.isRaw {
		return CleanTokens(SplitQuery(q.raw))
	}
	return CleanTokens(q.terms)
}

// String renders q for logs.
func (q Query) String() string {
	if q.isRaw {
		return q.raw
	}
	return strings.Join(q.terms, " ")
}

// SplitQuery splits s on whitespace, keeping double-quoted regions inside
// their token together with the quote characters themselves. Backslash is
// an ordinary character, so Windows paths pass through untouched:
//
//	path:"C:\My Docs\" *.md  →  [path:"C:\My Docs\", *.md]
//
// An unterminated quote runs to the end of the input.
func SplitQuery(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, cur.String())
			cur.Reset()
			started = false
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
			started = true
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return out
}

// CleanTokens drops blank tokens and repairs a trailing `\"` on path:
// filters, which the locator would otherwise read as an escaped quote.
func CleanTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, `path:"`) && strings.HasSuffix(tok, `\"`) {
			tok = strings.TrimSuffix(tok, `\"`) + `"`
		}
		out = append(out, tok)
	}
	return out
}

// BuildArgs renders the locator argument vector: the result limit first,
// then the search terms.
func BuildArgs(limit int, tokens []string) []string {
	args := make([]string, 0, len(tokens)+2)
	args = append(args, "-n", strconv.Itoa(limit))
	return append(args, tokens...)
}

// ParseOutput splits locator stdout into paths, one per non-blank line, in
// the order the tool printed them.
func ParseOutput(stdout string) []string {
	var paths []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}
