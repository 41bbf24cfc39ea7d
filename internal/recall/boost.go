package recall

import "strings"

// sentinel labels carry no signal and never boost.
var sentinelLabels = map[string]bool{
	"unknown": true,
	"inconnu": true,
	"general": true,
}

// BoostTokens returns the lower-cased intent labels usable for boosting.
func BoostTokens(intent *Intent) []string {
	if intent == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, v := range []string{string(intent.Subject), string(intent.Action), string(intent.Category)} {
		t := strings.ToLower(strings.TrimSpace(v))
		if t == "" || sentinelLabels[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Boost multiplies each snippet's score by (1 + factor*n), where n is the
// number of boost tokens found in its lower-cased title. Snippets with no
// matching token are left alone.
func Boost(snippets []MemorySnippet, tokens []string, factor float64) {
	if len(tokens) == 0 || factor == 0 {
		return
	}
	for i := range snippets {
		title := strings.ToLower(snippets[i].Title)
		n := 0
		for _, t := range tokens {
			if strings.Contains(title, t) {
				n++
			}
		}
		if n > 0 {
			snippets[i].Score *= 1 + factor*float64(n)
		}
	}
}
