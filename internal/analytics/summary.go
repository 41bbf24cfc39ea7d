package analytics

import (
	"context"
	"fmt"
	"sort"
)

const unknownLabel = "Unknown"

// Count is one label and how often it occurs.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary aggregates classified interactions over a period. Every list is
// sorted by descending count, then label.
type Summary struct {
	Period       string  `json:"period"`
	Total        int     `json:"total_interactions"`
	BySubject    []Count `json:"by_subject"`
	ByAction     []Count `json:"by_action"`
	ByCategory   []Count `json:"by_category"`
	Tags         []Count `json:"frequent_tags"`
	Combinations []Count `json:"frequent_combinations"`
}

// Summarize counts the interactions of the last days days by subject,
// action, category, tag and subject/action/category combination.
func (a *Analyzer) Summarize(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	since := a.now().AddDate(0, 0, -days)
	entries, err := a.Search(ctx, Filter{Since: since, Limit: SummaryLimit})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoInteractions
	}

	subjects, actions, categories := map[string]int{}, map[string]int{}, map[string]int{}
	tags, combos := map[string]int{}, map[string]int{}
	for _, e := range entries {
		c := e.Classification
		s, a, k := orUnknown(c.Subject), orUnknown(c.Action), orUnknown(c.Category)
		subjects[s]++
		actions[a]++
		categories[k]++
		for _, t := range c.Tags {
			tags[t]++
		}
		combos[s+"/"+a+"/"+k]++
	}

	sum := &Summary{
		Period:       fmt.Sprintf("last %d days", days),
		Total:        len(entries),
		BySubject:    sorted(subjects),
		ByAction:     sorted(actions),
		ByCategory:   sorted(categories),
		Tags:         sorted(tags),
		Combinations: sorted(combos),
	}
	a.log.Infof("summary built over %d interactions", sum.Total)
	return sum, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}

func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
