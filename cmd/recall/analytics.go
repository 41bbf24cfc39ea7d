package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/analytics"
)

func runAnalytics(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: recall analytics <search|summary|export> [flags]")
	}
	switch args[0] {
	case "search":
		return runAnalyticsSearch(args[1:])
	case "summary":
		return runAnalyticsSummary(args[1:])
	case "export":
		return runAnalyticsExport(args[1:])
	default:
		return fmt.Errorf("unknown analytics command: %s", args[0])
	}
}

// parseFilter reads the classification filter flags. now anchors --since-days.
func parseFilter(args []string, now time.Time) (analytics.Filter, bool, error) {
	f := analytics.Filter{}
	jsonOut := false
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--subject"); ok {
			f.Subject = v
			continue
		}
		if v, ok := flagValue(args, &i, "--action"); ok {
			f.Action = v
			continue
		}
		if v, ok := flagValue(args, &i, "--category"); ok {
			f.Category = v
			continue
		}
		if v, ok := flagValue(args, &i, "--tags"); ok {
			for _, t := range strings.Split(v, ",") {
				if t = strings.TrimSpace(t); t != "" {
					f.Tags = append(f.Tags, t)
				}
			}
			continue
		}
		days := 0
		if ok, err := intFlag(args, &i, "--since-days", &days); ok {
			if err != nil {
				return f, false, err
			}
			if days > 0 {
				f.Since = now.AddDate(0, 0, -days)
			}
			continue
		}
		if ok, err := intFlag(args, &i, "--limit", &f.Limit); ok {
			if err != nil {
				return f, false, err
			}
			continue
		}
		if args[i] == "--json" {
			jsonOut = true
			continue
		}
		return f, false, fmt.Errorf("unknown flag: %s", args[i])
	}
	return f, jsonOut, nil
}

func runAnalyticsSearch(args []string) error {
	f, jsonOut, err := parseFilter(args, time.Now())
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.analytics.Search(ctx, f)
	if err != nil {
		return fmt.Errorf("searching interactions: %w", err)
	}
	if jsonOut {
		if entries == nil {
			entries = []analytics.Entry{}
		}
		return writeJSON(os.Stdout, entries)
	}
	printEntries(os.Stdout, entries)
	return nil
}

func printEntries(w io.Writer, entries []analytics.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching interactions.")
		return
	}
	for _, e := range entries {
		c := e.Classification
		fmt.Fprintf(w, "%s  %s/%s/%s", e.Timestamp, c.Subject, c.Action, c.Category)
		if len(c.Tags) > 0 {
			fmt.Fprintf(w, "  #%s", strings.Join(c.Tags, " #"))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  > %s\n", preview(e.Prompt, 160))
	}
	fmt.Fprintf(w, "\n%d interaction(s)\n", len(entries))
}

func runAnalyticsSummary(args []string) error {
	days := 30
	jsonOut := false
	for i := 0; i < len(args); i++ {
		if ok, err := intFlag(args, &i, "--days", &days); ok {
			if err != nil {
				return err
			}
			continue
		}
		if args[i] == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("usage: recall analytics summary [--days N] [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.analytics.Summarize(ctx, days)
	if errors.Is(err, analytics.ErrNoInteractions) {
		fmt.Printf("No classified interaction in the last %d days.\n", days)
		return nil
	}
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}
	if jsonOut {
		return writeJSON(os.Stdout, sum)
	}

	fmt.Printf("%s: %d interaction(s)\n", sum.Period, sum.Total)
	printCounts(os.Stdout, "Subjects", sum.BySubject)
	printCounts(os.Stdout, "Actions", sum.ByAction)
	printCounts(os.Stdout, "Categories", sum.ByCategory)
	printCounts(os.Stdout, "Tags", sum.Tags)
	printCounts(os.Stdout, "Combinations", sum.Combinations)
	return nil
}

func printCounts(w io.Writer, title string, counts []analytics.Count) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, c := range counts {
		fmt.Fprintf(w, "  %-30s %d\n", c.Label, c.Count)
	}
}

func runAnalyticsExport(args []string) error {
	format := analytics.FormatJSON
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--format"); ok {
			format = v
			continue
		}
		return fmt.Errorf("usage: recall analytics export [--format json|csv]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.analytics.Export(ctx, format)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	fmt.Printf("Exported %d interaction(s) to %s (id %s)\n", res.Count, res.Path, res.ID)
	return nil
}
