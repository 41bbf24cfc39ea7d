package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/recall"
)

// flagValue matches args[*i] against --name value and --name=value,
// advancing *i past a separate value.
func flagValue(args []string, i *int, name string) (string, bool) {
	arg := args[*i]
	if v, ok := strings.CutPrefix(arg, name+"="); ok {
		return v, true
	}
	if arg == name && *i+1 < len(args) {
		*i++
		return args[*i], true
	}
	return "", false
}

func intFlag(args []string, i *int, name string, dst *int) (bool, error) {
	v, ok := flagValue(args, i, name)
	if !ok {
		return false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return true, fmt.Errorf("%s: %q is not a number", name, v)
	}
	*dst = n
	return true, nil
}

type searchArgs struct {
	query        string
	subject      string
	action       string
	category     string
	includeRules bool
	jsonOut      bool
}

func parseSearchArgs(args []string) (searchArgs, error) {
	var out searchArgs
	var words []string
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--subject"); ok {
			out.subject = v
			continue
		}
		if v, ok := flagValue(args, &i, "--action"); ok {
			out.action = v
			continue
		}
		if v, ok := flagValue(args, &i, "--category"); ok {
			out.category = v
			continue
		}
		switch {
		case args[i] == "--rules":
			out.includeRules = true
		case args[i] == "--json":
			out.jsonOut = true
		case strings.HasPrefix(args[i], "--"):
			return out, fmt.Errorf("unknown flag: %s", args[i])
		default:
			words = append(words, args[i])
		}
	}
	out.query = strings.TrimSpace(strings.Join(words, " "))
	if out.query == "" {
		return out, fmt.Errorf("usage: recall search <query> [--subject S] [--action A] [--category C] [--rules] [--json]")
	}
	return out, nil
}

func runSearch(args []string) error {
	sa, err := parseSearchArgs(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var intent *recall.Intent
	if sa.subject != "" || sa.action != "" || sa.category != "" {
		intent, err = recall.NewIntent(sa.query, sa.subject, sa.action, sa.category)
		if err != nil {
			return err
		}
	}

	var opts []recall.SearchOption
	if sa.includeRules {
		opts = append(opts, recall.WithRules())
	}
	res, err := a.engine.ContextSearch(ctx, sa.query, intent, opts...)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	return printResult(os.Stdout, res, sa.jsonOut)
}

func runVerbatim(args []string) error {
	phrase, jsonOut := splitJSONFlag(args)
	if phrase == "" {
		return fmt.Errorf("usage: recall verbatim <phrase> [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Verbatim(ctx, phrase)
	if err != nil {
		return fmt.Errorf("verbatim search: %w", err)
	}
	if len(res.Snippets) == 0 && !jsonOut {
		fmt.Printf("No record contains %q exactly (%d candidate(s) checked).\n", phrase, res.ScannedCount)
		return nil
	}
	return printResult(os.Stdout, res, jsonOut)
}

func runHistory(args []string) error {
	limit := 0
	jsonOut := false
	for i := 0; i < len(args); i++ {
		if ok, err := intFlag(args, &i, "--limit", &limit); ok {
			if err != nil {
				return err
			}
			continue
		}
		switch args[i] {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("usage: recall history [--limit N] [--json]")
		}
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	return printResult(os.Stdout, res, jsonOut)
}

func runRules(args []string) error {
	var tag, query string
	limit := 0
	jsonOut := false
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--tag"); ok {
			tag = v
			continue
		}
		if v, ok := flagValue(args, &i, "--query"); ok {
			query = v
			continue
		}
		if ok, err := intFlag(args, &i, "--limit", &limit); ok {
			if err != nil {
				return err
			}
			continue
		}
		if args[i] == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("unexpected argument: %s", args[i])
	}
	if strings.TrimSpace(tag) == "" && strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: recall rules [--tag T] [--query Q] [--limit N] [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var tagged, semantic []recall.MemorySnippet
	if tag != "" {
		if tagged, err = a.engine.Rules(ctx, tag); err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
	}
	if query != "" {
		semantic = a.engine.SemanticRules(ctx, query, limit)
	}
	return printSnippets(os.Stdout, recall.Merge(tagged, semantic), jsonOut)
}

func runReadmes(args []string) error {
	prompt, jsonOut := splitJSONFlag(args)
	if prompt == "" {
		return fmt.Errorf("usage: recall readmes <prompt> [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	readmes, err := a.engine.Readmes(ctx, prompt)
	if err != nil {
		return fmt.Errorf("loading readmes: %w", err)
	}
	return printSnippets(os.Stdout, readmes, jsonOut)
}

func runTechDocs(args []string) error {
	pattern, jsonOut := splitJSONFlag(args)
	if pattern == "" {
		return fmt.Errorf("usage: recall techdocs <pattern> [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.engine.TechDocs(ctx, pattern)
	if err != nil {
		return fmt.Errorf("loading technical docs: %w", err)
	}
	return printSnippets(os.Stdout, docs, jsonOut)
}

func runProject(args []string) error {
	pattern, jsonOut := splitJSONFlag(args)
	if pattern == "" {
		return fmt.Errorf("usage: recall project <pattern> [--json]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{locator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.ProjectFiles(ctx, pattern)
	if err != nil {
		return fmt.Errorf("reading project files: %w", err)
	}
	return printResult(os.Stdout, res, jsonOut)
}

func runLocate(args []string) error {
	pattern, _ := splitJSONFlag(args)
	if pattern == "" {
		return fmt.Errorf("usage: recall locate <pattern>")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{locator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := a.engine.LocatePhysical(ctx, pattern)
	if err != nil {
		return fmt.Errorf("locating: %w", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

// splitJSONFlag joins the positional arguments and reports --json.
func splitJSONFlag(args []string) (string, bool) {
	var words []string
	jsonOut := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOut = true
			continue
		}
		words = append(words, arg)
	}
	return strings.TrimSpace(strings.Join(words, " ")), jsonOut
}

func printResult(w io.Writer, res *recall.SearchResult, jsonOut bool) error {
	if jsonOut {
		return writeJSON(w, res)
	}
	if err := printSnippets(w, res.Snippets, false); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d result(s) from %d candidate(s) in %s\n", len(res.Snippets), res.ScannedCount, res.Elapsed.Round(time.Millisecond))
	if res.Status == recall.StatusDegraded {
		fmt.Fprintf(w, "Warning: partial result: %s\n", res.Reason)
	}
	return nil
}

func printSnippets(w io.Writer, snippets []recall.MemorySnippet, jsonOut bool) error {
	if jsonOut {
		if snippets == nil {
			snippets = []recall.MemorySnippet{}
		}
		return writeJSON(w, snippets)
	}
	if len(snippets) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for i, s := range snippets {
		fmt.Fprintf(w, "%d. [%s] %s (%.2f)\n", i+1, s.Type, s.Title, s.Score)
		fmt.Fprintf(w, "   %s\n", preview(s.Content, 240))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// preview flattens whitespace and truncates to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
