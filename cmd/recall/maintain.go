package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/mcp"
)

func runRebuild(args []string) error {
	prune := false
	for _, arg := range args {
		switch arg {
		case "--prune":
			prune = true
		default:
			return fmt.Errorf("usage: recall rebuild [--prune]")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, appOptions{prune: prune, rebuild: true})
	if err != nil {
		return err
	}
	defer a.Close()

	for _, r := range a.maintain.Roots() {
		fmt.Printf("  %-17s %s\n", r.MemoryType, r.Path)
	}
	res, err := a.maintain.Rebuild(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nRebuild complete in %s\n", res.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Indexed:  %d\n", res.Indexed)
	fmt.Printf("  Empty:    %d\n", res.Empty)
	fmt.Printf("  Skipped:  %d\n", res.Skipped)
	if prune || a.cfg.PruneOnRebuild {
		fmt.Printf("  Pruned:   %d\n", res.Pruned)
	}
	types := make([]string, 0, len(res.PerType))
	for t := range res.PerType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("    %-17s %d\n", t, res.PerType[t])
	}
	for _, fe := range res.Errors {
		fmt.Fprintf(os.Stderr, "  skipped %s: %s\n", fe.Path, fe.Message)
	}
	return nil
}

func runUpdate(args []string) error {
	var path, memType, content string
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--type"); ok {
			memType = v
			continue
		}
		if v, ok := flagValue(args, &i, "--content"); ok {
			content = v
			continue
		}
		if strings.HasPrefix(args[i], "--") || path != "" {
			return fmt.Errorf("usage: recall update <path> [--type T] [--content TEXT]")
		}
		path = args[i]
	}
	if path == "" {
		return fmt.Errorf("usage: recall update <path> [--type T] [--content TEXT]")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.maintain.UpdateFile(ctx, path, memType, content)
	if !out.Applied {
		return fmt.Errorf("%s not indexed: %s", path, out.Reason)
	}
	fmt.Printf("Indexed %s as %s\n", out.Path, out.MemoryType)
	return nil
}

func runWatch(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: recall watch")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Watching memory roots (Ctrl-C to stop)...")
	return a.maintain.Watch(ctx)
}

func runStats(args []string) error {
	_, jsonOut := splitJSONFlag(args)

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{locator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.engine.IndexStats(ctx)
	if jsonOut {
		return writeJSON(os.Stdout, st)
	}
	if st.Error != "" {
		return fmt.Errorf("index stats: %s", st.Error)
	}

	fmt.Printf("Index:      %s\n", st.IndexPath)
	fmt.Printf("Documents:  %d\n", st.DocumentsIndexed)
	fmt.Printf("Size:       %.1f KB\n", float64(st.DBSizeBytes)/1024)
	fmt.Printf("Locator:    %s\n", availability(st.LocatorAvailable))
	types := make([]string, 0, len(st.PerType))
	for t := range st.PerType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-17s %d\n", t, st.PerType[t])
	}
	return nil
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: recall mcp")
	}

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{locator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Engine:     a.engine,
		Maintainer: a.maintain,
		Analytics:  a.analytics,
		Version:    version,
	})
	return mcp.Serve(srv)
}

func runProbe(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: recall probe")
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	exe, err := locate.Probe(context.Background(), cfg.Locator.Value, cfg.LocatorCandidates)
	if err != nil {
		return err
	}
	fmt.Println(exe)
	return nil
}

func runConfig(args []string) error {
	if len(args) != 1 || args[0] != "show" {
		return fmt.Errorf("usage: recall config show")
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if err := writeJSON(os.Stdout, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: %v\n", err)
	}
	return nil
}
