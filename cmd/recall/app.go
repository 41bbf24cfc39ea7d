package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/hurttlocker/recall/internal/analytics"
	"github.com/hurttlocker/recall/internal/config"
	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/logging"
	"github.com/hurttlocker/recall/internal/maintain"
	"github.com/hurttlocker/recall/internal/recall"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/hurttlocker/recall/internal/vector"
)

// appOptions selects the optional collaborators a command needs.
type appOptions struct {
	locator bool // probe for a file-locator executable
	prune   bool // rebuilds drop documents whose file is gone
	rebuild bool // the command builds the index itself
}

// app holds everything a command can reach, built once from the resolved
// configuration.
type app struct {
	cfg       config.ResolvedConfig
	engine    *recall.Engine
	maintain  *maintain.Coordinator
	analytics *analytics.Analyzer
	closers   []io.Closer
}

func resolveConfig() (config.ResolvedConfig, error) {
	level := globalLogLevel
	if globalVerbose {
		level = "debug"
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:     globalConfigPath,
		CLIRoot:        globalRoot,
		CLIIndexDir:    globalIndexDir,
		CLILocator:     globalLocator,
		CLIVector:      globalVector,
		CLILogLevel:    level,
		CLIProjectRoot: globalProject,
	})
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfg.ConfigPath, err)
	}

	logCloser, err := logging.Setup(logging.Options{
		Level: cfg.LogLevel.Value,
		File:  cfg.LogFile.Value,
		JSON:  cfg.LogJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	a := &app{cfg: cfg, closers: []io.Closer{logCloser}}

	if !opts.rebuild && !store.Exists(cfg.IndexDir.Value) {
		log.Warnf("no index in %s yet, run `recall rebuild` first", cfg.IndexDir.Value)
	}
	s, err := store.NewStore(store.StoreConfig{Dir: cfg.IndexDir.Value})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	a.closers = append(a.closers, s)

	var loc locate.Locator
	locatorOK := false
	if opts.locator {
		exe, err := locate.Probe(ctx, cfg.Locator.Value, cfg.LocatorCandidates)
		if err != nil {
			log.WithError(err).Warn("file locator unavailable, project and locate results will be empty")
		} else {
			loc = locate.New(exe, logging.For("locate"))
			locatorOK = true
		}
	}

	vec, err := vectorAdapter(cfg.VectorEndpoint.Value, cfg, "vector")
	if err != nil {
		a.Close()
		return nil, err
	}
	rules, err := vectorAdapter(cfg.RulesEndpoint.Value, cfg, "rules")
	if err != nil {
		a.Close()
		return nil, err
	}

	l := cfg.Limits
	a.engine = recall.New(recall.Options{
		Store:   s,
		Vector:  vec,
		Rules:   rules,
		Locator: loc,
		Paths: recall.Paths{
			Reflexive:       cfg.Path(config.Reflexive),
			History:         cfg.Path(config.History),
			Persistent:      cfg.Path(config.Persistent),
			Knowledge:       cfg.Path(config.Knowledge),
			TrainingModules: cfg.Path(config.TrainingModules),
			Rules:           cfg.Path(config.Rules),
			Project:         cfg.ProjectRoot.Value,
			IndexDir:        cfg.IndexDir.Value,
		},
		Limits: recall.Limits{
			FinalResults:      l.FinalResults,
			VectorTopK:        l.VectorTopK,
			LocatorMax:        l.LocatorMax,
			HistoryRecent:     l.HistoryRecent,
			VerbatimOverfetch: l.VerbatimOverfetch,
			SwapCandidates:    l.SwapCandidates,
			IntentBoost:       l.IntentBoost,
		},
		LocatorAvailable: locatorOK,
		Logger:           logging.For("recall"),
	})

	a.maintain = maintain.New(maintain.Options{
		Store: s,
		Roots: map[string]string{
			maintain.TypeReflexive:       cfg.Path(config.Reflexive),
			maintain.TypeHistory:         cfg.Path(config.History),
			maintain.TypePersistent:      cfg.Path(config.Persistent),
			maintain.TypeKnowledge:       cfg.Path(config.Knowledge),
			maintain.TypeTrainingModules: cfg.Path(config.TrainingModules),
		},
		ProgressEvery: cfg.ProgressEvery,
		Prune:         opts.prune || cfg.PruneOnRebuild,
		Logger:        logging.For("maintain"),
	})

	a.analytics = analytics.New(analytics.Options{
		HistoryDir: cfg.Path(config.History),
		ExportDir:  cfg.ExportDir.Value,
		Logger:     logging.For("analytics"),
	})
	return a, nil
}

// vectorAdapter returns an adapter over the HTTP engine at endpoint, or an
// unavailable adapter when endpoint is empty.
func vectorAdapter(endpoint string, cfg config.ResolvedConfig, component string) (*vector.Adapter, error) {
	logger := logging.For(component)
	if endpoint == "" {
		return vector.NewAdapter(nil, logger), nil
	}
	engine, err := vector.NewHTTPEngine(endpoint, cfg.VectorAPIKey.Value, cfg.VectorTimeout)
	if err != nil {
		return nil, fmt.Errorf("configuring %s engine: %w", component, err)
	}
	return vector.NewAdapter(engine, logger), nil
}

// Close releases the index and flushes the log file, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
