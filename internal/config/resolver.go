package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Set reports whether the value was resolved from anywhere.
func (v ResolvedValue) Set() bool {
	return strings.TrimSpace(v.Value) != ""
}

type ResolveOptions struct {
	ConfigPath     string
	CLIRoot        string
	CLIIndexDir    string
	CLILocator     string
	CLIVector      string
	CLILogLevel    string
	CLIProjectRoot string
}

// Limits mirror recall.Limits with their file names.
type Limits struct {
	FinalResults      int     `yaml:"final_results" json:"final_results"`
	VectorTopK        int     `yaml:"vector_top_k" json:"vector_top_k"`
	LocatorMax        int     `yaml:"locator_max" json:"locator_max"`
	HistoryRecent     int     `yaml:"history_recent" json:"history_recent"`
	VerbatimOverfetch int     `yaml:"verbatim_overfetch" json:"verbatim_overfetch"`
	SwapCandidates    int     `yaml:"swap_candidates" json:"swap_candidates"`
	IntentBoost       float64 `yaml:"intent_boost" json:"intent_boost"`
}

// DefaultLimits are used for every limit the file leaves unset.
func DefaultLimits() Limits {
	return Limits{
		FinalResults:      10,
		VectorTopK:        15,
		LocatorMax:        20,
		HistoryRecent:     5,
		VerbatimOverfetch: 20,
		SwapCandidates:    5,
		IntentBoost:       0.5,
	}
}

// Memory types that have a directory of their own.
const (
	Reflexive       = "reflexive"
	History         = "history"
	Persistent      = "persistent"
	Knowledge       = "knowledge"
	TrainingModules = "training_modules"
	Rules           = "rules"
)

var memoryTypes = []string{Reflexive, History, Persistent, Knowledge, TrainingModules, Rules}

// DefaultLocatorCandidates are probed when no locator executable is set.
var DefaultLocatorCandidates = []string{"es", "es.exe", `C:\Program Files\Everything\es.exe`}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	Root        ResolvedValue            `json:"memory_root"`
	Paths       map[string]ResolvedValue `json:"paths"`
	IndexDir    ResolvedValue            `json:"index_dir"`
	ProjectRoot ResolvedValue            `json:"project_root"`
	ExportDir   ResolvedValue            `json:"export_dir"`

	Locator           ResolvedValue `json:"locator"`
	LocatorCandidates []string      `json:"locator_candidates"`

	VectorEndpoint ResolvedValue `json:"vector_endpoint"`
	VectorAPIKey   ResolvedValue `json:"-"`
	RulesEndpoint  ResolvedValue `json:"rules_endpoint"`
	VectorTimeout  time.Duration `json:"vector_timeout"`

	LogLevel ResolvedValue `json:"log_level"`
	LogFile  ResolvedValue `json:"log_file"`
	LogJSON  bool          `json:"log_json"`

	Limits         Limits `json:"limits"`
	ProgressEvery  int    `json:"progress_every"`
	PruneOnRebuild bool   `json:"prune_on_rebuild"`
}

type fileConfig struct {
	MemoryRoot  string            `yaml:"memory_root"`
	Paths       map[string]string `yaml:"paths"`
	IndexDir    string            `yaml:"index_dir"`
	ProjectRoot string            `yaml:"project_root"`
	ExportDir   string            `yaml:"export_dir"`
	Locator     struct {
		Executable string   `yaml:"executable"`
		Candidates []string `yaml:"candidates"`
	} `yaml:"locator"`
	Vector struct {
		Endpoint      string `yaml:"endpoint"`
		APIKey        string `yaml:"api_key"`
		RulesEndpoint string `yaml:"rules_endpoint"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"vector"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
	Limits         Limits `yaml:"limits"`
	ProgressEvery  int    `yaml:"progress_every"`
	PruneOnRebuild bool   `yaml:"prune_on_rebuild"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".recall", "config.yaml")
}

func DefaultIndexDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".recall", "index")
}

// ResolveConfig layers the config file, RECALL_* environment variables and
// CLI flags, later sources winning. Per-type paths left unset fall back to
// <memory_root>/<type>.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = firstNonEmpty(os.Getenv("RECALL_CONFIG"), DefaultConfigPath())
	}

	out := ResolvedConfig{
		ConfigPath:        path,
		Paths:             map[string]ResolvedValue{},
		LocatorCandidates: DefaultLocatorCandidates,
		VectorTimeout:     30 * time.Second,
		LogLevel:          ResolvedValue{Value: "info", Source: SourceDefault, From: "built-in default"},
		Limits:            DefaultLimits(),
		ProgressEvery:     1000,
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.Root, cfg.MemoryRoot, SourceConfig, path)
		for _, t := range memoryTypes {
			v := out.Paths[t]
			apply(&v, cfg.Paths[t], SourceConfig, path)
			out.Paths[t] = v
		}
		apply(&out.IndexDir, cfg.IndexDir, SourceConfig, path)
		apply(&out.ProjectRoot, cfg.ProjectRoot, SourceConfig, path)
		apply(&out.ExportDir, cfg.ExportDir, SourceConfig, path)
		apply(&out.Locator, cfg.Locator.Executable, SourceConfig, path)
		if len(cfg.Locator.Candidates) > 0 {
			out.LocatorCandidates = cfg.Locator.Candidates
		}
		apply(&out.VectorEndpoint, cfg.Vector.Endpoint, SourceConfig, path)
		apply(&out.VectorAPIKey, cfg.Vector.APIKey, SourceConfig, path)
		apply(&out.RulesEndpoint, cfg.Vector.RulesEndpoint, SourceConfig, path)
		if s := strings.TrimSpace(cfg.Vector.Timeout); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return out, fmt.Errorf("parsing vector.timeout in %s: %w", path, err)
			}
			out.VectorTimeout = d
		}
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFile, cfg.Log.File, SourceConfig, path)
		out.LogJSON = cfg.Log.JSON
		out.Limits = mergeLimits(out.Limits, cfg.Limits)
		if cfg.ProgressEvery > 0 {
			out.ProgressEvery = cfg.ProgressEvery
		}
		out.PruneOnRebuild = cfg.PruneOnRebuild
	}

	applyEnv(&out.Root, "RECALL_ROOT")
	for _, t := range memoryTypes {
		v := out.Paths[t]
		applyEnv(&v, "RECALL_"+strings.ToUpper(t)+"_DIR")
		out.Paths[t] = v
	}
	applyEnv(&out.IndexDir, "RECALL_INDEX_DIR")
	applyEnv(&out.ProjectRoot, "RECALL_PROJECT_ROOT")
	applyEnv(&out.ExportDir, "RECALL_EXPORT_DIR")
	applyEnv(&out.Locator, "RECALL_LOCATOR")
	applyEnv(&out.VectorEndpoint, "RECALL_VECTOR_ENDPOINT")
	applyEnv(&out.VectorAPIKey, "RECALL_VECTOR_API_KEY")
	applyEnv(&out.RulesEndpoint, "RECALL_RULES_ENDPOINT")
	applyEnv(&out.LogLevel, "RECALL_LOG_LEVEL")
	applyEnv(&out.LogFile, "RECALL_LOG_FILE")
	if v := strings.TrimSpace(os.Getenv("RECALL_FINAL_RESULTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return out, fmt.Errorf("parsing RECALL_FINAL_RESULTS: %w", err)
		}
		out.Limits.FinalResults = n
	}

	apply(&out.Root, opts.CLIRoot, SourceCLI, "--root")
	apply(&out.IndexDir, opts.CLIIndexDir, SourceCLI, "--index")
	apply(&out.Locator, opts.CLILocator, SourceCLI, "--locator")
	apply(&out.VectorEndpoint, opts.CLIVector, SourceCLI, "--vector")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.ProjectRoot, opts.CLIProjectRoot, SourceCLI, "--project")

	out.fillDefaults()
	return out, nil
}

// fillDefaults derives unset paths from the memory root and expands "~".
func (r *ResolvedConfig) fillDefaults() {
	if r.Root.Set() {
		r.Root.Value = expandUserPath(r.Root.Value)
	}
	for _, t := range memoryTypes {
		v := r.Paths[t]
		if !v.Set() && r.Root.Set() {
			v = ResolvedValue{Value: filepath.Join(r.Root.Value, t), Source: r.Root.Source, From: r.Root.From}
		}
		v.Value = expandUserPath(v.Value)
		r.Paths[t] = v
	}
	if !r.IndexDir.Set() {
		r.IndexDir = ResolvedValue{Value: DefaultIndexDir(), Source: SourceDefault, From: "built-in default"}
	}
	r.IndexDir.Value = expandUserPath(r.IndexDir.Value)
	r.ProjectRoot.Value = expandUserPath(r.ProjectRoot.Value)
	if !r.ExportDir.Set() {
		r.ExportDir = r.Paths[Persistent]
	}
	r.ExportDir.Value = expandUserPath(r.ExportDir.Value)
	r.LogFile.Value = expandUserPath(r.LogFile.Value)
}

// Path returns the directory of memory type t, or "" when unset.
func (r ResolvedConfig) Path(t string) string {
	return r.Paths[t].Value
}

// Validate fails fast on a configuration that no retrieval path could use.
func (r ResolvedConfig) Validate() error {
	var errs []error
	for _, t := range []string{History, Persistent} {
		if !r.Paths[t].Set() {
			errs = append(errs, fmt.Errorf("%s path is required (set memory_root or paths.%s)", t, t))
		}
	}
	if !r.IndexDir.Set() {
		errs = append(errs, errors.New("index_dir is required"))
	}
	l := r.Limits
	for name, v := range map[string]int{
		"final_results":      l.FinalResults,
		"vector_top_k":       l.VectorTopK,
		"locator_max":        l.LocatorMax,
		"history_recent":     l.HistoryRecent,
		"verbatim_overfetch": l.VerbatimOverfetch,
		"swap_candidates":    l.SwapCandidates,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s must be positive, got %d", name, v))
		}
	}
	if l.IntentBoost < 0 {
		errs = append(errs, fmt.Errorf("limits.intent_boost cannot be negative, got %g", l.IntentBoost))
	}
	if l.VectorTopK < l.FinalResults {
		errs = append(errs, fmt.Errorf("limits.vector_top_k (%d) must be at least final_results (%d)", l.VectorTopK, l.FinalResults))
	}
	return errors.Join(errs...)
}

func mergeLimits(base, over Limits) Limits {
	pick := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	pick(&base.FinalResults, over.FinalResults)
	pick(&base.VectorTopK, over.VectorTopK)
	pick(&base.LocatorMax, over.LocatorMax)
	pick(&base.HistoryRecent, over.HistoryRecent)
	pick(&base.VerbatimOverfetch, over.VerbatimOverfetch)
	pick(&base.SwapCandidates, over.SwapCandidates)
	if over.IntentBoost != 0 {
		base.IntentBoost = over.IntentBoost
	}
	return base
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
