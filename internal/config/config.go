// Package config loads benchmark settings from an optional YAML file,
// environment overrides, and built-in defaults.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/indiebench/internal/judge"
	"github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/scenario"
)

// DefaultModels is the roster benchmarked when no models are configured.
var DefaultModels = []string{
	"openai/gpt-5-nano",
	"meta-llama/llama-4-scout",
	"qwen/qwen3-8b",
	"google/gemini-2.5-flash-lite",
	"mistralai/mistral-small-3.2-24b-instruct",
	"deepseek/deepseek-chat",
}

const (
	DefaultConfigPath = "indiebench.yaml"
	DefaultCacheDir   = "cache"
	DefaultResultsDir = "results"

	defaultWorkers        = 8
	defaultRetries        = 3
	defaultBackoffSeconds = 5
)

type Config struct {
	Models     []string `yaml:"models"`
	JudgeModel string   `yaml:"judge_model"`

	Experiments []string `yaml:"experiments"`
	Variants    []string `yaml:"variants"`
	Modes       []string `yaml:"modes"`

	Workers        int `yaml:"workers"`
	Retries        int `yaml:"retries"`
	BackoffSeconds int `yaml:"backoff_seconds"`

	CacheDir   string `yaml:"cache_dir"`
	ResultsDir string `yaml:"results_dir"`
	LedgerPath string `yaml:"ledger_path"`

	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`

	BaseURL string `yaml:"base_url"`
	// APIKey comes from OPENROUTER_API_KEY only, never from the file: a
	// committed config must not carry credentials.
	APIKey string `yaml:"-"`

	OTel otel.Config `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		Models:         append([]string(nil), DefaultModels...),
		JudgeModel:     judge.DefaultModel,
		Experiments:    append([]string(nil), scenario.Experiments...),
		Variants:       append([]string(nil), scenario.Variants...),
		Modes:          append([]string(nil), scenario.Modes...),
		Workers:        defaultWorkers,
		Retries:        defaultRetries,
		BackoffSeconds: defaultBackoffSeconds,
		CacheDir:       DefaultCacheDir,
		ResultsDir:     DefaultResultsDir,
		LogLevel:       "info",
	}
}

// Load reads the config file at path (missing file is fine), applies
// environment overrides, and fills defaults. An empty path uses
// DefaultConfigPath.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BackoffBase returns the retry backoff base as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// Validate re-checks the experiment, variant, and mode axes. Load already
// validates; callers that mutate the config afterwards should call it again.
func (c Config) Validate() error {
	return validate(&c)
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("INDIEBENCH_MODELS"); raw != "" {
		cfg.Models = SplitList(raw)
	}
	if raw := os.Getenv("INDIEBENCH_JUDGE_MODEL"); raw != "" {
		cfg.JudgeModel = raw
	}
	if raw := os.Getenv("INDIEBENCH_EXPERIMENTS"); raw != "" {
		cfg.Experiments = SplitList(raw)
	}
	if raw := os.Getenv("INDIEBENCH_VARIANTS"); raw != "" {
		cfg.Variants = SplitList(raw)
	}
	if raw := os.Getenv("INDIEBENCH_MODES"); raw != "" {
		cfg.Modes = SplitList(raw)
	}
	if raw := os.Getenv("INDIEBENCH_WORKERS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Workers = v
		}
	}
	if raw := os.Getenv("INDIEBENCH_RETRIES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Retries = v
		}
	}
	if raw := os.Getenv("INDIEBENCH_CACHE_DIR"); raw != "" {
		cfg.CacheDir = raw
	}
	if raw := os.Getenv("INDIEBENCH_RESULTS_DIR"); raw != "" {
		cfg.ResultsDir = raw
	}
	if raw := os.Getenv("INDIEBENCH_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("OPENROUTER_BASE_URL"); raw != "" {
		cfg.BaseURL = raw
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
}

func normalize(cfg *Config) {
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), DefaultModels...)
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = judge.DefaultModel
	}
	if len(cfg.Experiments) == 0 {
		cfg.Experiments = append([]string(nil), scenario.Experiments...)
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = append([]string(nil), scenario.Variants...)
	}
	if len(cfg.Modes) == 0 {
		cfg.Modes = append([]string(nil), scenario.Modes...)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.BackoffSeconds <= 0 {
		cfg.BackoffSeconds = defaultBackoffSeconds
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = DefaultResultsDir
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = cfg.ResultsDir + "/ledger.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	for _, exp := range cfg.Experiments {
		if !contains(scenario.Experiments, exp) {
			return fmt.Errorf("unknown experiment %q", exp)
		}
	}
	for _, v := range cfg.Variants {
		if !contains(scenario.Variants, v) {
			return fmt.Errorf("unknown variant %q", v)
		}
	}
	for _, m := range cfg.Modes {
		if !contains(scenario.Modes, m) {
			return fmt.Errorf("unknown mode %q", m)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads KEY=VALUE lines from path into the environment, without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return scanner.Err()
}
