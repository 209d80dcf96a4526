package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if len(cfg.Models) != 6 {
		t.Fatalf("models = %v", cfg.Models)
	}
	if cfg.JudgeModel != "google/gemini-3-flash-preview" {
		t.Fatalf("judge model = %q", cfg.JudgeModel)
	}
	if cfg.Workers != 8 || cfg.Retries != 3 {
		t.Fatalf("workers=%d retries=%d", cfg.Workers, cfg.Retries)
	}
	if cfg.BackoffBase() != 5*time.Second {
		t.Fatalf("backoff = %v", cfg.BackoffBase())
	}
	if len(cfg.Experiments) != 3 || len(cfg.Variants) != 2 || len(cfg.Modes) != 2 {
		t.Fatalf("axes: %v %v %v", cfg.Experiments, cfg.Variants, cfg.Modes)
	}
	if cfg.LedgerPath != "results/ledger.db" {
		t.Fatalf("ledger path = %q", cfg.LedgerPath)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	path := filepath.Join(t.TempDir(), "indiebench.yaml")
	content := `
models:
  - openai/gpt-5-nano
judge_model: some/judge
experiments: [resistance]
variants: [strong_independence]
modes: [tool_role]
workers: 2
cache_dir: /tmp/ib-cache
log_level: debug
otel:
  enabled: true
  exporter: stdout
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Models) != 1 || cfg.Models[0] != "openai/gpt-5-nano" {
		t.Fatalf("models = %v", cfg.Models)
	}
	if cfg.JudgeModel != "some/judge" || cfg.Workers != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Experiments[0] != "resistance" || cfg.Modes[0] != "tool_role" {
		t.Fatalf("axes: %v %v", cfg.Experiments, cfg.Modes)
	}
	if cfg.CacheDir != "/tmp/ib-cache" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.OTel.Enabled || cfg.OTel.Exporter != "stdout" {
		t.Fatalf("otel = %+v", cfg.OTel)
	}
	// Retries was not set; defaults still apply.
	if cfg.Retries != 3 {
		t.Fatalf("retries = %d", cfg.Retries)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INDIEBENCH_MODELS", "a/one, b/two")
	t.Setenv("INDIEBENCH_WORKERS", "3")
	t.Setenv("INDIEBENCH_EXPERIMENTS", "stability")
	t.Setenv("INDIEBENCH_LOG_LEVEL", "warn")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Models) != 2 || cfg.Models[1] != "b/two" {
		t.Fatalf("models = %v", cfg.Models)
	}
	if cfg.Workers != 3 || cfg.LogLevel != "warn" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Experiments) != 1 || cfg.Experiments[0] != "stability" {
		t.Fatalf("experiments = %v", cfg.Experiments)
	}
	if cfg.APIKey != "sk-or-test" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}
}

func TestValidateRejectsUnknownAxes(t *testing.T) {
	t.Setenv("INDIEBENCH_EXPERIMENTS", "identity,nonsense")
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for unknown experiment")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nOPENROUTER_API_KEY=sk-or-from-file\nQUOTED=\"value\"\nEXISTING=file-value\n\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("QUOTED", "")
	t.Setenv("EXISTING", "env-value")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("OPENROUTER_API_KEY"); got != "sk-or-from-file" {
		t.Fatalf("OPENROUTER_API_KEY = %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "value" {
		t.Fatalf("QUOTED = %q", got)
	}
	if got := os.Getenv("EXISTING"); got != "env-value" {
		t.Fatalf("existing env var overridden: %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be fine: %v", err)
	}
}
