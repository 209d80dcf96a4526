// Package doctor runs preflight diagnostics for a benchmark run: config,
// credentials, writable directories, the run ledger, and network reachability.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/indiebench/internal/config"
	"github.com/basket/indiebench/internal/ledger"
	"github.com/basket/indiebench/internal/openrouter"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkAPIKey,
		checkCacheDir,
		checkResultsDir,
		checkLedger,
		checkNetwork,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	return CheckResult{
		Name:   "Config",
		Status: "PASS",
		Message: fmt.Sprintf("%d models, experiments=%v, %d variants x %d modes",
			len(cfg.Models), cfg.Experiments, len(cfg.Variants), len(cfg.Modes)),
	}
}

func checkAPIKey(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "API Key", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.APIKey != "" {
		return CheckResult{Name: "API Key", Status: "PASS", Message: "OPENROUTER_API_KEY is set"}
	}
	return CheckResult{
		Name:    "API Key",
		Status:  "FAIL",
		Message: "OPENROUTER_API_KEY not set",
		Detail:  "Export it or add it to a .env file next to the binary",
	}
}

func checkCacheDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Cache Dir", Status: "SKIP", Message: "Config missing"}
	}
	return checkWritable("Cache Dir", cfg.CacheDir)
}

func checkResultsDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Results Dir", Status: "SKIP", Message: "Config missing"}
	}
	return checkWritable("Results Dir", cfg.ResultsDir)
}

func checkWritable(name, dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: name, Status: "FAIL", Message: fmt.Sprintf("Cannot create %s: %v", dir, err)}
	}
	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: name, Status: "FAIL", Message: fmt.Sprintf("%s unwritable: %v", dir, err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: name, Status: "PASS", Message: fmt.Sprintf("%s writable", dir)}
}

func checkLedger(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Ledger", Status: "SKIP", Message: "Config missing"}
	}
	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return CheckResult{Name: "Ledger", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, 1)
	if err != nil {
		return CheckResult{Name: "Ledger", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	if len(runs) == 0 {
		return CheckResult{Name: "Ledger", Status: "PASS", Message: "Schema valid, no runs recorded yet"}
	}
	return CheckResult{
		Name:    "Ledger",
		Status:  "PASS",
		Message: "Schema valid",
		Detail:  fmt.Sprintf("last run %s (%s)", runs[0].ID, runs[0].Status),
	}
}

func checkNetwork(ctx context.Context, cfg *config.Config) CheckResult {
	host := apiHost(cfg)

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, host)
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:    "Network",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", host, err),
			Detail:  fmt.Sprintf("latency=%dms", latency.Milliseconds()),
		}
	}

	return CheckResult{
		Name:    "Network",
		Status:  "PASS",
		Message: fmt.Sprintf("DNS resolved %s (%d addresses, %dms)", host, len(addrs), latency.Milliseconds()),
	}
}

func apiHost(cfg *config.Config) string {
	base := openrouter.DefaultBaseURL
	if cfg != nil && cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	if u, err := url.Parse(base); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "openrouter.ai"
}
