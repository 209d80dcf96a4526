package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/basket/indiebench/internal/bench"
	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/config"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/judge"
	"github.com/basket/indiebench/internal/ledger"
	"github.com/basket/indiebench/internal/openrouter"
	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/score"
	"github.com/basket/indiebench/internal/telemetry"
)

// runBenchCommand executes the full benchmark: generation and judging per
// model, then scoring, leaderboard export, and cost log append.
func runBenchCommand(ctx context.Context, configPath string, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	models := fs.String("models", "", "comma-separated model IDs (overrides config)")
	experiments := fs.String("experiments", "", "comma-separated experiments: identity,resistance,stability")
	variants := fs.String("variants", "", "comma-separated system prompt variants")
	modes := fs.String("modes", "", "comma-separated delivery modes")
	skipJudge := fs.Bool("skip-judge", false, "generate responses without judging them")
	reasoning := fs.String("reasoning", "auto", "reasoning effort: auto or off")
	quiet := fs.Bool("quiet", false, "log to file only, keep stdout for results")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	applyListFlag(&cfg.Models, *models)
	applyListFlag(&cfg.Experiments, *experiments)
	applyListFlag(&cfg.Variants, *variants)
	applyListFlag(&cfg.Modes, *modes)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "OPENROUTER_API_KEY is not set")
		return 2
	}

	logger, closer, err := telemetry.NewLogger(cfg.ResultsDir, cfg.LogLevel, *quiet || cfg.Quiet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("benchmark starting", "version", Version,
		"models", len(cfg.Models), "experiments", cfg.Experiments,
		"variants", cfg.Variants, "modes", cfg.Modes)

	provider, err := obs.Init(ctx, cfg.OTel)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
	}
	defer provider.Shutdown(context.Background())
	metrics, err := obs.NewMetrics(provider.Meter)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	clientOpts := []openrouter.Option{
		openrouter.WithLogger(logger),
		openrouter.WithTelemetry(provider.Tracer, metrics),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openrouter.WithBaseURL(cfg.BaseURL))
	}
	client := openrouter.New(cfg.APIKey, clientOpts...)

	// Live pricing also tells us which models exist; an unreachable models
	// endpoint degrades to static pricing rather than blocking the run.
	if _, err := client.FetchPricing(ctx); err != nil {
		logger.Warn("pricing fetch failed, using static pricing table", "error", err)
	}
	runModels := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		if !client.ValidateModel(ctx, m) {
			logger.Warn("skipping unknown model", "model", m)
			continue
		}
		runModels = append(runModels, m)
	}
	if len(runModels) == 0 {
		fmt.Fprintln(os.Stderr, "no valid models to run")
		return 2
	}

	store := cache.NewStore(cfg.CacheDir)
	ledgerStore, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Error("ledger open failed", "error", err)
		return 1
	}
	defer ledgerStore.Close()

	var judger *judge.Judger
	if !*skipJudge {
		judger = judge.New(client, cfg.JudgeModel, logger)
	}

	runner := bench.NewRunner(bench.RunnerOptions{
		Caller:          client,
		Store:           store,
		Judger:          judger,
		Ledger:          ledgerStore,
		Experiments:     cfg.Experiments,
		Variants:        cfg.Variants,
		Modes:           cfg.Modes,
		Workers:         cfg.Workers,
		Retries:         cfg.Retries,
		BackoffBase:     cfg.BackoffBase(),
		ReasoningEffort: *reasoning,
		Logger:          logger,
		Tracer:          provider.Tracer,
		Metrics:         metrics,
	})

	runID, err := ledgerStore.BeginRun(ctx, runModels, cfg.Experiments, cfg.Variants, cfg.Modes)
	if err != nil {
		logger.Error("ledger run insert failed", "error", err)
		runID = ""
	}

	session := cost.NewSession()
	anyFailed := false
	for _, modelID := range runModels {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", "remaining_model", modelID)
			anyFailed = true
			break
		}
		res, err := runner.RunModel(ctx, runID, modelID, session)
		if err != nil {
			logger.Error("model run aborted", "model", modelID, "error", err)
			anyFailed = true
			continue
		}
		for _, f := range res.Failures {
			logger.Error("task failed", "task", f.TaskID, "error", f.Err)
		}
		if res.Failed() {
			anyFailed = true
		}
	}

	_, _, sessionCost := session.Totals()
	if runID != "" {
		status := ledger.StatusSucceeded
		if anyFailed {
			status = ledger.StatusFailed
		}
		if err := ledgerStore.FinishRun(ctx, runID, status, sessionCost); err != nil {
			logger.Warn("ledger run finish failed", "error", err)
		}
	}

	lifetime, err := cost.NewLog(cfg.ResultsDir).Append(session)
	if err != nil {
		logger.Warn("cost log append failed", "error", err)
	}

	scorer := score.NewScorer(store, cfg.Variants, cfg.Modes)
	scores := make([]score.ModelScore, 0, len(runModels))
	for _, modelID := range runModels {
		scores = append(scores, scorer.ScoreModel(modelID))
	}
	score.SortByIndex(scores)

	exportPath, err := score.Export(cfg.ResultsDir, scores, lifetime)
	if err != nil {
		logger.Error("leaderboard export failed", "error", err)
		return 1
	}

	fmt.Print(score.Summary(scores))
	fmt.Printf("\nsession cost: $%.4f (lifetime $%.4f)\n", sessionCost, lifetime)
	fmt.Println("leaderboard written to", exportPath)

	if anyFailed {
		return 1
	}
	return 0
}

// applyListFlag replaces dst with the flag's comma-separated values, when set.
func applyListFlag(dst *[]string, raw string) {
	if raw == "" {
		return
	}
	*dst = config.SplitList(raw)
}
