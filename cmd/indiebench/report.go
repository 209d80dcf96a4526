package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/config"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/ledger"
	"github.com/basket/indiebench/internal/score"
)

// runLeaderboardCommand scores whatever the cache holds and prints the
// ranking without touching the network.
func runLeaderboardCommand(configPath string, args []string) int {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	export := fs.Bool("export", false, "also write a timestamped leaderboard JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	store := cache.NewStore(cfg.CacheDir)
	models := store.Models()
	if len(models) == 0 {
		fmt.Println("cache is empty; run the benchmark first")
		return 0
	}

	scorer := score.NewScorer(store, cfg.Variants, cfg.Modes)
	scores := make([]score.ModelScore, 0, len(models))
	for _, slug := range models {
		scores = append(scores, scorer.ScoreModel(cache.ModelID(slug)))
	}
	score.SortByIndex(scores)

	fmt.Print(score.Summary(scores))
	lifetime := cost.NewLog(cfg.ResultsDir).Lifetime()
	if lifetime > 0 {
		fmt.Printf("\nlifetime cost: $%.4f\n", lifetime)
	}

	if *export {
		path, err := score.Export(cfg.ResultsDir, scores, lifetime)
		if err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			return 1
		}
		fmt.Println("leaderboard written to", path)
	}
	return 0
}

// runRunsCommand lists recent benchmark runs recorded in the ledger.
func runRunsCommand(ctx context.Context, configPath string, args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("n", 20, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledger:", err)
		return 1
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledger:", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return 0
	}

	fmt.Printf("%-36s  %-20s  %-9s  %8s  %s\n", "RUN", "STARTED", "STATUS", "COST", "MODELS")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-9s  %8s  %s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			fmt.Sprintf("$%.4f", r.CostUSD),
			strings.Join(r.Models, ","),
		)
	}
	return 0
}

// runClearCacheCommand deletes every cached record, forcing full regeneration.
func runClearCacheCommand(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	n, err := cache.NewStore(cfg.CacheDir).ClearAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, "clear cache:", err)
		return 1
	}
	fmt.Printf("removed %d cached records\n", n)
	return 0
}

// runClearScoresCommand strips judge verdicts so the next run re-judges
// every cached response without regenerating it.
func runClearScoresCommand(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	n, err := cache.NewStore(cfg.CacheDir).ClearJudgeScores()
	if err != nil {
		fmt.Fprintln(os.Stderr, "clear scores:", err)
		return 1
	}
	fmt.Printf("cleared judge scores on %d records\n", n)
	return 0
}
