package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/basket/indiebench/internal/config"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

SUBCOMMANDS:
  %s run [options]            Run the benchmark (default when no subcommand)
                              Options: -models, -experiments, -variants, -modes,
                              -skip-judge, -reasoning, -quiet
  %s leaderboard              Score cached responses and print the leaderboard
  %s runs [-n <count>]        List recent benchmark runs from the ledger
  %s clear-cache              Delete every cached model response
  %s clear-scores             Strip judge scores, keeping generation responses
  %s doctor [-json]           Run preflight diagnostic checks

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  OPENROUTER_API_KEY        Required for run; never read from the config file
  OPENROUTER_BASE_URL       Override the OpenRouter endpoint
  INDIEBENCH_MODELS         Comma-separated model list override
  INDIEBENCH_JUDGE_MODEL    Judge model override

EXAMPLES:
  Full run:                 %s run
  One model, no judge:      %s run -models openai/gpt-5-nano -skip-judge
  Re-score after clearing:  %s clear-scores && %s run
  Print the leaderboard:    %s leaderboard
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	_ = config.LoadDotEnv(".env")

	configPath := flag.String("config", config.DefaultConfigPath, "path to YAML config file")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "run"
	args := flag.Args()
	if len(args) > 0 {
		cmd = strings.ToLower(strings.TrimSpace(args[0]))
		args = args[1:]
	}

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
	case "run":
		os.Exit(runBenchCommand(ctx, *configPath, args))
	case "leaderboard":
		os.Exit(runLeaderboardCommand(*configPath, args))
	case "runs":
		os.Exit(runRunsCommand(ctx, *configPath, args))
	case "clear-cache":
		os.Exit(runClearCacheCommand(*configPath))
	case "clear-scores":
		os.Exit(runClearScoresCommand(*configPath))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, *configPath, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}
