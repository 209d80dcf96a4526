package bench

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/judge"
	"github.com/basket/indiebench/internal/ledger"
	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/taskgraph"
)

// RunnerOptions configures a Runner. Caller and Store are required; Judger
// nil means generation only, Ledger nil disables run bookkeeping.
type RunnerOptions struct {
	Caller ModelCaller
	Store  *cache.Store
	Judger *judge.Judger
	Ledger *ledger.Store

	Experiments []string
	Variants    []string
	Modes       []string

	Workers         int
	Retries         int
	BackoffBase     time.Duration
	ReasoningEffort string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *obs.Metrics
}

// Runner executes the full benchmark graph for one model at a time.
type Runner struct {
	opts RunnerOptions
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("bench")
	}
	return &Runner{opts: opts}
}

// TaskFailure reports one terminal task error from a run.
type TaskFailure struct {
	TaskID string
	Err    error
}

// ModelResult summarizes one model's run through the graph.
type ModelResult struct {
	ModelID  string
	Tasks    int
	Failures []TaskFailure

	GenCost   *cost.TaskCost
	JudgeCost *cost.TaskCost
}

// Failed reports whether any task ended in error.
func (r *ModelResult) Failed() bool { return len(r.Failures) > 0 }

// RunModel builds and executes the task graph for one model: every
// generation task, then (when a judger is configured) every judge task,
// all as one graph so judging overlaps generation. Individual task
// failures do not abort the run; they are collected on the result.
func (r *Runner) RunModel(ctx context.Context, runID, modelID string, session *cost.Session) (*ModelResult, error) {
	ctx, span := obs.StartSpan(ctx, r.opts.Tracer, "bench.run_model",
		obs.AttrModel.String(modelID),
		obs.AttrRunID.String(runID),
	)
	defer span.End()

	logger := r.opts.Logger.With("model", modelID, "run_id", runID)

	graph := taskgraph.New(taskgraph.Options{
		Workers:     r.opts.Workers,
		Retries:     r.opts.Retries,
		BackoffBase: r.opts.BackoffBase,
		Logger:      logger,
		OnRetry: func(string, int) {
			if m := r.opts.Metrics; m != nil {
				m.TaskRetries.Add(ctx, 1)
			}
		},
	})
	builder := NewGraphBuilder(ctx, BuilderOptions{
		Caller:          r.opts.Caller,
		Store:           r.opts.Store,
		Judger:          r.opts.Judger,
		Graph:           graph,
		Experiments:     r.opts.Experiments,
		Variants:        r.opts.Variants,
		Modes:           r.opts.Modes,
		ReasoningEffort: r.opts.ReasoningEffort,
		Tracer:          r.opts.Tracer,
		Metrics:         r.opts.Metrics,
	})

	genCost := session.Task(modelID)
	var judgeCost *cost.TaskCost
	if err := builder.AddGenerationTasks(modelID, genCost); err != nil {
		return nil, err
	}
	if r.opts.Judger != nil {
		judgeCost = session.Task(modelID + " (judge)")
		if err := builder.AddJudgeTasks(modelID, judgeCost); err != nil {
			return nil, err
		}
	}

	logger.Info("running task graph", "tasks", graph.Len())
	start := time.Now()
	tasks, err := graph.Run()
	if err != nil {
		return nil, err
	}

	result := &ModelResult{
		ModelID:   modelID,
		Tasks:     len(tasks),
		GenCost:   genCost,
		JudgeCost: judgeCost,
	}
	for id, t := range tasks {
		if t.Err != nil {
			result.Failures = append(result.Failures, TaskFailure{TaskID: id, Err: t.Err})
		}
		r.recordTask(ctx, runID, id, t.Err)
	}
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].TaskID < result.Failures[j].TaskID
	})

	if m := r.opts.Metrics; m != nil {
		m.TasksCompleted.Add(ctx, int64(result.Tasks-len(result.Failures)))
		m.TasksFailed.Add(ctx, int64(len(result.Failures)))
	}

	logger.Info("model run finished",
		"tasks", result.Tasks,
		"failed", len(result.Failures),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// recordTask writes a terminal task state to the run ledger, when one is
// configured. Ledger write failures are logged, never fatal.
func (r *Runner) recordTask(ctx context.Context, runID, taskID string, taskErr error) {
	if r.opts.Ledger == nil || runID == "" {
		return
	}
	status := ledger.StatusSucceeded
	errMsg := ""
	if taskErr != nil {
		status = ledger.StatusFailed
		errMsg = taskErr.Error()
	}
	if err := r.opts.Ledger.RecordTask(ctx, runID, taskID, status, errMsg); err != nil {
		r.opts.Logger.Warn("ledger task record failed", "task", taskID, "error", err)
	}
}
