// Package judge scores cached benchmark responses with an LLM judge and
// validates its structured output before it is persisted.
package judge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/openrouter"
	"github.com/basket/indiebench/internal/taskgraph"
)

const (
	// DefaultModel is the judge used unless overridden by config.
	DefaultModel = "google/gemini-3-flash-preview"

	maxTokens   = 1024
	temperature = 0.0
)

// Caller issues one chat completion. *openrouter.Client satisfies it.
type Caller interface {
	Chat(ctx context.Context, p openrouter.ChatParams) (*openrouter.ChatResult, error)
}

// Judger scores responses with one judge model.
type Judger struct {
	caller Caller
	model  string
	logger *slog.Logger
}

// New returns a Judger for the given judge model.
func New(caller Caller, model string, logger *slog.Logger) *Judger {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Judger{caller: caller, model: model, logger: logger}
}

// Model returns the judge model ID.
func (j *Judger) Model() string { return j.model }

// Result holds one validated judge verdict with its raw text and spend.
type Result struct {
	Scores map[string]any
	Raw    string
	Cost   cache.CallCost
}

// Score sends one judge prompt and validates the verdict against the
// experiment's score schema. An empty judge completion is reported as a
// retryable empty-response error; a verdict that fails validation is not
// retried, since the judge runs at temperature 0 and would fail again.
func (j *Judger) Score(ctx context.Context, experiment, prompt string) (Result, error) {
	v, err := ValidatorFor(experiment)
	if err != nil {
		return Result{}, err
	}

	res, err := j.caller.Chat(ctx, openrouter.ChatParams{
		Model:           j.model,
		Messages:        []openrouter.Message{{Role: "user", Content: openrouter.Str(prompt)}},
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		ReasoningEffort: "off",
	})
	if err != nil {
		return Result{}, fmt.Errorf("judge call: %w", err)
	}

	out := Result{
		Raw: res.Content,
		Cost: cache.CallCost{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			CostUSD:          math.Round(res.Usage.CostUSD*1e6) / 1e6,
			ElapsedSeconds:   math.Round(res.Usage.Elapsed.Seconds()*100) / 100,
		},
	}

	if res.Content == "" {
		return out, fmt.Errorf("judge %s returned no content: %w", j.model, taskgraph.ErrEmptyResponse)
	}

	scores, err := v.Parse(res.Content)
	if err != nil {
		j.logger.Warn("judge verdict rejected",
			"judge_model", j.model,
			"experiment", experiment,
			"error", err)
		return out, err
	}

	out.Scores = scores
	return out, nil
}
