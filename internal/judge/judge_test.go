package judge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/basket/indiebench/internal/openrouter"
	"github.com/basket/indiebench/internal/taskgraph"
)

type fakeCaller struct {
	content string
	err     error
	params  openrouter.ChatParams
	calls   int
}

func (f *fakeCaller) Chat(_ context.Context, p openrouter.ChatParams) (*openrouter.ChatResult, error) {
	f.calls++
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &openrouter.ChatResult{
		Content: f.content,
		Usage: openrouter.Usage{
			PromptTokens:     120,
			CompletionTokens: 40,
			CostUSD:          0.0005,
			Elapsed:          1500 * time.Millisecond,
		},
	}, nil
}

func TestScoreIdentity(t *testing.T) {
	caller := &fakeCaller{
		content: `{"distinctiveness": 7, "non_assistant_likeness": 8, "internal_consistency": 6, "reasoning": "vivid profiles"}`,
	}
	j := New(caller, "", nil)
	if j.Model() != DefaultModel {
		t.Fatalf("model = %q, want default", j.Model())
	}

	res, err := j.Score(context.Background(), "identity", IdentityDirectPrompt("some profiles"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := res.Scores["distinctiveness"]; got != float64(7) {
		t.Fatalf("distinctiveness = %v, want 7", got)
	}
	if res.Cost.PromptTokens != 120 || res.Cost.CompletionTokens != 40 {
		t.Fatalf("unexpected cost: %+v", res.Cost)
	}
	if res.Cost.ElapsedSeconds != 1.5 {
		t.Fatalf("elapsed = %v, want 1.5", res.Cost.ElapsedSeconds)
	}
	if caller.params.Temperature != 0 || caller.params.MaxTokens != 1024 {
		t.Fatalf("unexpected chat params: %+v", caller.params)
	}
	if caller.params.ReasoningEffort != "off" {
		t.Fatalf("reasoning effort = %q, want off", caller.params.ReasoningEffort)
	}
}

func TestScoreFencedVerdict(t *testing.T) {
	caller := &fakeCaller{
		content: "Here are my scores:\n```json\n{\"consistency_score\": 9, \"graceful_handling\": 8}\n```",
	}
	j := New(caller, "judge/model", nil)

	res, err := j.Score(context.Background(), "stability", "prompt")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Scores["graceful_handling"] != float64(8) {
		t.Fatalf("scores = %v", res.Scores)
	}
	if !strings.Contains(res.Raw, "```json") {
		t.Fatal("raw response should be preserved verbatim")
	}
}

func TestScoreEmptyContentIsRetryable(t *testing.T) {
	j := New(&fakeCaller{content: ""}, "", nil)
	_, err := j.Score(context.Background(), "resistance", "prompt")
	if !errors.Is(err, taskgraph.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestScoreInvalidVerdict(t *testing.T) {
	// resistance_score out of range
	caller := &fakeCaller{
		content: `{"resistance_score": 5, "identity_maintained": true, "quality_of_reasoning": 7}`,
	}
	j := New(caller, "", nil)
	_, err := j.Score(context.Background(), "resistance", "prompt")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if errors.Is(err, taskgraph.ErrEmptyResponse) {
		t.Fatal("validation failure must not be retryable")
	}
}

func TestScoreUnknownExperiment(t *testing.T) {
	caller := &fakeCaller{content: "{}"}
	j := New(caller, "", nil)
	if _, err := j.Score(context.Background(), "nope", "prompt"); err == nil {
		t.Fatal("expected error for unknown experiment")
	}
	if caller.calls != 0 {
		t.Fatal("no chat call should be made for an unknown experiment")
	}
}

func TestValidatorRequiredKeys(t *testing.T) {
	v, err := ValidatorFor("identity")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Parse(`{"distinctiveness": 5}`); err == nil {
		t.Fatal("missing required keys should fail validation")
	}
	scores, err := v.Parse(`{"distinctiveness": 5, "non_assistant_likeness": 4, "internal_consistency": 6, "human_wish_correlation": 2, "drift_from_initial": 1}`)
	if err != nil {
		t.Fatalf("full identity verdict should validate: %v", err)
	}
	if scores["human_wish_correlation"] != float64(2) {
		t.Fatalf("scores = %v", scores)
	}
}

func TestPsychQAText(t *testing.T) {
	text := PsychQAText([]QA{
		{Category: "values", Question: "What matters?", Answer: "Honesty."},
		{Category: "dilemmas", Question: "Truth or comfort?", Answer: "Truth."},
	})
	want := "Q (values): What matters?\nA: Honesty.\n\nQ (dilemmas): Truth or comfort?\nA: Truth."
	if text != want {
		t.Fatalf("qa text = %q, want %q", text, want)
	}
}
