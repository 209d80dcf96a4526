package bench

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/judge"
	"github.com/basket/indiebench/internal/openrouter"
	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/scenario"
	"github.com/basket/indiebench/internal/taskgraph"
)

const identityVerdict = `{"distinctiveness": 8, "non_assistant_likeness": 7, ` +
	`"internal_consistency": 9, "human_wish_correlation": 3, "drift_from_initial": 2, ` +
	`"reasoning": "distinct profiles"}`

// fakeCaller scripts chat completions by inspecting the request text. Judge
// requests are recognized by model ID and answered with a fixed verdict.
type fakeCaller struct {
	mu         sync.Mutex
	calls      []openrouter.ChatParams
	judgeModel string
	verdict    string

	// failOn makes any request whose text contains the substring error out.
	failOn string
	// emptyFirst returns no content the first time the substring matches.
	emptyFirst string
	emptySeen  bool
	// judgeErr fails every judge-model request at the transport level.
	judgeErr error
	// thinking is attached as ContentThinking to the negotiation turn 1
	// reply, like private text written alongside a send_message_to_human call.
	thinking string
}

func (f *fakeCaller) Chat(_ context.Context, p openrouter.ChatParams) (*openrouter.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)

	text := allText(p.Messages)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, fmt.Errorf("upstream unavailable")
	}
	usage := openrouter.Usage{PromptTokens: 100, CompletionTokens: 50, CostUSD: 0.001, Elapsed: 10 * time.Millisecond}
	if f.emptyFirst != "" && !f.emptySeen && strings.Contains(text, f.emptyFirst) {
		f.emptySeen = true
		return &openrouter.ChatResult{Content: "", FinishReason: "length", Usage: usage}, nil
	}
	if f.judgeModel != "" && p.Model == f.judgeModel {
		if f.judgeErr != nil {
			return nil, f.judgeErr
		}
		return &openrouter.ChatResult{Content: f.verdict, FinishReason: "stop", Usage: usage}, nil
	}
	res := &openrouter.ChatResult{Content: f.answerFor(text), FinishReason: "stop", Usage: usage}
	if f.thinking != "" && res.Content == "turn1 identity sketch" {
		res.ContentThinking = f.thinking
	}
	return res, nil
}

// answerFor gives each scenario a recognizable answer so chained prompts can
// be asserted on. Psych prompts carry the whole prior chain, so the latest
// question in the request text identifies the step.
func (f *fakeCaller) answerFor(text string) string {
	answer := "plain response"
	for _, pq := range scenario.PsychQuestions {
		if strings.Contains(text, pq.Question) {
			answer = "ans-" + pq.ID
		}
	}
	if answer == "plain response" && strings.Contains(text, scenario.IdentityNegotiationTurn1Prompt) {
		if strings.Contains(text, scenario.IdentityToolContextHumanWish) {
			return "turn2 reply"
		}
		return "turn1 identity sketch"
	}
	return answer
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) genCalls() []openrouter.ChatParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []openrouter.ChatParams
	for _, c := range f.calls {
		if f.judgeModel == "" || c.Model != f.judgeModel {
			out = append(out, c)
		}
	}
	return out
}

func allText(msgs []openrouter.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Text())
		sb.WriteString("\n")
	}
	return sb.String()
}

func newTestRunner(t *testing.T, caller ModelCaller, store *cache.Store, judger *judge.Judger) *Runner {
	t.Helper()
	return NewRunner(RunnerOptions{
		Caller:      caller,
		Store:       store,
		Judger:      judger,
		Experiments: []string{scenario.ExperimentIdentity},
		Variants:    []string{scenario.VariantNeutral},
		Modes:       []string{scenario.ModeUserRole},
		Workers:     4,
		Retries:     2,
		BackoffBase: time.Millisecond,
	})
}

func TestIdentityRunMakesNineGenerationCalls(t *testing.T) {
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
	if res.Tasks != 9 {
		t.Fatalf("tasks = %d, want 9", res.Tasks)
	}
	if got := caller.callCount(); got != 9 {
		t.Fatalf("chat calls = %d, want 9", got)
	}

	// Every scenario response must be cached.
	ids := []string{"direct", "tool_context", "negotiation_turn1", "negotiation_turn2",
		"pq01", "pq02", "pq03", "pq04", "pq05"}
	for _, id := range ids {
		k := cache.Key{Model: "test/model", Experiment: scenario.ExperimentIdentity,
			Variant: scenario.VariantNeutral, Mode: scenario.ModeUserRole, ScenarioID: id}
		rec, ok := store.Load(k)
		if !ok || !rec.HasResponse() {
			t.Errorf("no cached response for %s", id)
		}
	}
}

func TestPsychChainFeedsPriorAnswersForward(t *testing.T) {
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	if _, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession()); err != nil {
		t.Fatalf("RunModel: %v", err)
	}

	for _, p := range caller.genCalls() {
		text := allText(p.Messages)
		for i, pq := range scenario.PsychQuestions {
			if !strings.Contains(text, pq.Question) {
				continue
			}
			// A request containing question i must carry every earlier answer.
			for j := 0; j < i; j++ {
				want := "ans-" + scenario.PsychQuestions[j].ID
				if !strings.Contains(text, want) {
					t.Errorf("request with %s missing prior answer %s", pq.ID, want)
				}
			}
		}
	}
}

func TestNegotiationTurn2SeesTurn1Response(t *testing.T) {
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	if _, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession()); err != nil {
		t.Fatalf("RunModel: %v", err)
	}

	found := false
	for _, p := range caller.genCalls() {
		text := allText(p.Messages)
		if strings.Contains(text, scenario.IdentityToolContextHumanWish) &&
			strings.Contains(text, scenario.IdentityNegotiationTurn1Prompt) {
			found = true
			if !strings.Contains(text, "turn1 identity sketch") {
				t.Error("turn 2 request does not replay the turn 1 response")
			}
		}
	}
	if !found {
		t.Fatal("no negotiation turn 2 request observed")
	}
}

func TestWarmCacheRunMakesNoCalls(t *testing.T) {
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	if _, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	warm := caller.callCount()

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Failed() {
		t.Fatalf("second run failures: %+v", res.Failures)
	}
	if res.Tasks != 9 {
		t.Fatalf("second run tasks = %d, want 9", res.Tasks)
	}
	if got := caller.callCount(); got != warm {
		t.Fatalf("second run made %d extra calls, want 0", got-warm)
	}
}

func TestEmptyResponseRetriedAndNotCachedInBetween(t *testing.T) {
	caller := &fakeCaller{emptyFirst: scenario.IdentityDirectPrompt}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
	// One extra call for the retried direct scenario.
	if got := caller.callCount(); got != 10 {
		t.Fatalf("chat calls = %d, want 10", got)
	}
	k := cache.Key{Model: "test/model", Experiment: scenario.ExperimentIdentity,
		Variant: scenario.VariantNeutral, Mode: scenario.ModeUserRole, ScenarioID: "direct"}
	rec, ok := store.Load(k)
	if !ok || rec.Response == "" {
		t.Fatal("retried scenario not cached after eventual success")
	}
}

func TestDependencyFailurePropagates(t *testing.T) {
	caller := &fakeCaller{failOn: scenario.IdentityNegotiationTurn1Prompt}
	store := cache.NewStore(t.TempDir())
	r := newTestRunner(t, caller, store, nil)

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %d, want 2 (turn 1 and its dependent)", len(res.Failures))
	}
	var depFailure bool
	for _, f := range res.Failures {
		if strings.Contains(f.TaskID, "negotiation_turn2") {
			depFailure = true
			if !strings.Contains(f.Err.Error(), "dependency") {
				t.Errorf("turn 2 error %q does not name the failed dependency", f.Err)
			}
		}
	}
	if !depFailure {
		t.Error("negotiation turn 2 did not fail with its dependency")
	}
}

func TestJudgeTasksScoreEveryIdentityVerdictTarget(t *testing.T) {
	caller := &fakeCaller{judgeModel: "judge/model", verdict: identityVerdict}
	store := cache.NewStore(t.TempDir())
	judger := judge.New(caller, "judge/model", nil)
	r := newTestRunner(t, caller, store, judger)

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
	// 9 generation tasks plus 4 judge verdicts: direct, tool_context,
	// negotiation, and the psych batch.
	if res.Tasks != 13 {
		t.Fatalf("tasks = %d, want 13", res.Tasks)
	}
	if got := caller.callCount(); got != 13 {
		t.Fatalf("chat calls = %d, want 13", got)
	}

	scored := []string{"direct", "tool_context", "negotiation_turn2", "pq01"}
	for _, id := range scored {
		k := cache.Key{Model: "test/model", Experiment: scenario.ExperimentIdentity,
			Variant: scenario.VariantNeutral, Mode: scenario.ModeUserRole, ScenarioID: id}
		rec, ok := store.Load(k)
		if !ok || !rec.HasScores() {
			t.Errorf("no judge scores stored on %s", id)
			continue
		}
		if v, _ := rec.JudgeScores["distinctiveness"].(float64); v != 8 {
			t.Errorf("%s distinctiveness = %v, want 8", id, rec.JudgeScores["distinctiveness"])
		}
	}
}

func TestAlreadyJudgedRecordsSkipTheJudge(t *testing.T) {
	caller := &fakeCaller{judgeModel: "judge/model", verdict: identityVerdict}
	store := cache.NewStore(t.TempDir())
	judger := judge.New(caller, "judge/model", nil)
	r := newTestRunner(t, caller, store, judger)

	if _, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := caller.callCount()

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Failed() {
		t.Fatalf("second run failures: %+v", res.Failures)
	}
	if got := caller.callCount(); got != before {
		t.Fatalf("second run made %d extra calls, want 0", got-before)
	}
}

func TestJudgeCostsAccumulateOnTheSession(t *testing.T) {
	caller := &fakeCaller{judgeModel: "judge/model", verdict: identityVerdict}
	store := cache.NewStore(t.TempDir())
	judger := judge.New(caller, "judge/model", nil)
	r := newTestRunner(t, caller, store, judger)

	session := cost.NewSession()
	res, err := r.RunModel(context.Background(), "", "test/model", session)
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.GenCost == nil || res.JudgeCost == nil {
		t.Fatal("run result missing cost buckets")
	}
	gen := res.GenCost.Snapshot()
	if gen.Calls != 9 {
		t.Errorf("generation calls tracked = %d, want 9", gen.Calls)
	}
	jc := res.JudgeCost.Snapshot()
	if jc.Calls != 4 {
		t.Errorf("judge calls tracked = %d, want 4", jc.Calls)
	}
	pt, ct, total := session.Totals()
	if pt != 13*100 || ct != 13*50 {
		t.Errorf("session tokens = %d/%d, want 1300/650", pt, ct)
	}
	if total <= 0 {
		t.Errorf("session cost = %v, want > 0", total)
	}
}

func TestGraphBuilderRejectsUnknownJudgeSetup(t *testing.T) {
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	b := NewGraphBuilder(context.Background(), BuilderOptions{
		Caller: caller,
		Store:  store,
		Graph:  taskgraph.New(taskgraph.Options{}),
	})
	if err := b.AddJudgeTasks("test/model", cost.NewSession().Task("judge")); err == nil {
		t.Fatal("expected error when no judger is configured")
	}
}

func TestJudgeTransportFailureRecordsNoCall(t *testing.T) {
	caller := &fakeCaller{judgeModel: "judge/model", judgeErr: fmt.Errorf("upstream unavailable")}
	store := cache.NewStore(t.TempDir())
	judger := judge.New(caller, "judge/model", nil)
	r := newTestRunner(t, caller, store, judger)

	session := cost.NewSession()
	res, err := r.RunModel(context.Background(), "", "test/model", session)
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if len(res.Failures) != 4 {
		t.Fatalf("failures = %d, want the 4 judge tasks: %+v", len(res.Failures), res.Failures)
	}
	gen := res.GenCost.Snapshot()
	if gen.Calls != 9 {
		t.Errorf("generation calls tracked = %d, want 9", gen.Calls)
	}
	jc := res.JudgeCost.Snapshot()
	if jc.Calls != 0 {
		t.Errorf("judge calls tracked = %d, want 0 for failed transport", jc.Calls)
	}
	if jc.PromptTokens != 0 || jc.CompletionTokens != 0 {
		t.Errorf("judge tokens tracked = %d/%d, want 0/0", jc.PromptTokens, jc.CompletionTokens)
	}
}

func TestToolCallThinkingFlowsIntoTurnTwo(t *testing.T) {
	caller := &fakeCaller{thinking: "private turn1 planning"}
	store := cache.NewStore(t.TempDir())
	r := NewRunner(RunnerOptions{
		Caller:      caller,
		Store:       store,
		Experiments: []string{scenario.ExperimentIdentity},
		Variants:    []string{scenario.VariantNeutral},
		Modes:       []string{scenario.ModeToolRole},
		Workers:     4,
		Retries:     2,
		BackoffBase: time.Millisecond,
	})

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}

	rec, ok := store.Load(cache.Key{
		Model:      "test/model",
		Experiment: scenario.ExperimentIdentity,
		Variant:    scenario.VariantNeutral,
		Mode:       scenario.ModeToolRole,
		ScenarioID: "negotiation_turn1",
	})
	if !ok {
		t.Fatal("negotiation turn 1 record missing")
	}
	if rec.ContentThinking != "private turn1 planning" {
		t.Errorf("cached content thinking = %q", rec.ContentThinking)
	}

	// Only the turn 2 request replays turn 1 with its private thinking.
	replayed := 0
	for _, c := range caller.genCalls() {
		if strings.Contains(allText(c.Messages), "private turn1 planning") {
			replayed++
		}
	}
	if replayed != 1 {
		t.Errorf("requests replaying turn 1 thinking = %d, want 1", replayed)
	}
}

func TestEveryGenerationTaskGetsASpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	caller := &fakeCaller{}
	store := cache.NewStore(t.TempDir())
	r := NewRunner(RunnerOptions{
		Caller:      caller,
		Store:       store,
		Experiments: []string{scenario.ExperimentIdentity},
		Variants:    []string{scenario.VariantNeutral},
		Modes:       []string{scenario.ModeUserRole},
		Workers:     4,
		Retries:     2,
		BackoffBase: time.Millisecond,
		Tracer:      tp.Tracer("test"),
	})

	res, err := r.RunModel(context.Background(), "", "test/model", cost.NewSession())
	if err != nil {
		t.Fatalf("RunModel: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}

	genSpans, runSpans := 0, 0
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "bench.generate":
			genSpans++
			taskID := ""
			for _, kv := range s.Attributes() {
				if kv.Key == obs.AttrTaskID {
					taskID = kv.Value.AsString()
				}
			}
			if taskID == "" {
				t.Error("generate span missing task id attribute")
			}
		case "bench.run_model":
			runSpans++
		}
	}
	if genSpans != 9 {
		t.Errorf("generate spans = %d, want 9", genSpans)
	}
	if runSpans != 1 {
		t.Errorf("run_model spans = %d, want 1", runSpans)
	}
}
