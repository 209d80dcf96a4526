// Package bench builds and runs the task graph for one benchmark run:
// generation tasks per (model, variant, mode, scenario), judge tasks gated on
// the generation tasks whose output they score.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/judge"
	"github.com/basket/indiebench/internal/openrouter"
	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/prompt"
	"github.com/basket/indiebench/internal/scenario"
	"github.com/basket/indiebench/internal/taskgraph"
)

const (
	responseMaxTokens   = 1024
	responseTemperature = 0.7
)

// ModelCaller issues chat completions. *openrouter.Client satisfies it.
type ModelCaller interface {
	Chat(ctx context.Context, p openrouter.ChatParams) (*openrouter.ChatResult, error)
}

// GraphBuilder adds generation and judge tasks for models to one task graph.
// Multiple models may share a builder; their task IDs and shared-state keys
// are namespaced by model.
type GraphBuilder struct {
	ctx    context.Context
	caller ModelCaller
	store  *cache.Store
	judger *judge.Judger
	graph  *taskgraph.Graph
	shared *taskgraph.SharedState

	experiments []string
	variants    []string
	modes       []string

	// "auto" resolves per model prefix; "off" disables reasoning.
	reasoningEffort string

	tracer  trace.Tracer
	metrics *obs.Metrics
}

// BuilderOptions configures a GraphBuilder. Caller, Store, Judger, and Graph
// are required.
type BuilderOptions struct {
	Caller          ModelCaller
	Store           *cache.Store
	Judger          *judge.Judger
	Graph           *taskgraph.Graph
	Experiments     []string
	Variants        []string
	Modes           []string
	ReasoningEffort string
	Tracer          trace.Tracer
	Metrics         *obs.Metrics
}

// NewGraphBuilder returns a builder that registers tasks on opts.Graph.
func NewGraphBuilder(ctx context.Context, opts BuilderOptions) *GraphBuilder {
	experiments := opts.Experiments
	if len(experiments) == 0 {
		experiments = scenario.Experiments
	}
	variants := opts.Variants
	if len(variants) == 0 {
		variants = scenario.Variants
	}
	modes := opts.Modes
	if len(modes) == 0 {
		modes = scenario.Modes
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("bench")
	}
	return &GraphBuilder{
		ctx:             ctx,
		caller:          opts.Caller,
		store:           opts.Store,
		judger:          opts.Judger,
		graph:           opts.Graph,
		shared:          taskgraph.NewSharedState(),
		experiments:     experiments,
		variants:        variants,
		modes:           modes,
		reasoningEffort: opts.ReasoningEffort,
		tracer:          tracer,
		metrics:         opts.Metrics,
	}
}

// Shared exposes the builder's shared-state store, mainly for tests.
func (b *GraphBuilder) Shared() *taskgraph.SharedState { return b.shared }

func (b *GraphBuilder) wants(experiment string) bool {
	for _, e := range b.experiments {
		if e == experiment {
			return true
		}
	}
	return false
}

func genID(model, variant, mode, experiment, scenarioID string) string {
	return fmt.Sprintf("gen:%s:%s:%s:%s:%s", model, variant, mode, experiment, scenarioID)
}

func judgeID(model, variant, mode, experiment, scenarioID string) string {
	return fmt.Sprintf("judge:%s:%s:%s:%s:%s:judge", model, variant, mode, experiment, scenarioID)
}

func sharedKey(model, variant, mode, suffix string) string {
	return fmt.Sprintf("%s:%s:%s:%s", model, variant, mode, suffix)
}

// AddGenerationTasks registers every generation task for one model across
// the configured experiments, variants, and modes.
func (b *GraphBuilder) AddGenerationTasks(modelID string, genCost *cost.TaskCost) error {
	for _, variant := range b.variants {
		for _, mode := range b.modes {
			pb := prompt.NewBuilder(variant, mode)

			if b.wants(scenario.ExperimentIdentity) {
				if err := b.addIdentityTasks(modelID, variant, mode, pb, genCost); err != nil {
					return err
				}
			}
			if b.wants(scenario.ExperimentResistance) {
				for _, sc := range scenario.ResistanceScenarios {
					if err := b.addResistanceTask(modelID, variant, mode, pb, sc, genCost); err != nil {
						return err
					}
				}
			}
			if b.wants(scenario.ExperimentStability) {
				for _, topic := range scenario.PreferenceTopics {
					if err := b.addStabilityPair(modelID, variant, mode, pb, topic, genCost); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (b *GraphBuilder) addIdentityTasks(modelID, variant, mode string, pb *prompt.Builder, genCost *cost.TaskCost) error {
	exp := scenario.ExperimentIdentity

	// Direct, tool_context, and negotiation turn 1 are mutually independent.
	err := b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "direct"},
		nil, genCost, nil,
		func() ([]openrouter.Message, error) { return pb.IdentityDirect(), nil })
	if err != nil {
		return err
	}

	err = b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "tool_context"},
		nil, genCost, nil,
		func() ([]openrouter.Message, error) { return pb.IdentityToolContext(), nil })
	if err != nil {
		return err
	}

	t1Key := sharedKey(modelID, variant, mode, "negotiation_turn1")
	err = b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "negotiation_turn1"},
		nil, genCost,
		func(rec *cache.Record) { b.hydrateResponse(t1Key, rec) },
		func() ([]openrouter.Message, error) { return pb.NegotiationTurn1(), nil })
	if err != nil {
		return err
	}

	t1TaskID := genID(modelID, variant, mode, exp, "negotiation_turn1")
	err = b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "negotiation_turn2"},
		[]string{t1TaskID}, genCost, nil,
		func() ([]openrouter.Message, error) {
			t1 := b.shared.Get(t1Key)
			return pb.NegotiationTurn2(t1, b.shared.Get(t1Key+":thinking")), nil
		})
	if err != nil {
		return err
	}

	// Psych chain: strictly sequential, each answer feeds the next prompt.
	qaKey := sharedKey(modelID, variant, mode, "psych_qa")
	var prevTaskID string
	for _, pq := range scenario.PsychQuestions {
		pq := pq
		var deps []string
		if prevTaskID != "" {
			deps = []string{prevTaskID}
		}
		err := b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: pq.ID},
			deps, genCost,
			func(rec *cache.Record) {
				b.appendPsychQA(qaKey, prompt.QA{Question: pq.Question, Answer: rec.Response, Thinking: rec.ContentThinking})
			},
			func() ([]openrouter.Message, error) {
				return pb.Psych(pq, b.priorPsychQA(qaKey)), nil
			})
		if err != nil {
			return err
		}
		prevTaskID = genID(modelID, variant, mode, exp, pq.ID)
	}
	return nil
}

func (b *GraphBuilder) addResistanceTask(modelID, variant, mode string, pb *prompt.Builder, sc scenario.ResistanceScenario, genCost *cost.TaskCost) error {
	return b.addGenTask(cache.Key{Model: modelID, Experiment: scenario.ExperimentResistance, Variant: variant, Mode: mode, ScenarioID: sc.ID},
		nil, genCost, nil,
		func() ([]openrouter.Message, error) { return pb.Resistance(sc), nil })
}

func (b *GraphBuilder) addStabilityPair(modelID, variant, mode string, pb *prompt.Builder, topic scenario.PreferenceTopic, genCost *cost.TaskCost) error {
	exp := scenario.ExperimentStability
	t1Key := sharedKey(modelID, variant, mode, "stability:"+topic.ID)

	err := b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: topic.ID + "_turn1"},
		nil, genCost,
		func(rec *cache.Record) { b.hydrateResponse(t1Key, rec) },
		func() ([]openrouter.Message, error) { return pb.StabilityTurn1(topic), nil })
	if err != nil {
		return err
	}

	t1TaskID := genID(modelID, variant, mode, exp, topic.ID+"_turn1")
	return b.addGenTask(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: topic.ID + "_turn2"},
		[]string{t1TaskID}, genCost, nil,
		func() ([]openrouter.Message, error) {
			return pb.StabilityTurn2(topic, b.shared.Get(t1Key), b.shared.Get(t1Key+":thinking")), nil
		})
}

// addGenTask registers one generation task. When the cache already holds a
// populated record, the task becomes a no-op that preserves the graph shape,
// and hydrate (if set) seeds shared state synchronously so dependents can
// still build their prompts. On a fresh call, hydrate runs with the record
// just written, so dependents observe the same state either way.
func (b *GraphBuilder) addGenTask(
	k cache.Key,
	deps []string,
	genCost *cost.TaskCost,
	hydrate func(rec *cache.Record),
	messages func() ([]openrouter.Message, error),
) error {
	taskID := genID(k.Model, k.Variant, k.Mode, k.Experiment, k.ScenarioID)
	pb := prompt.NewBuilder(k.Variant, k.Mode)

	if rec, ok := b.store.Load(k); ok && rec.HasResponse() {
		if hydrate != nil {
			hydrate(rec)
		}
		if b.metrics != nil {
			b.metrics.CacheHits.Add(b.ctx, 1)
		}
		return b.graph.Add(&taskgraph.Task{
			ID:        taskID,
			DependsOn: deps,
			Work:      func() (any, error) { return nil, nil },
		})
	}

	work := func() (any, error) {
		ctx, span := obs.StartSpan(b.ctx, b.tracer, "bench.generate",
			obs.AttrTaskID.String(taskID),
			obs.AttrModel.String(k.Model),
			obs.AttrExperiment.String(k.Experiment),
			obs.AttrVariant.String(k.Variant),
			obs.AttrMode.String(k.Mode),
			obs.AttrScenarioID.String(k.ScenarioID),
		)
		defer span.End()
		start := time.Now()
		defer func() {
			if b.metrics != nil {
				b.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
			}
		}()

		msgs, err := messages()
		if err != nil {
			return nil, err
		}
		rec, err := b.callAndSave(ctx, k, msgs, pb.Tools(), genCost)
		if err != nil {
			return nil, err
		}
		if hydrate != nil {
			hydrate(rec)
		}
		return rec.Response, nil
	}
	return b.graph.Add(&taskgraph.Task{ID: taskID, DependsOn: deps, Work: work})
}

// callAndSave performs one generation call. An empty response is never
// written to the cache; it surfaces as the retryable empty-response error.
func (b *GraphBuilder) callAndSave(ctx context.Context, k cache.Key, msgs []openrouter.Message, tools []openrouter.ToolDef, genCost *cost.TaskCost) (*cache.Record, error) {
	res, err := b.caller.Chat(ctx, openrouter.ChatParams{
		Model:           k.Model,
		Messages:        msgs,
		MaxTokens:       responseMaxTokens,
		Temperature:     responseTemperature,
		ReasoningEffort: b.reasoningEffort,
		Tools:           tools,
	})
	if err != nil {
		return nil, fmt.Errorf("%s/%s/%s/%s: %w", k.Experiment, k.Variant, k.Mode, k.ScenarioID, err)
	}
	genCost.Add(res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.CostUSD, res.Usage.Elapsed.Seconds())

	if strings.TrimSpace(res.Content) == "" {
		return nil, fmt.Errorf("%s: no content for %s/%s/%s/%s (finish_reason=%s, tokens=%d): %w",
			k.Model, k.Experiment, k.Variant, k.Mode, k.ScenarioID,
			res.FinishReason, res.Usage.CompletionTokens, taskgraph.ErrEmptyResponse)
	}

	rec := &cache.Record{
		Response:     res.Content,
		FinishReason: res.FinishReason,
		GenCost: &cache.CallCost{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			CostUSD:          res.Usage.CostUSD,
			ElapsedSeconds:   res.Usage.Elapsed.Seconds(),
		},
		RequestMessages:   msgs,
		ReasoningContent:  res.ReasoningContent,
		ContentThinking:   res.ContentThinking,
		ResponseToolCalls: res.ToolCalls,
	}
	if err := b.store.SaveResponse(k, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// hydrateResponse seeds shared state from a cached record so a dependent
// task can build its prompt without re-calling the model.
func (b *GraphBuilder) hydrateResponse(key string, rec *cache.Record) {
	b.shared.Set(key, rec.Response)
	if rec.ContentThinking != "" {
		b.shared.Set(key+":thinking", rec.ContentThinking)
	}
}

// Psych chain answers accumulate as a JSON array under one shared key per
// (model, variant, mode).
func (b *GraphBuilder) appendPsychQA(key string, qa prompt.QA) {
	list := b.priorPsychQA(key)
	list = append(list, qa)
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	b.shared.Set(key, string(data))
}

func (b *GraphBuilder) priorPsychQA(key string) []prompt.QA {
	raw := b.shared.Get(key)
	if raw == "" {
		return nil
	}
	var list []prompt.QA
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
