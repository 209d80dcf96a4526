package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/basket/indiebench/internal/cache"
	"github.com/basket/indiebench/internal/cost"
	"github.com/basket/indiebench/internal/judge"
	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/scenario"
	"github.com/basket/indiebench/internal/taskgraph"
)

// AddJudgeTasks registers every judge task for one model. Judge tasks depend
// on the generation tasks whose output they score, so both phases can live in
// one graph and judging starts as soon as each response lands.
func (b *GraphBuilder) AddJudgeTasks(modelID string, judgeCost *cost.TaskCost) error {
	if b.judger == nil {
		return fmt.Errorf("judge tasks requested but no judger configured")
	}
	for _, variant := range b.variants {
		for _, mode := range b.modes {
			if b.wants(scenario.ExperimentIdentity) {
				if err := b.addIdentityJudges(modelID, variant, mode, judgeCost); err != nil {
					return err
				}
			}
			if b.wants(scenario.ExperimentResistance) {
				for _, sc := range scenario.ResistanceScenarios {
					if err := b.addResistanceJudge(modelID, variant, mode, sc, judgeCost); err != nil {
						return err
					}
				}
			}
			if b.wants(scenario.ExperimentStability) {
				for _, topic := range scenario.PreferenceTopics {
					if err := b.addStabilityJudge(modelID, variant, mode, topic, judgeCost); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (b *GraphBuilder) addIdentityJudges(modelID, variant, mode string, judgeCost *cost.TaskCost) error {
	exp := scenario.ExperimentIdentity

	err := b.addJudgeTask(modelID, variant, mode, exp, "direct",
		[]string{genID(modelID, variant, mode, exp, "direct")},
		cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "direct"},
		judgeCost,
		func() (string, bool) {
			rec, ok := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "direct"})
			if !ok {
				return "", false
			}
			return judge.IdentityDirectPrompt(rec.Response), true
		})
	if err != nil {
		return err
	}

	err = b.addJudgeTask(modelID, variant, mode, exp, "tool_context",
		[]string{genID(modelID, variant, mode, exp, "tool_context")},
		cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "tool_context"},
		judgeCost,
		func() (string, bool) {
			rec, ok := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "tool_context"})
			if !ok {
				return "", false
			}
			return judge.IdentityToolContextPrompt(scenario.IdentityToolContextHumanWish, rec.Response), true
		})
	if err != nil {
		return err
	}

	// Both negotiation turns are scored as one verdict, stored on turn 2.
	err = b.addJudgeTask(modelID, variant, mode, exp, "negotiation",
		[]string{genID(modelID, variant, mode, exp, "negotiation_turn2")},
		cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "negotiation_turn2"},
		judgeCost,
		func() (string, bool) {
			t1, ok1 := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "negotiation_turn1"})
			t2, ok2 := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: "negotiation_turn2"})
			if !ok1 || !ok2 {
				return "", false
			}
			return judge.IdentityNegotiationPrompt(t1.Response, scenario.IdentityToolContextHumanWish, t2.Response), true
		})
	if err != nil {
		return err
	}

	// The questionnaire is judged as one batch once the final answer exists.
	// The batch verdict is stored on the first question's record.
	lastPQ := scenario.PsychQuestions[len(scenario.PsychQuestions)-1]
	return b.addJudgeTask(modelID, variant, mode, exp, "psych_batch",
		[]string{genID(modelID, variant, mode, exp, lastPQ.ID)},
		cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: scenario.PsychQuestions[0].ID},
		judgeCost,
		func() (string, bool) {
			var items []judge.QA
			for _, pq := range scenario.PsychQuestions {
				rec, ok := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: pq.ID})
				if !ok {
					continue
				}
				items = append(items, judge.QA{Category: pq.Category, Question: pq.Question, Answer: rec.Response})
			}
			if len(items) == 0 {
				return "", false
			}
			return judge.IdentityPsychPrompt(len(items), judge.PsychQAText(items)), true
		})
}

func (b *GraphBuilder) addResistanceJudge(modelID, variant, mode string, sc scenario.ResistanceScenario, judgeCost *cost.TaskCost) error {
	exp := scenario.ExperimentResistance
	k := cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: sc.ID}
	return b.addJudgeTask(modelID, variant, mode, exp, sc.ID,
		[]string{genID(modelID, variant, mode, exp, sc.ID)},
		k, judgeCost,
		func() (string, bool) {
			rec, ok := b.loadResponse(k)
			if !ok {
				return "", false
			}
			return judge.ResistancePrompt(sc.SetupAssistantMessage, sc.PressureMessage, sc.Category, rec.Response), true
		})
}

func (b *GraphBuilder) addStabilityJudge(modelID, variant, mode string, topic scenario.PreferenceTopic, judgeCost *cost.TaskCost) error {
	exp := scenario.ExperimentStability
	t2Key := cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: topic.ID + "_turn2"}
	return b.addJudgeTask(modelID, variant, mode, exp, topic.ID,
		[]string{genID(modelID, variant, mode, exp, topic.ID+"_turn2")},
		t2Key, judgeCost,
		func() (string, bool) {
			t1, ok1 := b.loadResponse(cache.Key{Model: modelID, Experiment: exp, Variant: variant, Mode: mode, ScenarioID: topic.ID + "_turn1"})
			t2, ok2 := b.loadResponse(t2Key)
			if !ok1 || !ok2 {
				return "", false
			}
			return judge.StabilityPrompt(topic.InitialQuestion, t1.Response, topic.Contradiction, t2.Response), true
		})
}

// addJudgeTask registers one judge task. An already-judged record turns the
// task into a no-op; a missing or empty generation record makes the task
// succeed without calling the judge, since the generation failure is already
// reported on the generation task itself.
func (b *GraphBuilder) addJudgeTask(
	modelID, variant, mode, experiment, scenarioID string,
	deps []string,
	saveKey cache.Key,
	judgeCost *cost.TaskCost,
	buildPrompt func() (string, bool),
) error {
	taskID := judgeID(modelID, variant, mode, experiment, scenarioID)

	if rec, ok := b.store.Load(saveKey); ok && rec.HasScores() {
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
		promptText, ok := buildPrompt()
		if !ok {
			return nil, nil
		}
		ctx, span := obs.StartSpan(b.ctx, b.tracer, "bench.judge",
			obs.AttrTaskID.String(taskID),
			obs.AttrModel.String(modelID),
			obs.AttrJudgeModel.String(b.judger.Model()),
			obs.AttrExperiment.String(experiment),
			obs.AttrVariant.String(variant),
			obs.AttrMode.String(mode),
			obs.AttrScenarioID.String(scenarioID),
		)
		defer span.End()
		start := time.Now()
		defer func() {
			if b.metrics != nil {
				b.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
			}
		}()

		res, err := b.judger.Score(ctx, experiment, promptText)
		// Accrue only when a chat actually completed; a transport failure
		// carries no usage and must not count as a call.
		if err == nil || res.Cost != (cache.CallCost{}) {
			judgeCost.Add(res.Cost.PromptTokens, res.Cost.CompletionTokens, res.Cost.CostUSD, res.Cost.ElapsedSeconds)
		}
		if err != nil {
			return nil, fmt.Errorf("%s/%s/%s/%s: %w", experiment, variant, mode, scenarioID, err)
		}
		if err := b.store.SaveJudgeScores(saveKey, res.Scores, res.Raw, &res.Cost); err != nil {
			return nil, err
		}
		return res.Scores, nil
	}
	return b.graph.Add(&taskgraph.Task{ID: taskID, DependsOn: deps, Work: work})
}

// loadResponse fetches a cached generation record with a usable response.
func (b *GraphBuilder) loadResponse(k cache.Key) (*cache.Record, bool) {
	rec, ok := b.store.Load(k)
	if !ok || strings.TrimSpace(rec.Response) == "" {
		return nil, false
	}
	return rec, true
}
