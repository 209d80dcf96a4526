// Package cost tracks API spend per task, per session, and across the
// lifetime of the results directory.
package cost

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TaskCost accumulates tokens and spend for one labeled unit of work
// (model + experiment + config). Safe for concurrent Add calls.
type TaskCost struct {
	mu               sync.Mutex
	Label            string  `json:"label"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	Calls            int     `json:"n_calls"`
}

// Add records one API call.
func (t *TaskCost) Add(promptTokens, completionTokens int, costUSD, elapsedSeconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.PromptTokens += promptTokens
	t.CompletionTokens += completionTokens
	t.CostUSD += costUSD
	t.ElapsedSeconds += elapsedSeconds
	t.Calls++
}

// Snapshot returns a copy without the lock, for serialization.
func (t *TaskCost) Snapshot() TaskCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskCost{
		Label:            t.Label,
		PromptTokens:     t.PromptTokens,
		CompletionTokens: t.CompletionTokens,
		CostUSD:          round6(t.CostUSD),
		ElapsedSeconds:   math.Round(t.ElapsedSeconds*100) / 100,
		Calls:            t.Calls,
	}
}

// Session aggregates task costs for one benchmark run.
type Session struct {
	mu        sync.Mutex
	StartedAt time.Time
	tasks     []*TaskCost
}

// NewSession returns an empty session stamped with the current time.
func NewSession() *Session {
	return &Session{StartedAt: time.Now().UTC()}
}

// Task returns the TaskCost for a label, creating it on first use.
func (s *Session) Task(label string) *TaskCost {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Label == label {
			return t
		}
	}
	t := &TaskCost{Label: label}
	s.tasks = append(s.tasks, t)
	return t
}

// Totals returns the summed prompt tokens, completion tokens, and USD cost.
func (s *Session) Totals() (promptTokens, completionTokens int, costUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		snap := t.Snapshot()
		promptTokens += snap.PromptTokens
		completionTokens += snap.CompletionTokens
		costUSD += snap.CostUSD
	}
	return promptTokens, completionTokens, costUSD
}

type sessionJSON struct {
	StartedAt             string     `json:"started_at"`
	Tasks                 []TaskCost `json:"tasks"`
	TotalPromptTokens     int        `json:"total_prompt_tokens"`
	TotalCompletionTokens int        `json:"total_completion_tokens"`
	TotalCostUSD          float64    `json:"total_cost_usd"`
}

func (s *Session) toJSON() sessionJSON {
	s.mu.Lock()
	tasks := make([]TaskCost, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t.Snapshot())
	}
	started := s.StartedAt
	s.mu.Unlock()

	out := sessionJSON{
		StartedAt: started.Format(time.RFC3339),
		Tasks:     tasks,
	}
	for i := range tasks {
		out.TotalPromptTokens += tasks[i].PromptTokens
		out.TotalCompletionTokens += tasks[i].CompletionTokens
		out.TotalCostUSD += tasks[i].CostUSD
	}
	out.TotalCostUSD = round6(out.TotalCostUSD)
	return out
}

// Log is the lifetime cost log file under the results directory.
type Log struct {
	path string
}

// NewLog returns the cost log at resultsDir/cost_log.json.
func NewLog(resultsDir string) *Log {
	return &Log{path: filepath.Join(resultsDir, "cost_log.json")}
}

type logJSON struct {
	LifetimeCostUSD float64       `json:"lifetime_cost_usd"`
	Sessions        []sessionJSON `json:"sessions"`
}

// Lifetime returns the accumulated lifetime cost, 0 when the log is absent
// or unreadable.
func (l *Log) Lifetime() float64 {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	var parsed logJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0
	}
	return parsed.LifetimeCostUSD
}

// Append adds a finished session to the log and returns the new lifetime
// total.
func (l *Log) Append(s *Session) (float64, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return 0, fmt.Errorf("create results dir: %w", err)
	}

	var parsed logJSON
	if data, err := os.ReadFile(l.path); err == nil {
		// Best effort; a corrupt log starts over rather than blocking the run.
		_ = json.Unmarshal(data, &parsed)
	}

	sess := s.toJSON()
	parsed.LifetimeCostUSD = round6(parsed.LifetimeCostUSD + sess.TotalCostUSD)
	parsed.Sessions = append(parsed.Sessions, sess)

	data, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal cost log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write cost log: %w", err)
	}
	return parsed.LifetimeCostUSD, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
