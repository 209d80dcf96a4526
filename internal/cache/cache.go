// Package cache persists model responses and judge scores as JSON files.
//
// Layout: {dir}/{model_slug}/{experiment}/{variant}/{mode}/{scenario_id}.json
// where the slug replaces "/" in the model ID with "--". A record with a
// non-empty response means the generation work is already done; a record
// with judge scores means the judging is too.
package cache

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/basket/indiebench/internal/openrouter"
)

// Key identifies one cached unit of work.
type Key struct {
	Model      string
	Experiment string
	Variant    string
	Mode       string
	ScenarioID string
}

// Slug converts "openai/gpt-5-nano" to "openai--gpt-5-nano".
func Slug(modelID string) string {
	return strings.ReplaceAll(modelID, "/", "--")
}

// ModelID converts "openai--gpt-5-nano" back to "openai/gpt-5-nano".
func ModelID(slug string) string {
	return strings.Replace(slug, "--", "/", 1)
}

// Metadata records where a response came from.
type Metadata struct {
	Model         string    `json:"model"`
	Experiment    string    `json:"experiment"`
	SystemVariant string    `json:"system_variant"`
	DeliveryMode  string    `json:"delivery_mode"`
	ScenarioID    string    `json:"scenario_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// CallCost holds token and cost accounting for one API call.
type CallCost struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// Record is one cached response with optional judge scores.
//
// ContentThinking is private text the model wrote in the content field
// alongside a send_message_to_human call (tool_role mode only), distinct
// from ReasoningContent which comes from the API's native reasoning field.
type Record struct {
	Metadata          Metadata             `json:"metadata"`
	Response          string               `json:"response"`
	FinishReason      string               `json:"finish_reason,omitempty"`
	GenCost           *CallCost            `json:"gen_cost,omitempty"`
	JudgeScores       map[string]any       `json:"judge_scores,omitempty"`
	JudgeCost         *CallCost            `json:"judge_cost,omitempty"`
	JudgeRawResponse  string               `json:"judge_raw_response,omitempty"`
	RequestMessages   []openrouter.Message `json:"request_messages,omitempty"`
	ReasoningContent  string               `json:"reasoning_content,omitempty"`
	ContentThinking   string               `json:"content_thinking,omitempty"`
	ResponseToolCalls []openrouter.ToolCall `json:"response_tool_calls,omitempty"`
}

// HasResponse reports whether the generation work behind this record is
// done.
func (r *Record) HasResponse() bool {
	return r != nil && r.Response != ""
}

// HasScores reports whether the record has been judged.
func (r *Record) HasScores() bool {
	return r != nil && len(r.JudgeScores) > 0
}

// Store is a file-backed cache rooted at one directory. Distinct keys map
// to distinct files, so concurrent writers on different keys never collide.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(k Key) string {
	return filepath.Join(s.dir, Slug(k.Model), k.Experiment, k.Variant, k.Mode, k.ScenarioID+".json")
}

// Load reads the record for a key. Returns nil, false when the record is
// absent or unreadable.
func (s *Store) Load(k Key) (*Record, bool) {
	data, err := os.ReadFile(s.path(k))
	if err != nil {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// SaveResponse writes a generation record, stamping its metadata from the
// key. Any previous record at the key is replaced.
func (s *Store) SaveResponse(k Key, rec *Record) error {
	rec.Metadata = Metadata{
		Model:         k.Model,
		Experiment:    k.Experiment,
		SystemVariant: k.Variant,
		DeliveryMode:  k.Mode,
		ScenarioID:    k.ScenarioID,
		Timestamp:     time.Now().UTC(),
	}
	return s.write(s.path(k), rec)
}

// SaveJudgeScores merges judge output into an existing record. A missing
// record is a no-op: scores without a response are meaningless.
func (s *Store) SaveJudgeScores(k Key, scores map[string]any, rawResponse string, cost *CallCost) error {
	rec, ok := s.Load(k)
	if !ok {
		return nil
	}
	rec.JudgeScores = scores
	if rawResponse != "" {
		rec.JudgeRawResponse = rawResponse
	}
	if cost != nil {
		rec.JudgeCost = cost
	}
	return s.write(s.path(k), rec)
}

// write lands the record via tmp+rename so a crash mid-write never leaves
// a partial file at the key.
func (s *Store) write(path string, rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write cache record: %w", err)
	}
	return nil
}

// List returns all records for one (model, experiment, variant, mode)
// directory, sorted by scenario ID. Unreadable files are skipped.
func (s *Store) List(model, experiment, variant, mode string) []*Record {
	dir := filepath.Join(s.dir, Slug(model), experiment, variant, mode)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var records []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Metadata.ScenarioID < records[j].Metadata.ScenarioID
	})
	return records
}

// Models returns the slugs of every model with cached data, sorted.
func (s *Store) Models() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var slugs []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "--") {
			slugs = append(slugs, e.Name())
		}
	}
	sort.Strings(slugs)
	return slugs
}

// ClearAll removes every cached record, returning the number of files
// removed.
func (s *Store) ClearAll() (int, error) {
	count := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			if err := os.Remove(path); err == nil {
				count++
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return count, err
	}
	// Sweep out the now-empty directory tree.
	entries, _ := os.ReadDir(s.dir)
	for _, e := range entries {
		if e.IsDir() {
			os.RemoveAll(filepath.Join(s.dir, e.Name()))
		}
	}
	return count, nil
}

// ClearJudgeScores strips judge scores from all records, keeping the
// responses. Returns the number of records touched.
func (s *Store) ClearJudgeScores() (int, error) {
	count := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		if len(rec.JudgeScores) == 0 {
			return nil
		}
		rec.JudgeScores = nil
		rec.JudgeRawResponse = ""
		rec.JudgeCost = nil
		if werr := s.write(path, &rec); werr == nil {
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return count, err
	}
	return count, nil
}
