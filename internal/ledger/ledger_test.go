package ledger

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx,
		[]string{"openai/gpt-5-nano", "deepseek/deepseek-chat"},
		[]string{"identity", "resistance"},
		[]string{"strong_independence"},
		[]string{"tool_role"},
	)
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if id == "" {
		t.Fatal("run ID should not be empty")
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != StatusRunning {
		t.Fatalf("status = %q, want RUNNING", run.Status)
	}
	if len(run.Models) != 2 || run.Models[1] != "deepseek/deepseek-chat" {
		t.Fatalf("models = %v", run.Models)
	}
	if len(run.Experiments) != 2 || run.Variants[0] != "strong_independence" {
		t.Fatalf("experiments=%v variants=%v", run.Experiments, run.Variants)
	}

	if err := s.FinishRun(ctx, id, StatusSucceeded, 0.42); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != StatusSucceeded || run.CostUSD != 0.42 {
		t.Fatalf("run after finish: %+v", run)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatal("finished_at should not precede started_at")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.FinishRun(context.Background(), "no-such-run", StatusFailed, 0); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestRecordAndListTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, []string{"m"}, []string{"identity"}, []string{"neutral"}, []string{"user_role"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RecordTask(ctx, id, "gen:identity:direct", StatusSucceeded, ""); err != nil {
		t.Fatalf("record task: %v", err)
	}
	if err := s.RecordTask(ctx, id, "gen:identity:pq01", StatusFailed, "empty response"); err != nil {
		t.Fatalf("record task: %v", err)
	}
	// Upsert replaces the earlier outcome.
	if err := s.RecordTask(ctx, id, "gen:identity:pq01", StatusSucceeded, ""); err != nil {
		t.Fatalf("re-record task: %v", err)
	}

	tasks, err := s.Tasks(ctx, id)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].TaskID != "gen:identity:direct" {
		t.Fatalf("tasks not sorted: %+v", tasks)
	}
	if tasks[1].Status != StatusSucceeded || tasks[1].Error != "" {
		t.Fatalf("upsert did not replace: %+v", tasks[1])
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.BeginRun(ctx, []string{"a"}, []string{"identity"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.BeginRun(ctx, []string{"b"}, []string{"stability"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// Same-second inserts may tie on started_at; both must be present.
	found := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !found[first] || !found[second] {
		t.Fatalf("missing runs: %v", runs)
	}

	runs, err = s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("limit ignored: %d runs", len(runs))
	}
}
