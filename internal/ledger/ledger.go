// Package ledger records benchmark runs and their terminal tasks in SQLite
// for post-hoc inspection.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Store is the run ledger backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("set pragma: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			models TEXT NOT NULL,
			experiments TEXT NOT NULL,
			variants TEXT NOT NULL,
			modes TEXT NOT NULL,
			status TEXT NOT NULL,
			cost_usd REAL NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS run_tasks (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			task_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, task_id)
		);
		CREATE INDEX IF NOT EXISTS idx_run_tasks_status ON run_tasks(run_id, status);
	`)
	if err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Run is one benchmark invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Models      []string
	Experiments []string
	Variants    []string
	Modes       []string
	Status      string
	CostUSD     float64
}

// TaskRecord is one terminal task within a run.
type TaskRecord struct {
	RunID  string
	TaskID string
	Status string
	Error  string
}

// BeginRun inserts a RUNNING row and returns its generated ID.
func (s *Store) BeginRun(ctx context.Context, models, experiments, variants, modes []string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, models, experiments, variants, modes, status)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, id, time.Now().UTC(), join(models), join(experiments), join(variants), join(modes), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run terminal with its total spend.
func (s *Store) FinishRun(ctx context.Context, runID, status string, costUSD float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, cost_usd = ? WHERE id = ?;
	`, time.Now().UTC(), status, costUSD, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// RecordTask upserts one terminal task outcome for a run.
func (s *Store) RecordTask(ctx context.Context, runID, taskID, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_tasks (run_id, task_id, status, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, task_id) DO UPDATE SET status = excluded.status, error = excluded.error;
	`, runID, taskID, status, errMsg)
	if err != nil {
		return fmt.Errorf("record task %s: %w", taskID, err)
	}
	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, started_at), models, experiments, variants, modes, status, cost_usd
		FROM runs WHERE id = ?;
	`, runID)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, started_at), models, experiments, variants, modes, status, cost_usd
		FROM runs ORDER BY started_at DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Tasks returns the recorded tasks for a run, sorted by task ID.
func (s *Store) Tasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, status, error FROM run_tasks
		WHERE run_id = ? ORDER BY task_id;
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.RunID, &t.TaskID, &t.Status, &t.Error); err != nil {
			return nil, fmt.Errorf("scan run task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var models, experiments, variants, modes string
	err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &models, &experiments, &variants, &modes, &r.Status, &r.CostUSD)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Models = split(models)
	r.Experiments = split(experiments)
	r.Variants = split(variants)
	r.Modes = split(modes)
	return r, nil
}

func join(values []string) string {
	return strings.Join(values, ",")
}

func split(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
