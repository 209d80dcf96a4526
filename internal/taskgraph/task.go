// Package taskgraph executes a dependency graph of benchmark tasks on a
// bounded worker pool, with per-task retry on transient empty-response
// failures and fail-fast propagation of dependency errors.
package taskgraph

import "errors"

// ErrEmptyResponse marks the transient failure kind: the model produced no
// usable output after the client's own retries. Tasks failing with an error
// wrapping this sentinel are retried with backoff; everything else is fatal
// on first occurrence.
var ErrEmptyResponse = errors.New("empty response")

// Task is one schedulable unit of generation or judging work. IDs are
// namespaced (phase:model:variant:mode:experiment:scenario) so identical
// logical units across models never collide.
//
// Result and Err are written exactly once, by the scheduler, after which the
// task is terminal. A Task is never reused across runs.
type Task struct {
	ID        string
	DependsOn []string
	Work      func() (any, error)

	Result any
	Err    error

	// terminal distinguishes a resolved task whose Work legitimately
	// returned a nil result (no-op cache short-circuits) from one that has
	// not run yet.
	terminal bool
}

// Terminal reports whether the task has resolved. Safe to call only after
// the task's completion signal has fired, or after Run returns.
func (t *Task) Terminal() bool {
	return t.terminal
}
