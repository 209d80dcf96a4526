package taskgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults mirror the benchmark's production settings.
const (
	DefaultWorkers     = 8
	DefaultRetries     = 3
	DefaultBackoffBase = 5 * time.Second
)

// Options configures a Graph. Zero values fall back to the defaults above;
// Retries < 0 disables retry entirely, since the zero value must keep its
// default. Sleep exists so tests can run the retry path without real delays;
// OnRetry (optional) observes every retry before its backoff sleep.
type Options struct {
	Workers     int
	Retries     int
	BackoffBase time.Duration
	Logger      *slog.Logger
	Sleep       func(time.Duration)
	OnRetry     func(taskID string, attempt int)
}

// Graph holds the registered tasks for one scheduler run.
type Graph struct {
	opts Options

	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

// New returns an empty graph with the given options normalized.
func New(opts Options) *Graph {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	} else if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Graph{opts: opts, tasks: make(map[string]*Task)}
}

// Add registers a task. Duplicate IDs are rejected so a mis-built graph
// fails loudly at construction time rather than racing two writers on one
// cache key.
func (g *Graph) Add(t *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.tasks[t.ID]; dup {
		return fmt.Errorf("duplicate task id %q", t.ID)
	}
	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	return nil
}

// Len reports the number of registered tasks.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Run executes every registered task and blocks until all are terminal.
// Each task runs in its own goroutine: it first waits on the one-shot
// completion channel of every dependency, then occupies a worker slot only
// while actively running. Registration order does not matter.
//
// The returned map contains every task in a terminal state, including
// failures; Run itself errors only on structural problems (unknown
// dependency, cycle) detected before anything executes.
func (g *Graph) Run() (map[string]*Task, error) {
	g.mu.Lock()
	tasks := make(map[string]*Task, len(g.tasks))
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	for id, t := range g.tasks {
		tasks[id] = t
	}
	g.mu.Unlock()

	if err := validate(tasks); err != nil {
		return nil, err
	}

	done := make(map[string]chan struct{}, len(tasks))
	for id := range tasks {
		done[id] = make(chan struct{})
	}
	sem := make(chan struct{}, g.opts.Workers)

	var wg sync.WaitGroup
	for _, id := range ids {
		t := tasks[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.execute(t, tasks, done, sem)
		}()
	}
	wg.Wait()
	return tasks, nil
}

// execute drives one task to a terminal state and fires its completion
// signal exactly once.
func (g *Graph) execute(t *Task, tasks map[string]*Task, done map[string]chan struct{}, sem chan struct{}) {
	defer close(done[t.ID])

	// Wait for every dependency signal before inspecting outcomes, so a
	// multi-parent task observes all of them terminal.
	for _, dep := range t.DependsOn {
		<-done[dep]
	}
	for _, dep := range t.DependsOn {
		// The dependency's Err is written before its channel closes, so
		// this read is ordered without the graph lock.
		if depErr := tasks[dep].Err; depErr != nil {
			g.finish(t, nil, fmt.Errorf("dependency %s failed: %w", dep, depErr))
			return
		}
	}

	sem <- struct{}{}
	defer func() { <-sem }()

	var result any
	var err error
	for attempt := 1; attempt <= g.opts.Retries+1; attempt++ {
		result, err = t.Work()
		if err == nil {
			break
		}
		if !errors.Is(err, ErrEmptyResponse) || attempt > g.opts.Retries {
			break
		}
		wait := time.Duration(attempt) * g.opts.BackoffBase
		g.opts.Logger.Warn("task retry on empty response",
			"task", t.ID, "attempt", attempt, "wait", wait)
		if g.opts.OnRetry != nil {
			g.opts.OnRetry(t.ID, attempt)
		}
		g.opts.Sleep(wait)
	}
	g.finish(t, result, err)
}

// finish records the terminal outcome under the graph lock. The caller
// closes the completion channel afterwards, never before.
func (g *Graph) finish(t *Task, result any, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t.Result = result
	t.Err = err
	t.terminal = true
	if err != nil {
		g.opts.Logger.Error("task failed", "task", t.ID, "error", err)
	}
}

// validate rejects edges to unknown tasks and dependency cycles before any
// goroutine launches; either would otherwise deadlock the run.
func validate(tasks map[string]*Task) error {
	for id, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := tasks[dep]; !ok {
				return fmt.Errorf("task %s depends on unknown task %q", id, dep)
			}
		}
	}
	const (
		unvisited = 0
		visiting  = 1
		finished  = 2
	)
	state := make(map[string]int, len(tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through task %s", id)
		case finished:
			return nil
		}
		state[id] = visiting
		for _, dep := range tasks[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = finished
		return nil
	}
	for id := range tasks {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
