package taskgraph

import "sync"

// SharedState passes intermediate results (turn-1 response text, the
// accumulated psych question/answer list) between tasks joined by a
// dependency edge, without re-reading the cache. The lock guards only the
// point read or write; ordering comes entirely from the task graph.
type SharedState struct {
	mu     sync.Mutex
	values map[string]string
}

// NewSharedState returns an empty store.
func NewSharedState() *SharedState {
	return &SharedState{values: make(map[string]string)}
}

// Set stores value under key, replacing any previous value.
func (s *SharedState) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value for key, or the empty string if absent.
func (s *SharedState) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}
