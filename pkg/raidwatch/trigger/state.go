package trigger

import "sync"

// State is the shared mutable memory for one active rule set.
//
// It is the only place cross-trigger memory lives: conditions and actions
// receive it explicitly and must not keep private mutable state of their
// own. Dispatch runs on the ingestion path while actions run from scheduler
// callbacks, so every access goes through the internal lock.
//
// The dispatcher creates a fresh State whenever the active rule set changes.
type State struct {
	mu   sync.Mutex
	vals map[string]any
}

// NewState creates an empty State.
func NewState() *State {
	return &State{vals: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	return v, ok
}

// GetString returns the string stored under key, or "" if absent or not a
// string.
func (s *State) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores a value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
}

// Delete removes a key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
}

// Add increments the integer counter at key by delta and returns the new
// value. A missing or non-integer entry counts as zero.
func (s *State) Add(key string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.vals[key].(int)
	n += delta
	s.vals[key] = n
	return n
}

// Update applies fn to the value at key under the lock, storing the result.
// Use this for read-modify-write sequences that must be atomic.
func (s *State) Update(key string, fn func(old any) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = fn(s.vals[key])
}

// Reset drops all stored values.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals = make(map[string]any)
}
