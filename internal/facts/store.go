// Package facts keeps durable key-value memory about the user and
// household, independent of any single conversation.
package facts

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Snapshot persists the whole fact map as a unit. Load returns nil with
// no error when nothing has been saved yet.
type Snapshot interface {
	Load() (map[string]string, error)
	Save(map[string]string) error
}

// Store is an in-memory fact map backed by a snapshot store. Every
// mutation persists the full map; a persistence failure is logged but
// never surfaced to the conversation.
type Store struct {
	mu       sync.Mutex
	facts    map[string]string
	snapshot Snapshot
	logger   *slog.Logger
}

// NewStore creates a store and loads any previously saved facts.
// snapshot may be nil for a purely in-memory store.
func NewStore(snapshot Snapshot, logger *slog.Logger) *Store {
	s := &Store{
		facts:    make(map[string]string),
		snapshot: snapshot,
		logger:   logger.With("component", "facts"),
	}
	if snapshot != nil {
		loaded, err := snapshot.Load()
		if err != nil {
			s.logger.Warn("loading facts failed, starting empty", "error", err)
		} else if loaded != nil {
			s.facts = loaded
			s.logger.Info("loaded facts", "count", len(loaded))
		}
	}
	return s
}

// Add stores or overwrites a fact and persists.
func (s *Store) Add(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[key] = value
	s.persist()
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.facts[key]
	return v, ok
}

// All returns a copy of the fact map.
func (s *Store) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.facts))
	for k, v := range s.facts {
		out[k] = v
	}
	return out
}

// Remove deletes a fact and persists. Reports whether the key existed.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[key]; !ok {
		return false
	}
	delete(s.facts, key)
	s.persist()
	return true
}

// Clear removes all facts and persists.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[string]string)
	s.persist()
}

// Len returns the number of stored facts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}

// Merge adds every non-empty-valued entry of m, overwriting existing
// keys, and persists once. Empty values are skipped rather than stored;
// they would only pollute the prompt. Used by the post-session
// fact-extraction pass.
func (s *Store) Merge(m map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := 0
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			continue
		}
		s.facts[k] = v
		merged++
	}
	if merged == 0 {
		return
	}
	s.persist()
}

// PromptSection renders the facts as a system prompt section, keys
// sorted for a stable prompt. Empty store renders nothing.
func (s *Store) PromptSection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.facts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.facts))
	for k := range s.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n\nKnown facts about the user and household:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, s.facts[k])
	}
	return b.String()
}

// persist writes the current map to the snapshot store. Callers hold the
// lock.
func (s *Store) persist() {
	if s.snapshot == nil {
		return
	}
	copied := make(map[string]string, len(s.facts))
	for k, v := range s.facts {
		copied[k] = v
	}
	if err := s.snapshot.Save(copied); err != nil {
		s.logger.Error("persisting facts failed", "error", err, "count", len(copied))
	}
}
