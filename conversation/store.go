// Package conversation keeps per-identifier message history for multi-turn
// grounding. Identifiers are opaque caller-supplied strings.
package conversation

import "sync"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role    string
	Content string
}

// Store holds ordered turn sequences keyed by conversation identifier.
// Implementations must treat unknown identifiers as empty histories, never
// as errors.
type Store interface {
	Append(id string, turn Turn)
	Get(id string) []Turn
	Clear(id string)
	Replace(id string, turns []Turn)
}

// MemoryStore is a mutex-guarded in-process Store. A positive MaxTurns
// bounds each history by evicting the oldest turns on append.
type MemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]Turn
	maxTurns int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]Turn)}
}

// NewBoundedMemoryStore keeps at most maxTurns turns per identifier.
// A non-positive maxTurns means unbounded.
func NewBoundedMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{turns: make(map[string][]Turn), maxTurns: maxTurns}
}

func (s *MemoryStore) Append(id string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.turns[id], turn)
	if s.maxTurns > 0 && len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	s.turns[id] = history
}

func (s *MemoryStore) Get(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.turns[id]
	if len(history) == 0 {
		return nil
	}
	copied := make([]Turn, len(history))
	copy(copied, history)
	return copied
}

func (s *MemoryStore) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, id)
}

func (s *MemoryStore) Replace(id string, turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(turns) == 0 {
		delete(s.turns, id)
		return
	}
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	if s.maxTurns > 0 && len(copied) > s.maxTurns {
		copied = copied[len(copied)-s.maxTurns:]
	}
	s.turns[id] = copied
}

var _ Store = (*MemoryStore)(nil)
