package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	turns      map[string][]Turn
	executions []Execution
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns: make(map[string][]Turn),
		now:   time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) (Turn, error) {
	if err := turn.Validate(); err != nil {
		return Turn{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turn.Index = len(s.turns[sessionID]) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now().UTC()
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return turn, nil
}

func (s *MemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns[sessionID]...), nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if n <= 0 {
		return nil, nil
	}
	if n < len(turns) {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...), nil
}

func (s *MemoryStore) RecordExecution(_ context.Context, exec Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.Timestamp.IsZero() {
		exec.Timestamp = s.now().UTC()
	}
	s.executions = append(s.executions, exec)
	return nil
}

func (s *MemoryStore) Executions(_ context.Context, sessionID string) ([]Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Execution
	for _, e := range s.executions {
		if sessionID == "" || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.turns, sessionID)
	kept := s.executions[:0]
	for _, e := range s.executions {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	s.executions = kept
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
