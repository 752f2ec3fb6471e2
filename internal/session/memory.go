package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used in tests and when Redis is not
// configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	touched time.Time
}

// NewMemoryStore creates a store; ttl defaults to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, contact string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[contact]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(e.touched) > s.ttl {
		delete(s.entries, contact)
		return nil, nil
	}
	// stored encoded so callers never share slices with the store
	var state State
	if err := json.Unmarshal(e.data, &state); err != nil {
		return nil, fmt.Errorf("session: failed to decode state: %w", err)
	}
	return &state, nil
}

func (s *MemoryStore) Put(ctx context.Context, contact string, state *State) error {
	if state == nil {
		return s.Delete(ctx, contact)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	state.UpdatedAt = now.UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	s.entries[contact] = memoryEntry{data: data, touched: now}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, contact)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]memoryEntry)
	return n, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for contact, e := range s.entries {
		if now.Sub(e.touched) > s.ttl {
			delete(s.entries, contact)
			continue
		}
		n++
	}
	return n, nil
}
