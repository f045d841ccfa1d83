package store

import (
	"context"
	"sync"

	"attest/internal/screening"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	bySess map[string][]screening.SessionHits
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySess: make(map[string][]screening.SessionHits)}
}

func (s *MemoryStore) Record(_ context.Context, hits screening.SessionHits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySess[hits.SessionID] = append(s.bySess[hits.SessionID], hits)
	return nil
}

func (s *MemoryStore) BySession(_ context.Context, sessionID string) ([]screening.SessionHits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]screening.SessionHits, len(s.bySess[sessionID]))
	copy(out, s.bySess[sessionID])
	return out, nil
}
