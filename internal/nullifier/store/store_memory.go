package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"attest/internal/nullifier"
	"attest/internal/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]nullifier.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]nullifier.Record)}
}

func (s *MemoryStore) Put(_ context.Context, rec nullifier.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Nullifier]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.records[rec.Nullifier] = rec
	return nil
}

func (s *MemoryStore) FindRecent(_ context.Context, nullifierValue string, since time.Time) (*nullifier.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[nullifierValue]
	if !ok || rec.CreatedAt.Before(since) {
		return nil, sentinel.ErrNotFound
	}
	out := rec
	out.SessionIDs = slices.Clone(rec.SessionIDs)
	return &out, nil
}

func (s *MemoryStore) AppendSession(_ context.Context, nullifierValue, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[nullifierValue]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !slices.Contains(rec.SessionIDs, sessionID) {
		rec.SessionIDs = append(rec.SessionIDs, sessionID)
		s.records[nullifierValue] = rec
	}
	return nil
}
