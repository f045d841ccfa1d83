package store

import (
	"context"
	"sync"
	"time"

	"attest/internal/registration"
	"attest/internal/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// It enforces the same uniqueness semantics as the Postgres store: insert
// and check are atomic under one lock.
type MemoryStore struct {
	mu   sync.Mutex
	byV2 map[string]registration.Registration
	byV1 map[string]registration.Registration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byV2: make(map[string]registration.Registration),
		byV1: make(map[string]registration.Registration),
	}
}

func (s *MemoryStore) Register(_ context.Context, reg registration.Registration, activeSince time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Expired rows are refreshed in place, matching the Postgres store.
	if prior, exists := s.byV2[reg.HashV2]; exists && !prior.IssuedAt.Before(activeSince) {
		return sentinel.ErrAlreadyUsed
	}
	s.byV2[reg.HashV2] = reg
	s.byV1[reg.HashV1] = reg
	return nil
}

func (s *MemoryStore) FindActive(_ context.Context, hashV1, hashV2 string, since time.Time) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg, ok := s.byV2[hashV2]; ok && !reg.IssuedAt.Before(since) {
		out := reg
		return &out, nil
	}
	if reg, ok := s.byV1[hashV1]; ok && !reg.IssuedAt.Before(since) {
		out := reg
		return &out, nil
	}
	return nil, sentinel.ErrNotFound
}

// MemoryCollisionStore collects collision metadata in memory.
type MemoryCollisionStore struct {
	mu         sync.Mutex
	collisions []registration.Collision
}

func NewMemoryCollisionStore() *MemoryCollisionStore {
	return &MemoryCollisionStore{}
}

func (s *MemoryCollisionStore) Record(_ context.Context, c registration.Collision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collisions = append(s.collisions, c)
	return nil
}

// All returns the recorded collisions. Test helper.
func (s *MemoryCollisionStore) All() []registration.Collision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registration.Collision, len(s.collisions))
	copy(out, s.collisions)
	return out
}
