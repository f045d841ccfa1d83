package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"attest/internal/sentinel"
	"attest/internal/session/models"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]models.Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if sess.PaymentRef != "" {
		for id, other := range s.sessions {
			if id != sess.ID && other.PaymentRef == sess.PaymentRef {
				return sentinel.ErrAlreadyUsed
			}
		}
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountActiveByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) FindByPaymentRef(_ context.Context, paymentRef string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.PaymentRef == paymentRef {
			out := sess
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// MemoryAllowlistStore is an in-memory AllowlistStore.
type MemoryAllowlistStore struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]struct{}
}

func NewMemoryAllowlistStore() *MemoryAllowlistStore {
	return &MemoryAllowlistStore{ids: make(map[uuid.UUID]struct{})}
}

func (s *MemoryAllowlistStore) Add(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[sessionID] = struct{}{}
	return nil
}

func (s *MemoryAllowlistStore) Contains(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[sessionID]
	return ok, nil
}
