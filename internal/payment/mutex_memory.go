package payment

import (
	"context"
	"sync"
)

// MemoryMutex is an in-process Mutex for tests and single-node development.
type MemoryMutex struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func NewMemoryMutex() *MemoryMutex {
	return &MemoryMutex{locks: make(map[string]struct{})}
}

func (m *MemoryMutex) Acquire(_ context.Context, sessionID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[sessionID]; held {
		return nil, ErrLocked
	}
	m.locks[sessionID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.locks, sessionID)
		})
	}
	return release, nil
}
