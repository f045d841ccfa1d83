package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/platform/redis"
)

const (
	lockKeyPrefix = "refund:lock:"

	// lockTTL caps how long a crashed refund can wedge a session. A live
	// refund always releases explicitly; the TTL is only the backstop.
	lockTTL = 5 * time.Minute
)

// RedisMutex implements Mutex with SET NX, which gives atomic
// insert-if-absent semantics across all service instances.
type RedisMutex struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisMutex(client *redis.Client, logger *slog.Logger) *RedisMutex {
	return &RedisMutex{client: client, logger: logger}
}

func (m *RedisMutex) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKeyPrefix + sessionID

	ok, err := m.client.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire refund lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func() {
		// Release must not depend on the request context still being alive.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.client.Del(ctx, key).Err(); err != nil {
			m.logger.Error("failed to release refund lock, TTL will reap it",
				"session_id", sessionID,
				"error", err,
			)
		}
	}
	return release, nil
}
