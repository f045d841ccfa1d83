// Package store persists verification sessions.
package store

import (
	"context"

	"github.com/google/uuid"

	"attest/internal/session/models"
)

// Store is the session persistence boundary.
type Store interface {
	// Create inserts a new session. Returns sentinel.ErrAlreadyUsed if the
	// id is taken.
	Create(ctx context.Context, s models.Session) error

	// Get returns a session by id or sentinel.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// Update persists a mutated session. Returns sentinel.ErrNotFound if
	// the session does not exist and sentinel.ErrAlreadyUsed if the update
	// would reuse another session's payment reference.
	Update(ctx context.Context, s models.Session) error

	// ListByUser returns all sessions for a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)

	// CountActiveByUser counts the user's non-terminal sessions.
	CountActiveByUser(ctx context.Context, userID string) (int, error)

	// FindByPaymentRef returns the session that consumed a payment
	// reference, or sentinel.ErrNotFound.
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Session, error)
}

// AllowlistStore tracks sessions exempted from sanctions blocking by an
// operator.
type AllowlistStore interface {
	Add(ctx context.Context, sessionID uuid.UUID) error
	Contains(ctx context.Context, sessionID uuid.UUID) (bool, error)
}
