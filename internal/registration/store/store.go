// Package store persists identity registrations and collision metadata.
package store

import (
	"context"
	"time"

	"attest/internal/registration"
)

// Store is the duplicate-registration index.
//
// Register must be backed by a storage-level uniqueness constraint on the
// current hash so two concurrent registrations of the same identity cannot
// both succeed; implementations return sentinel.ErrAlreadyUsed when the
// constraint fires.
type Store interface {
	// Register inserts a new registration, or atomically refreshes an
	// existing one whose issued_at predates activeSince. Returns
	// sentinel.ErrAlreadyUsed if the identity hash is registered and still
	// active.
	Register(ctx context.Context, reg registration.Registration, activeSince time.Time) error

	// FindActive returns the most recent registration matching either hash
	// scheme issued at or after since, or sentinel.ErrNotFound.
	FindActive(ctx context.Context, hashV1, hashV2 string, since time.Time) (*registration.Registration, error)
}

// CollisionStore records duplicate-detection metadata.
type CollisionStore interface {
	Record(ctx context.Context, c registration.Collision) error
}
