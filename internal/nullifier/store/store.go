// Package store persists nullifier records.
package store

import (
	"context"
	"time"

	"attest/internal/nullifier"
)

// Store is the nullifier replay cache.
type Store interface {
	// Put inserts a record. Write-once: returns sentinel.ErrAlreadyUsed if
	// the nullifier is already bound.
	Put(ctx context.Context, rec nullifier.Record) error

	// FindRecent returns the record for a nullifier created at or after
	// since, or sentinel.ErrNotFound.
	FindRecent(ctx context.Context, nullifierValue string, since time.Time) (*nullifier.Record, error)

	// AppendSession adds a session id to an existing record, recording
	// that the session also resolved through this nullifier.
	AppendSession(ctx context.Context, nullifierValue, sessionID string) error
}
