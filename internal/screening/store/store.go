// Package store persists screening hits for fraud analytics.
package store

import (
	"context"

	"attest/internal/screening"
)

// Store records the hits observed while screening a session.
type Store interface {
	// Record appends the hits observed for a session. Recording the same
	// session twice keeps both observations; screenings re-run after an
	// expired declaration are distinct events.
	Record(ctx context.Context, hits screening.SessionHits) error

	// BySession returns all recorded observations for a session, oldest first.
	BySession(ctx context.Context, sessionID string) ([]screening.SessionHits, error)
}
