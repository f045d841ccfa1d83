package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attest/internal/registration"
	"attest/internal/sentinel"
)

// PostgresStore is the production duplicate-registration index. The
// identity_registrations table carries a unique index on hash_v2, so
// concurrent registrations of the same identity race at the database and
// exactly one wins.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, reg registration.Registration, activeSince time.Time) error {
	// An expired row must not block the identity forever, so the insert
	// doubles as a refresh: the conflict branch overwrites the row only when
	// it is outside the retention window. Zero rows affected means an active
	// registration exists.
	const q = `
		INSERT INTO identity_registrations (id, hash_v1, hash_v2, issued_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash_v2) DO UPDATE
		SET id = EXCLUDED.id, hash_v1 = EXCLUDED.hash_v1, issued_at = EXCLUDED.issued_at
		WHERE identity_registrations.issued_at < $5`
	res, err := s.db.ExecContext(ctx, q, reg.ID, reg.HashV1, reg.HashV2, reg.IssuedAt, activeSince)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, hashV1, hashV2 string, since time.Time) (*registration.Registration, error) {
	const q = `
		SELECT id, hash_v1, hash_v2, issued_at
		FROM identity_registrations
		WHERE (hash_v2 = $1 OR hash_v1 = $2) AND issued_at >= $3
		ORDER BY issued_at DESC
		LIMIT 1`
	var reg registration.Registration
	err := s.db.QueryRowContext(ctx, q, hashV2, hashV1, since).
		Scan(&reg.ID, &reg.HashV1, &reg.HashV2, &reg.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query registration: %w", err)
	}
	return &reg, nil
}

// PostgresCollisionStore persists collision metadata.
type PostgresCollisionStore struct {
	db *sql.DB
}

func NewPostgresCollisionStore(db *sql.DB) *PostgresCollisionStore {
	return &PostgresCollisionStore{db: db}
}

func (s *PostgresCollisionStore) Record(ctx context.Context, c registration.Collision) error {
	const q = `
		INSERT INTO registration_collisions
			(session_id, prior_id, matched_v1, matched_v2,
			 has_first, has_middle, has_last, has_dob, has_country, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, q,
		c.SessionID, c.PriorID, c.MatchedV1, c.MatchedV2,
		c.HasFirst, c.HasMiddle, c.HasLast, c.HasDOB, c.HasCountry, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert collision: %w", err)
	}
	return nil
}
