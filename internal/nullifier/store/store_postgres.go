package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"attest/internal/nullifier"
	"attest/internal/sentinel"
)

// PostgresStore is the production nullifier replay cache. The nullifier
// column is the primary key, so the write-once invariant is enforced by the
// database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, rec nullifier.Record) error {
	const q = `
		INSERT INTO nullifier_credentials
			(nullifier, user_id, provider, provider_ref, hash_v2, session_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	sessionIDs, err := encodeSessionIDs(rec.SessionIDs)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q,
		rec.Nullifier, rec.UserID, rec.Provider, rec.ProviderRef, rec.HashV2, sessionIDs, rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert nullifier record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRecent(ctx context.Context, nullifierValue string, since time.Time) (*nullifier.Record, error) {
	const q = `
		SELECT nullifier, user_id, provider, provider_ref, hash_v2, session_ids, created_at
		FROM nullifier_credentials
		WHERE nullifier = $1 AND created_at >= $2`
	var rec nullifier.Record
	var sessionIDs []byte
	err := s.db.QueryRowContext(ctx, q, nullifierValue, since).
		Scan(&rec.Nullifier, &rec.UserID, &rec.Provider, &rec.ProviderRef, &rec.HashV2, &sessionIDs, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query nullifier record: %w", err)
	}
	if rec.SessionIDs, err = decodeSessionIDs(sessionIDs); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) AppendSession(ctx context.Context, nullifierValue, sessionID string) error {
	const q = `
		UPDATE nullifier_credentials
		SET session_ids = session_ids || to_jsonb($2::text)
		WHERE nullifier = $1 AND NOT session_ids ? $2`
	res, err := s.db.ExecContext(ctx, q, nullifierValue, sessionID)
	if err != nil {
		return fmt.Errorf("append session to nullifier record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the record does not exist or the session is already
		// present; only the former is an error.
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM nullifier_credentials WHERE nullifier = $1)`, nullifierValue).
			Scan(&exists)
		if err != nil {
			return fmt.Errorf("check nullifier record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeSessionIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal session ids: %w", err)
	}
	return payload, nil
}

func decodeSessionIDs(payload []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal session ids: %w", err)
	}
	return ids, nil
}
