package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"attest/internal/screening"
)

// PostgresStore persists screening hits in Postgres. Hits are stored as a
// JSONB document per observation; analytics queries unnest them downstream.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, hits screening.SessionHits) error {
	payload, err := json.Marshal(hits.Hits)
	if err != nil {
		return fmt.Errorf("marshal screening hits: %w", err)
	}

	const q = `
		INSERT INTO screening_hits (session_id, hits, observed_at)
		VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, hits.SessionID, payload, hits.ObservedAt); err != nil {
		return fmt.Errorf("insert screening hits: %w", err)
	}
	return nil
}

func (s *PostgresStore) BySession(ctx context.Context, sessionID string) ([]screening.SessionHits, error) {
	const q = `
		SELECT session_id, hits, observed_at
		FROM screening_hits
		WHERE session_id = $1
		ORDER BY observed_at ASC`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query screening hits: %w", err)
	}
	defer rows.Close()

	var out []screening.SessionHits
	for rows.Next() {
		var rec screening.SessionHits
		var payload []byte
		if err := rows.Scan(&rec.SessionID, &payload, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan screening hits: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Hits); err != nil {
			return nil, fmt.Errorf("unmarshal screening hits: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
