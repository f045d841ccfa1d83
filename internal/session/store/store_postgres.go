package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attest/internal/sentinel"
	"attest/internal/session/models"
)

// PostgresStore is the production session store. A partial unique index on
// payment_ref makes payment-proof reuse race-safe: two sessions claiming the
// same proof resolve at the database, not in application code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
	id, user_id, kind, status, provider, provider_ref,
	failure_reason, declaration, payment_ref, refund_tx,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sess models.Session) error {
	declaration, err := marshalDeclaration(sess.Declaration)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)`
	_, err = s.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, sess.Kind, sess.Status, sess.Provider, sess.ProviderRef,
		sess.FailureReason, declaration, sess.PaymentRef, sess.RefundTx,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) Update(ctx context.Context, sess models.Session) error {
	declaration, err := marshalDeclaration(sess.Declaration)
	if err != nil {
		return err
	}

	const q = `
		UPDATE sessions
		SET status = $2, provider_ref = $3, failure_reason = $4, declaration = $5,
		    payment_ref = NULLIF($6, ''), refund_tx = NULLIF($7, ''), updated_at = $8
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.Status, sess.ProviderRef, sess.FailureReason, declaration,
		sess.PaymentRef, sess.RefundTx, sess.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM sessions
		WHERE user_id = $1 AND status NOT IN ('ISSUED', 'VERIFICATION_FAILED', 'REFUNDED')`
	var count int
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE payment_ref = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, paymentRef))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner) (*models.Session, error) {
	sess, err := s.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return sess, err
}

func (s *PostgresStore) scanRow(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var declaration []byte
	var providerRef, failureReason, paymentRef, refundTx sql.NullString
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Kind, &sess.Status, &sess.Provider, &providerRef,
		&failureReason, &declaration, &paymentRef, &refundTx,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.ProviderRef = providerRef.String
	sess.FailureReason = failureReason.String
	sess.PaymentRef = paymentRef.String
	sess.RefundTx = refundTx.String
	if len(declaration) > 0 {
		sess.Declaration = &models.UserDeclaration{}
		if err := json.Unmarshal(declaration, sess.Declaration); err != nil {
			return nil, fmt.Errorf("unmarshal declaration: %w", err)
		}
	}
	return &sess, nil
}

func marshalDeclaration(d *models.UserDeclaration) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal declaration: %w", err)
	}
	return payload, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// PostgresAllowlistStore is the production AllowlistStore.
type PostgresAllowlistStore struct {
	db *sql.DB
}

func NewPostgresAllowlistStore(db *sql.DB) *PostgresAllowlistStore {
	return &PostgresAllowlistStore{db: db}
}

func (s *PostgresAllowlistStore) Add(ctx context.Context, sessionID uuid.UUID) error {
	const q = `
		INSERT INTO session_allowlist (session_id, added_at)
		VALUES ($1, NOW())
		ON CONFLICT (session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, sessionID); err != nil {
		return fmt.Errorf("insert allowlist entry: %w", err)
	}
	return nil
}

func (s *PostgresAllowlistStore) Contains(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM session_allowlist WHERE session_id = $1)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query allowlist: %w", err)
	}
	return ok, nil
}
