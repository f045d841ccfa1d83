// Package service implements the session orchestrator: the state machine
// coordinating providers, screening, the duplicate-registration index, the
// nullifier replay cache, and the credential issuer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"attest/internal/audit"
	"attest/internal/issuer"
	nullstore "attest/internal/nullifier/store"
	"attest/internal/payment"
	"attest/internal/provider"
	regstore "attest/internal/registration/store"
	"attest/internal/screening"
	screenstore "attest/internal/screening/store"
	"attest/internal/sentinel"
	"attest/internal/session/metrics"
	"attest/internal/session/models"
	"attest/internal/session/store"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// DeclarationValidity bounds how long a confirmed user declaration is
// honored before issuance triggers re-screening.
const DeclarationValidity = 5 * 24 * time.Hour

// Config wires the orchestrator's collaborators.
type Config struct {
	Sessions      store.Store
	Allowlist     store.AllowlistStore
	Providers     *provider.Registry
	Screener      screening.Searcher
	ScreeningHits screenstore.Store
	Registrations regstore.Store
	Collisions    regstore.CollisionStore
	Nullifiers    nullstore.Store
	Issuer        *issuer.Issuer
	Funding       payment.FundingVerifier
	Refunder      payment.Refunder
	RefundMutex   payment.Mutex

	// BlockedPrefixes are screening-identifier prefixes that make a PEP hit
	// blocking regardless of declaration.
	BlockedPrefixes []string
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// Service is the session orchestrator. All state lives in the injected
// stores; the service itself is stateless and safe for concurrent use.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Publisher
}

func New(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession inserts a new session in NEEDS_PAYMENT.
func (s *Service) CreateSession(ctx context.Context, userID string, kind models.Kind, providerName string) (*models.Session, error) {
	return s.createSession(ctx, userID, kind, providerName, models.StatusNeedsPayment, "")
}

// CreateSessionV2 inserts a new session directly in IN_PROGRESS. Payment
// enforcement is deferred to the payment collaborator: the supplied proof is
// bound to the session and may never be reused by another.
func (s *Service) CreateSessionV2(ctx context.Context, userID string, kind models.Kind, providerName, paymentRef string) (*models.Session, error) {
	if paymentRef != "" {
		if _, err := s.cfg.Sessions.FindByPaymentRef(ctx, paymentRef); err == nil {
			return nil, dErrors.New(dErrors.CodeConflict, "Payment has already been used to create a session")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check payment reference")
		}
	}
	return s.createSession(ctx, userID, kind, providerName, models.StatusInProgress, paymentRef)
}

func (s *Service) createSession(ctx context.Context, userID string, kind models.Kind, providerName string, status models.Status, paymentRef string) (*models.Session, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if !kind.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown session kind %q", kind))
	}
	if _, ok := s.cfg.Providers.Get(providerName); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown provider %q", providerName))
	}

	active, err := s.cfg.Sessions.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count sessions")
	}
	if active >= models.MaxActiveSessionsPerUser {
		return nil, dErrors.New(dErrors.CodeConflict, "Too many open sessions")
	}

	now := requestcontext.Now(ctx)
	sess := models.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Status:     status,
		Provider:   providerName,
		PaymentRef: paymentRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.cfg.Sessions.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsCreated(string(kind))
	}
	s.emit(ctx, sess, audit.ActionSessionCreated, "")
	return &sess, nil
}

// ListSessions returns all of a user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	sessions, err := s.cfg.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// GetSession returns one session by id.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.cfg.Sessions.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return sess, nil
}

// AttachProviderRef binds the provider-side identifier to a session. The
// reference is set once and immutable thereafter.
func (s *Service) AttachProviderRef(ctx context.Context, id uuid.UUID, ref string) (*models.Session, error) {
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider reference is required")
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.ProviderRef != "" {
		return nil, dErrors.New(dErrors.CodeConflict, "provider reference already set")
	}
	if sess.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodeWrongState, "session is closed")
	}

	sess.ProviderRef = ref
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}
	return sess, nil
}

// MarkFunded transitions NEEDS_PAYMENT → IN_PROGRESS after the payment
// collaborator confirms funding. A payment proof funds at most one session.
func (s *Service) MarkFunded(ctx context.Context, id uuid.UUID, paymentRef string) (*models.Session, error) {
	if paymentRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment reference is required")
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusNeedsPayment {
		return nil, dErrors.New(dErrors.CodeWrongState, "session does not need payment")
	}

	if other, err := s.cfg.Sessions.FindByPaymentRef(ctx, paymentRef); err == nil && other.ID != sess.ID {
		return nil, dErrors.New(dErrors.CodeConflict, "Payment has already been used")
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check payment reference")
	}

	funded, err := s.cfg.Funding.IsSessionFunded(ctx, sess.ID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify payment")
	}
	if !funded {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment not confirmed")
	}

	sess.PaymentRef = paymentRef
	sess.Status = models.StatusInProgress
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the race to another session claiming the same proof.
			return nil, dErrors.New(dErrors.CodeConflict, "Payment has already been used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}

	s.emit(ctx, *sess, audit.ActionSessionFunded, "")
	return sess, nil
}

// FailSession transitions a session to VERIFICATION_FAILED with a persisted
// reason. Failing an already-failed session is a no-op so client retries are
// harmless.
func (s *Service) FailSession(ctx context.Context, sess *models.Session, reason string) error {
	if sess.Status == models.StatusVerificationFailed {
		return nil
	}
	if sess.Status == models.StatusIssued || sess.Status == models.StatusRefunded {
		return dErrors.New(dErrors.CodeWrongState, "session is closed")
	}

	sess.Status = models.StatusVerificationFailed
	sess.FailureReason = reason
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}

	s.emit(ctx, *sess, audit.ActionSessionFailed, reason)
	return nil
}

// AdminFailSession fails a session by id on operator request.
func (s *Service) AdminFailSession(ctx context.Context, id uuid.UUID, reason string) (*models.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Failed by administrator"
	}
	if err := s.FailSession(ctx, sess, reason); err != nil {
		return nil, err
	}
	return sess, nil
}

// AllowlistSession exempts a session from sanctions blocking.
func (s *Service) AllowlistSession(ctx context.Context, id uuid.UUID) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.cfg.Allowlist.Add(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update allowlist")
	}
	s.emit(ctx, *sess, audit.ActionSessionAllowlisted, "")
	return nil
}

// ConfirmDeclaration records the user's confirmation of a pending PEP
// statement and returns the session to IN_PROGRESS.
func (s *Service) ConfirmDeclaration(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusNeedsUserDeclaration {
		return nil, dErrors.New(dErrors.CodeWrongState, "session has no pending declaration")
	}
	if sess.Declaration == nil || sess.Declaration.Statement == "" {
		return nil, dErrors.New(dErrors.CodeWrongState, "session has no statement to confirm")
	}

	sess.Declaration.Confirmed = true
	sess.Status = models.StatusInProgress
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}

	s.emit(ctx, *sess, audit.ActionDeclarationConfirm, "")
	return sess, nil
}

// Refund executes the mutex-guarded refund flow for a failed session.
func (s *Service) Refund(ctx context.Context, id uuid.UUID) (payment.Receipt, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return payment.Receipt{}, err
	}
	if sess.Status == models.StatusRefunded || sess.RefundTx != "" {
		return payment.Receipt{}, dErrors.New(dErrors.CodeConflict, "Session has already been refunded")
	}
	if sess.Status != models.StatusVerificationFailed {
		return payment.Receipt{}, dErrors.New(dErrors.CodeWrongState, "Only failed verifications can be refunded.")
	}

	release, err := s.cfg.RefundMutex.Acquire(ctx, sess.ID.String())
	if err != nil {
		if errors.Is(err, payment.ErrLocked) {
			if s.metrics != nil {
				s.metrics.IncrementRefunds("contended")
			}
			return payment.Receipt{}, dErrors.New(dErrors.CodeRefundInProgress, "Refund already in progress")
		}
		return payment.Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire refund lock")
	}
	// Release on every exit path, including panics in the transfer call.
	defer release()

	receipt, err := s.cfg.Refunder.Refund(ctx, sess.ID.String(), sess.UserID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementRefunds("error")
		}
		return payment.Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "refund transfer failed")
	}

	sess.RefundTx = receipt.TransactionHash
	sess.Status = models.StatusRefunded
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		// The transfer happened; surface the inconsistency loudly rather
		// than letting a retry double-refund.
		s.logger.ErrorContext(ctx, "refund transfer succeeded but session update failed",
			"session_id", sess.ID,
			"tx", receipt.TransactionHash,
			"error", err,
		)
		return receipt, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record refund")
	}

	if s.metrics != nil {
		s.metrics.IncrementRefunds("ok")
	}
	s.emit(ctx, *sess, audit.ActionSessionRefunded, "")
	return receipt, nil
}

func (s *Service) emit(ctx context.Context, sess models.Session, action audit.Action, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		SessionID: sess.ID.String(),
		UserID:    sess.UserID,
		Action:    action,
		Status:    string(sess.Status),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"session_id", sess.ID,
			"error", err,
		)
	}
}

