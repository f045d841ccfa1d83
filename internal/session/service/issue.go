package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"attest/internal/audit"
	"attest/internal/identity"
	"attest/internal/issuer"
	"attest/internal/nullifier"
	"attest/internal/provider"
	"attest/internal/registration"
	"attest/internal/screening"
	"attest/internal/sentinel"
	"attest/internal/session/models"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// IssueResult is the outcome of an issuance request. Exactly one of
// Credential and PendingDeclaration is set: a pending declaration means the
// caller must confirm the statement before issuance can proceed.
type IssueResult struct {
	Credential         *issuer.Credential
	PendingDeclaration *models.UserDeclaration
}

// IssueSession runs the issuance flow for a session against the presented
// nullifier. See issueSession for the algorithm; this wrapper only records
// metrics.
func (s *Service) IssueSession(ctx context.Context, id uuid.UUID, rawNullifier string) (*IssueResult, error) {
	start := time.Now()
	res, err := s.issueSession(ctx, id, rawNullifier)
	if s.metrics != nil {
		s.metrics.ObserveIssuanceLatency(time.Since(start).Seconds())
		switch {
		case err == nil && res.Credential != nil:
			s.metrics.IncrementIssuance("issued")
		case err == nil:
			s.metrics.IncrementIssuance("declaration_required")
		case dErrors.HasCode(err, dErrors.CodeTryAgain):
			s.metrics.IncrementIssuance("try_again")
		case dErrors.HasCode(err, dErrors.CodeVerificationFailed):
			s.metrics.IncrementIssuance("failed")
		default:
			s.metrics.IncrementIssuance("error")
		}
	}
	return res, err
}

// issueSession is ordered so that terminal and pending states fail fast, the
// replay cache is consulted before any provider traffic, and the nullifier is
// bound before the session is marked ISSUED.
func (s *Service) issueSession(ctx context.Context, id uuid.UUID, rawNullifier string) (*IssueResult, error) {
	nullifierValue, err := parseNullifier(rawNullifier)
	if err != nil {
		return nil, err
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case models.StatusVerificationFailed:
		reason := sess.FailureReason
		if reason == "" {
			reason = "Verification failed"
		}
		return nil, dErrors.New(dErrors.CodeVerificationFailed, reason)
	case models.StatusRefunded:
		return nil, dErrors.New(dErrors.CodeWrongState, "session has been refunded")
	case models.StatusNeedsUserDeclaration:
		return &IssueResult{PendingDeclaration: sess.Declaration}, nil
	case models.StatusNeedsPayment:
		return nil, dErrors.New(dErrors.CodeWrongState, "session needs payment")
	}

	now := requestcontext.Now(ctx)

	rec, err := s.cfg.Nullifiers.FindRecent(ctx, nullifierValue.String(), now.Add(-nullifier.ValidityWindow))
	if err == nil {
		return s.reissue(ctx, sess, nullifierValue, rec, now)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check nullifier")
	}

	if sess.Status != models.StatusInProgress && sess.Status != models.StatusPassedLivenessCheck {
		return nil, dErrors.New(dErrors.CodeWrongState, "session is not in progress")
	}
	if sess.ProviderRef == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session has no provider reference")
	}

	verifier, ok := s.cfg.Providers.Get(sess.Provider)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("provider %q not configured", sess.Provider))
	}

	providerStart := time.Now()
	outcome, err := verifier.Validate(ctx, sess.ProviderRef)
	if s.metrics != nil {
		s.metrics.ObserveProviderLatency(sess.Provider, time.Since(providerStart).Seconds())
	}
	if err != nil {
		if provider.IsRetryable(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeTryAgain, "Verification is not ready yet, try again shortly")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "provider check failed")
	}

	switch outcome.Status {
	case provider.OutcomeRetryable:
		return nil, dErrors.New(dErrors.CodeTryAgain, outcome.Reason)
	case provider.OutcomeFail:
		if err := s.FailSession(ctx, sess, outcome.Reason); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeVerificationFailed, outcome.Reason)
	}
	attrs := outcome.Attributes

	if sess.Kind == models.KindBiometrics && sess.Status == models.StatusInProgress {
		sess.Status = models.StatusPassedLivenessCheck
		sess.UpdatedAt = now
		if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
		}
	}

	if sess.Kind.RequiresScreening() && !declarationValid(sess, now) {
		pending, err := s.screen(ctx, sess, attrs, now)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return &IssueResult{PendingDeclaration: pending}, nil
		}
	}

	hashV1, hashV2 := identity.HashV1(attrs), identity.HashV2(attrs)
	if err := s.registerIdentity(ctx, sess, attrs, hashV1, hashV2, now, registration.RetentionWindow, false); err != nil {
		return nil, err
	}

	// Bind the nullifier before marking the session issued, so a crash
	// between the two leaves a replayable record rather than an issued
	// session with no way to re-fetch its credential.
	err = s.cfg.Nullifiers.Put(ctx, nullifier.Record{
		Nullifier:   nullifierValue.String(),
		UserID:      sess.UserID,
		Provider:    sess.Provider,
		ProviderRef: sess.ProviderRef,
		HashV2:      hashV2,
		SessionIDs:  []string{sess.ID.String()},
		CreatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "Nullifier has already been used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record nullifier")
	}

	cred, err := s.cfg.Issuer.Issue(ctx, nullifierValue, attrs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}

	sess.Status = models.StatusIssued
	sess.UpdatedAt = now
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}
	s.emit(ctx, *sess, audit.ActionSessionIssued, "")

	return &IssueResult{Credential: cred}, nil
}

// reissue serves the replay path: the nullifier is already bound to a
// validated provider check, so attributes are re-fetched by reference and the
// credential re-derived without re-running validation or screening.
func (s *Service) reissue(ctx context.Context, sess *models.Session, nullifierValue *big.Int, rec *nullifier.Record, now time.Time) (*IssueResult, error) {
	if rec.UserID != sess.UserID {
		return nil, dErrors.New(dErrors.CodeConflict, "Nullifier has already been used")
	}

	verifier, ok := s.cfg.Providers.Get(rec.Provider)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("provider %q not configured", rec.Provider))
	}
	attrs, err := verifier.Attributes(ctx, rec.ProviderRef)
	if err != nil {
		if provider.IsRetryable(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeTryAgain, "Verification is not ready yet, try again shortly")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch attributes")
	}

	hashV1, hashV2 := identity.HashV1(attrs), identity.HashV2(attrs)
	if err := s.registerIdentity(ctx, sess, attrs, hashV1, hashV2, now, registration.ReplayRetentionWindow, true); err != nil {
		return nil, err
	}

	cred, err := s.cfg.Issuer.Issue(ctx, nullifierValue, attrs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}

	if err := s.cfg.Nullifiers.AppendSession(ctx, rec.Nullifier, sess.ID.String()); err != nil {
		s.logger.WarnContext(ctx, "failed to append session to nullifier record",
			"session_id", sess.ID,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementNullifierReplays()
	}

	if sess.Status != models.StatusIssued {
		sess.Status = models.StatusIssued
		sess.UpdatedAt = now
		if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
		}
		s.emit(ctx, *sess, audit.ActionSessionIssued, "")
	}

	return &IssueResult{Credential: cred}, nil
}

// screen runs the sanctions sub-machine. A nil, nil return means issuance may
// proceed; a non-nil declaration means the session moved to
// NEEDS_USER_DECLARATION and is waiting on the user.
func (s *Service) screen(ctx context.Context, sess *models.Session, attrs identity.Attributes, now time.Time) (*models.UserDeclaration, error) {
	fullName := strings.TrimSpace(attrs.FirstName + " " + attrs.LastName)
	hits, err := s.cfg.Screener.Search(ctx, fullName, attrs.DateOfBirth)
	if err != nil {
		if provider.IsRetryable(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeTryAgain, "Screening is unavailable, try again shortly")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "screening failed")
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// Hit storage is analytics only; issuance decisions never depend on it.
	err = s.cfg.ScreeningHits.Record(ctx, screening.SessionHits{
		SessionID:  sess.ID.String(),
		Hits:       hits,
		ObservedAt: now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record screening hits",
			"session_id", sess.ID,
			"error", err,
		)
	}

	c := screening.Classify(hits, s.cfg.BlockedPrefixes)
	if s.metrics != nil {
		s.metrics.IncrementScreeningHits("blocking", len(c.Blocking))
		s.metrics.IncrementScreeningHits("declarable", len(c.Declarable))
	}

	if len(c.Blocking) > 0 {
		allowed, err := s.cfg.Allowlist.Contains(ctx, sess.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check allowlist")
		}
		if !allowed {
			reason := screening.BlockingReason(c.Blocking)
			if err := s.FailSession(ctx, sess, reason); err != nil {
				return nil, err
			}
			return nil, dErrors.New(dErrors.CodeVerificationFailed, reason)
		}
	}

	if len(c.Declarable) == 0 {
		return nil, nil
	}

	decl := &models.UserDeclaration{
		Statement:            screening.Statement(c.Declarable),
		StatementGeneratedAt: now,
	}
	sess.Declaration = decl
	sess.Status = models.StatusNeedsUserDeclaration
	sess.UpdatedAt = now
	if err := s.cfg.Sessions.Update(ctx, *sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}
	s.emit(ctx, *sess, audit.ActionDeclarationRequired, "")
	return decl, nil
}

// registerIdentity runs the duplicate check and, when clear, writes the
// registration. allowOwn tolerates the caller's own existing registration,
// which the replay path expects to find.
func (s *Service) registerIdentity(ctx context.Context, sess *models.Session, attrs identity.Attributes, hashV1, hashV2 string, now time.Time, window time.Duration, allowOwn bool) error {
	prior, err := s.cfg.Registrations.FindActive(ctx, hashV1, hashV2, now.Add(-window))
	if err == nil {
		if allowOwn && prior.ID == sess.UserID {
			return nil
		}
		return s.failDuplicate(ctx, sess, attrs, prior, hashV1, hashV2, now)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registrations")
	}

	err = s.cfg.Registrations.Register(ctx, registration.Registration{
		ID:       sess.UserID,
		HashV1:   hashV1,
		HashV2:   hashV2,
		IssuedAt: now,
	}, now.Add(-window))
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		// Lost a concurrent registration race; resolve the winner so the
		// failure reason can name the prior registration.
		prior, findErr := s.cfg.Registrations.FindActive(ctx, hashV1, hashV2, now.Add(-window))
		if findErr != nil {
			return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to resolve duplicate registration")
		}
		if allowOwn && prior.ID == sess.UserID {
			return nil
		}
		return s.failDuplicate(ctx, sess, attrs, prior, hashV1, hashV2, now)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
	}
	return nil
}

func (s *Service) failDuplicate(ctx context.Context, sess *models.Session, attrs identity.Attributes, prior *registration.Registration, hashV1, hashV2 string, now time.Time) error {
	if s.metrics != nil {
		s.metrics.IncrementDuplicateRegistrations()
	}

	first, middle, last, dob, country := fieldFlags(attrs)
	err := s.cfg.Collisions.Record(ctx, registration.Collision{
		SessionID:  sess.ID.String(),
		PriorID:    prior.ID,
		MatchedV1:  hashV1 == prior.HashV1,
		MatchedV2:  hashV2 == prior.HashV2,
		HasFirst:   first,
		HasMiddle:  middle,
		HasLast:    last,
		HasDOB:     dob,
		HasCountry: country,
		DetectedAt: now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record registration collision",
			"session_id", sess.ID,
			"error", err,
		)
	}

	reason := fmt.Sprintf("User has already registered. User ID: %s", prior.ID)
	if err := s.FailSession(ctx, sess, reason); err != nil {
		return err
	}
	return dErrors.New(dErrors.CodeVerificationFailed, reason)
}

func declarationValid(sess *models.Session, now time.Time) bool {
	d := sess.Declaration
	return d != nil && d.Confirmed && now.Sub(d.StatementGeneratedAt) <= DeclarationValidity
}

func parseNullifier(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || n.Sign() < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Invalid nullifier")
	}
	return n, nil
}

func fieldFlags(attrs identity.Attributes) (first, middle, last, dob, country bool) {
	return attrs.FirstName != "", attrs.MiddleName != "", attrs.LastName != "",
		attrs.DateOfBirth != "", attrs.IssuingCountry != ""
}
