package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"attest/internal/audit"
	"attest/internal/identity"
	"attest/internal/provider"
	"attest/internal/registration"
	"attest/internal/screening"
	"attest/internal/session/models"
	dErrors "attest/pkg/domain-errors"
)

const testNullifier = "918273645546372819"

var testAttrs = identity.Attributes{
	FirstName:      "Ada",
	LastName:       "Lovelace",
	DateOfBirth:    "1985-12-10",
	IssuingCountry: "GBR",
	DocumentExpiry: "2030-01-01",
}

func pepHit() screening.Hit {
	return screening.Hit{
		Name:            "Jane Roe",
		Title:           "Senator",
		SIIdentifier:    "US123",
		ConfidenceScore: 0.95,
		DataSource:      screening.DataSource{Name: "PEP data", ShortName: "PEP"},
	}
}

func sanctionsHit() screening.Hit {
	return screening.Hit{
		Name:            "John Doe",
		ConfidenceScore: 0.97,
		DataSource:      screening.DataSource{Name: "OFAC SDN", ShortName: "SDN"},
	}
}

func (s *ServiceSuite) TestIssueSession() {
	s.Run("malformed nullifier rejected", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)

		res, err := s.service.IssueSession(s.ctx(), sess.ID, "0x-not-decimal")
		s.Nil(res)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("session needing payment is wrong state", func() {
		sess := s.seedSession(models.KindKYC, models.StatusNeedsPayment)

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongState))
	})

	s.Run("failed session returns stored reason", func() {
		sess := s.seedSession(models.KindKYC, models.StatusVerificationFailed, func(m *models.Session) {
			m.FailureReason = "Document check failed"
		})

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
		s.Contains(err.Error(), "Document check failed")
	})

	s.Run("provider pass issues credential", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)
		s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)

		res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.Require().NoError(err)
		s.Require().NotNil(res.Credential)
		s.Equal(testNullifier, res.Credential.Nullifier)
		s.NotEmpty(res.Credential.Signature.S)

		stored, err := s.sessions.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusIssued, stored.Status)

		rec, err := s.nullifiers.FindRecent(context.Background(), testNullifier, s.now.Add(-time.Minute))
		s.Require().NoError(err)
		s.Equal(sess.ProviderRef, rec.ProviderRef)
		s.Contains(rec.SessionIDs, sess.ID.String())
		s.Contains(s.auditActions(), audit.ActionSessionIssued)
	})

	s.Run("retryable outcome keeps session in progress", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)
		s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Retryable("Report is not ready"), nil)

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeTryAgain))

		stored, err := s.sessions.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, stored.Status)
	})

	s.Run("retryable provider error maps to try again", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)
		s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).
			Return(provider.Outcome{}, provider.NewProviderError(provider.ErrorTimeout, "onfido", "request timed out", nil))

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeTryAgain))
	})

	s.Run("permanent provider error is internal", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)
		s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).
			Return(provider.Outcome{}, provider.NewProviderError(provider.ErrorAuthentication, "onfido", "bad token", nil))

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("provider fail outcome fails session with reason", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)
		s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Fail("Liveness check failed"), nil)

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))

		stored, err := s.sessions.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusVerificationFailed, stored.Status)
		s.Equal("Liveness check failed", stored.FailureReason)
	})

	s.Run("missing provider reference rejected", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
			m.ProviderRef = ""
		})

		_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestIssueSessionIdempotent() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil).Times(1)
	s.verifier.EXPECT().Attributes(gomock.Any(), sess.ProviderRef).Return(testAttrs, nil).Times(1)

	first, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)

	// The retry must not re-run validation; the replay cache serves it.
	second, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.Equal(first.Credential, second.Credential)
}

func (s *ServiceSuite) TestIssueSessionReplayAcrossSessions() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil).Times(1)

	first, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)

	// A second session for the same user presenting the same nullifier is
	// served from the replay cache against the original check.
	second := s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
		m.UserID = sess.UserID
	})
	s.verifier.EXPECT().Attributes(gomock.Any(), sess.ProviderRef).Return(testAttrs, nil).Times(1)

	res, err := s.service.IssueSession(s.ctx(), second.ID, testNullifier)
	s.Require().NoError(err)
	s.Equal(first.Credential, res.Credential)

	stored, err := s.sessions.Get(context.Background(), second.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, stored.Status)

	rec, err := s.nullifiers.FindRecent(context.Background(), testNullifier, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.ElementsMatch([]string{sess.ID.String(), second.ID.String()}, rec.SessionIDs)
}

func (s *ServiceSuite) TestIssueSessionReplayWrongUser() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil).Times(1)

	_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)

	other := s.seedSession(models.KindKYC, models.StatusInProgress)
	_, err = s.service.IssueSession(s.ctx(), other.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestIssueSessionDuplicateIdentity() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)

	_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)

	// A different user verifying the same identity attributes must not be
	// issued a second credential inside the retention window.
	second := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), second.ProviderRef).Return(provider.Pass(testAttrs), nil)

	_, err = s.service.IssueSession(s.ctx(), second.ID, "42")
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Contains(err.Error(), "already registered")
	s.Contains(err.Error(), sess.UserID)

	stored, err := s.sessions.Get(context.Background(), second.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerificationFailed, stored.Status)

	collisions := s.collisions.All()
	s.Require().Len(collisions, 1)
	s.Equal(second.ID.String(), collisions[0].SessionID)
	s.Equal(sess.UserID, collisions[0].PriorID)
	s.True(collisions[0].MatchedV2)
}

func (s *ServiceSuite) TestIssueSessionReissueAfterRetentionExpiry() {
	// An identity whose prior registration has aged out of the retention
	// window must be able to verify again, not be blocked by the stale row.
	expiredAt := s.now.Add(-365 * 24 * time.Hour)
	s.Require().NoError(s.registrations.Register(context.Background(), registration.Registration{
		ID:       "prior-user",
		HashV1:   identity.HashV1(testAttrs),
		HashV2:   identity.HashV2(testAttrs),
		IssuedAt: expiredAt,
	}, expiredAt.Add(-registration.RetentionWindow)))

	sess := s.seedSession(models.KindKYC, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)

	res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.Require().NotNil(res.Credential)

	stored, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, stored.Status)
}

func (s *ServiceSuite) TestIssueSessionDeclarationFlow() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil).Times(2)
	s.searcher.EXPECT().Search(gomock.Any(), "Ada Lovelace", testAttrs.DateOfBirth).
		Return([]screening.Hit{pepHit()}, nil).Times(1)

	res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.Nil(res.Credential)
	s.Require().NotNil(res.PendingDeclaration)
	s.Contains(res.PendingDeclaration.Statement, "Jane Roe (Senator)")
	s.Contains(res.PendingDeclaration.Statement, "Politically Exposed Persons")

	// Re-requesting issuance while the declaration is pending neither
	// re-screens nor re-validates.
	res, err = s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.NotNil(res.PendingDeclaration)

	_, err = s.service.ConfirmDeclaration(s.ctx(), sess.ID)
	s.Require().NoError(err)

	res, err = s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.NotNil(res.Credential)

	recorded, err := s.hits.BySession(context.Background(), sess.ID.String())
	s.Require().NoError(err)
	s.Len(recorded, 1)
}

func (s *ServiceSuite) TestIssueSessionExpiredDeclarationRescreens() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress, func(m *models.Session) {
		m.Declaration = &models.UserDeclaration{
			Statement:            "I certify that I am not any of the following Politically Exposed Persons who have a similar name: Jane Roe (Senator)",
			Confirmed:            true,
			StatementGeneratedAt: s.now.Add(-6 * 24 * time.Hour),
		}
	})
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)
	s.searcher.EXPECT().Search(gomock.Any(), "Ada Lovelace", testAttrs.DateOfBirth).Return(nil, nil).Times(1)

	res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.NotNil(res.Credential)
}

func (s *ServiceSuite) TestIssueSessionSanctionsBlock() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]screening.Hit{sanctionsHit()}, nil)

	_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Contains(err.Error(), "Sanctions match found. Confidence scores: (OFAC SDN: 0.97)")

	stored, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerificationFailed, stored.Status)
}

func (s *ServiceSuite) TestIssueSessionBlockedPEPPrefix() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress)
	hit := pepHit()
	hit.SIIdentifier = "RU456"
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]screening.Hit{hit}, nil)

	_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Contains(err.Error(), "Sanctions match found")
}

func (s *ServiceSuite) TestIssueSessionAllowlistedBlock() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress)
	s.Require().NoError(s.service.AllowlistSession(s.ctx(), sess.ID))

	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]screening.Hit{sanctionsHit()}, nil)

	res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.NotNil(res.Credential)
}

func (s *ServiceSuite) TestIssueSessionScreeningUnavailable() {
	sess := s.seedSession(models.KindAML, models.StatusInProgress)
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)
	s.searcher.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, provider.NewProviderError(provider.ErrorProviderOutage, "sanctions", "upstream 503", errors.New("503")))

	_, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeTryAgain))

	stored, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, stored.Status)
}

func (s *ServiceSuite) TestIssueSessionBiometrics() {
	sess := s.seedSession(models.KindBiometrics, models.StatusInProgress, func(m *models.Session) {
		m.Provider = "onfido"
	})
	s.verifier.EXPECT().Validate(gomock.Any(), sess.ProviderRef).Return(provider.Pass(testAttrs), nil)

	res, err := s.service.IssueSession(s.ctx(), sess.ID, testNullifier)
	s.Require().NoError(err)
	s.NotNil(res.Credential)

	stored, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, stored.Status)
}
