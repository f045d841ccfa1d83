package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"attest/internal/audit"
	"attest/internal/payment"
	"attest/internal/session/models"
	dErrors "attest/pkg/domain-errors"
)

func (s *ServiceSuite) TestCreateSession() {
	s.Run("creates session needing payment", func() {
		sess, err := s.service.CreateSession(s.ctx(), "user-1", models.KindKYC, "onfido")
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsPayment, sess.Status)
		s.Equal("user-1", sess.UserID)
		s.Contains(s.auditActions(), audit.ActionSessionCreated)
	})

	s.Run("rejects unknown kind", func() {
		_, err := s.service.CreateSession(s.ctx(), "user-1", models.Kind("palmistry"), "onfido")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects unknown provider", func() {
		_, err := s.service.CreateSession(s.ctx(), "user-1", models.KindKYC, "jumio")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects empty user id", func() {
		_, err := s.service.CreateSession(s.ctx(), "", models.KindKYC, "onfido")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("caps open sessions per user", func() {
		for i := 0; i < models.MaxActiveSessionsPerUser; i++ {
			s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
				m.UserID = "user-capped"
			})
		}

		_, err := s.service.CreateSession(s.ctx(), "user-capped", models.KindKYC, "onfido")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("terminal sessions do not count toward the cap", func() {
		for i := 0; i < models.MaxActiveSessionsPerUser; i++ {
			s.seedSession(models.KindKYC, models.StatusIssued, func(m *models.Session) {
				m.UserID = "user-done"
			})
		}

		_, err := s.service.CreateSession(s.ctx(), "user-done", models.KindKYC, "onfido")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestCreateSessionV2() {
	s.Run("starts in progress with payment bound", func() {
		sess, err := s.service.CreateSessionV2(s.ctx(), "user-1", models.KindAML, "onfido", "tx-abc")
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, sess.Status)
		s.Equal("tx-abc", sess.PaymentRef)
	})

	s.Run("rejects a reused payment proof", func() {
		s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
			m.PaymentRef = "tx-used"
		})

		_, err := s.service.CreateSessionV2(s.ctx(), "user-2", models.KindKYC, "onfido", "tx-used")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestListSessions() {
	first := s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
		m.UserID = "user-list"
		m.CreatedAt = s.now.Add(-2 * time.Hour)
	})
	second := s.seedSession(models.KindAML, models.StatusNeedsPayment, func(m *models.Session) {
		m.UserID = "user-list"
		m.CreatedAt = s.now.Add(-time.Hour)
	})
	s.seedSession(models.KindKYC, models.StatusInProgress)

	sessions, err := s.service.ListSessions(s.ctx(), "user-list")
	s.Require().NoError(err)
	s.Require().Len(sessions, 2)
	s.Equal(second.ID, sessions[0].ID)
	s.Equal(first.ID, sessions[1].ID)

	_, err = s.service.ListSessions(s.ctx(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestAttachProviderRef() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
		m.ProviderRef = ""
	})

	updated, err := s.service.AttachProviderRef(s.ctx(), sess.ID, "check-123")
	s.Require().NoError(err)
	s.Equal("check-123", updated.ProviderRef)

	// Immutable once set.
	_, err = s.service.AttachProviderRef(s.ctx(), sess.ID, "check-456")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestMarkFunded() {
	s.Run("funds a session needing payment", func() {
		sess := s.seedSession(models.KindKYC, models.StatusNeedsPayment)
		s.funding.EXPECT().IsSessionFunded(gomock.Any(), sess.ID.String()).Return(true, nil)

		updated, err := s.service.MarkFunded(s.ctx(), sess.ID, "tx-1")
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, updated.Status)
		s.Equal("tx-1", updated.PaymentRef)
		s.Contains(s.auditActions(), audit.ActionSessionFunded)
	})

	s.Run("rejects unconfirmed payment", func() {
		sess := s.seedSession(models.KindKYC, models.StatusNeedsPayment)
		s.funding.EXPECT().IsSessionFunded(gomock.Any(), sess.ID.String()).Return(false, nil)

		_, err := s.service.MarkFunded(s.ctx(), sess.ID, "tx-2")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects a payment proof another session consumed", func() {
		s.seedSession(models.KindKYC, models.StatusInProgress, func(m *models.Session) {
			m.PaymentRef = "tx-taken"
		})
		sess := s.seedSession(models.KindKYC, models.StatusNeedsPayment)

		_, err := s.service.MarkFunded(s.ctx(), sess.ID, "tx-taken")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("wrong state rejected", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)

		_, err := s.service.MarkFunded(s.ctx(), sess.ID, "tx-3")
		s.True(dErrors.HasCode(err, dErrors.CodeWrongState))
	})
}

func (s *ServiceSuite) TestConfirmDeclaration() {
	s.Run("confirms and returns to in progress", func() {
		sess := s.seedSession(models.KindAML, models.StatusNeedsUserDeclaration, func(m *models.Session) {
			m.Declaration = &models.UserDeclaration{
				Statement:            "I certify that I am not any of the following Politically Exposed Persons who have a similar name: Jane Roe (Senator)",
				StatementGeneratedAt: s.now.Add(-time.Minute),
			}
		})

		updated, err := s.service.ConfirmDeclaration(s.ctx(), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, updated.Status)
		s.True(updated.Declaration.Confirmed)
		s.Contains(s.auditActions(), audit.ActionDeclarationConfirm)
	})

	s.Run("wrong state rejected", func() {
		sess := s.seedSession(models.KindAML, models.StatusInProgress)

		_, err := s.service.ConfirmDeclaration(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongState))
	})

	s.Run("missing statement rejected", func() {
		sess := s.seedSession(models.KindAML, models.StatusNeedsUserDeclaration)

		_, err := s.service.ConfirmDeclaration(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongState))
	})
}

func (s *ServiceSuite) TestAdminFailSession() {
	sess := s.seedSession(models.KindKYC, models.StatusInProgress)

	updated, err := s.service.AdminFailSession(s.ctx(), sess.ID, "chargeback received")
	s.Require().NoError(err)
	s.Equal(models.StatusVerificationFailed, updated.Status)
	s.Equal("chargeback received", updated.FailureReason)

	// Idempotent: failing again neither errors nor rewrites the reason.
	updated, err = s.service.AdminFailSession(s.ctx(), sess.ID, "another reason")
	s.Require().NoError(err)
	s.Equal("chargeback received", updated.FailureReason)
}

func (s *ServiceSuite) TestRefund() {
	s.Run("refunds a failed session", func() {
		sess := s.seedSession(models.KindKYC, models.StatusVerificationFailed)
		receipt := payment.Receipt{TransactionHash: "0xrefund", Amount: "5.00", Currency: "USDC"}
		s.refunder.EXPECT().Refund(gomock.Any(), sess.ID.String(), sess.UserID).Return(receipt, nil)

		got, err := s.service.Refund(s.ctx(), sess.ID)
		s.Require().NoError(err)
		s.Equal(receipt, got)

		stored, err := s.sessions.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRefunded, stored.Status)
		s.Equal("0xrefund", stored.RefundTx)
		s.Contains(s.auditActions(), audit.ActionSessionRefunded)
	})

	s.Run("only failed verifications can be refunded", func() {
		sess := s.seedSession(models.KindKYC, models.StatusInProgress)

		_, err := s.service.Refund(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeWrongState))
		s.Contains(err.Error(), "Only failed verifications can be refunded.")
	})

	s.Run("already refunded rejected", func() {
		sess := s.seedSession(models.KindKYC, models.StatusRefunded, func(m *models.Session) {
			m.RefundTx = "0xdone"
		})

		_, err := s.service.Refund(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("not found", func() {
		_, err := s.service.Refund(s.ctx(), uuid.New())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRefundConcurrent() {
	sess := s.seedSession(models.KindKYC, models.StatusVerificationFailed)

	inTransfer := make(chan struct{})
	finish := make(chan struct{})
	s.refunder.EXPECT().Refund(gomock.Any(), sess.ID.String(), sess.UserID).
		DoAndReturn(func(context.Context, string, string) (payment.Receipt, error) {
			close(inTransfer)
			<-finish
			return payment.Receipt{TransactionHash: "0xonce"}, nil
		}).Times(1)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = s.service.Refund(s.ctx(), sess.ID)
	}()

	// Wait until the first refund holds the lock mid-transfer, then race it.
	<-inTransfer
	_, err := s.service.Refund(s.ctx(), sess.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeRefundInProgress))
	s.Contains(err.Error(), "Refund already in progress")

	close(finish)
	wg.Wait()
	s.NoError(firstErr)

	stored, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRefunded, stored.Status)
	s.Equal("0xonce", stored.RefundTx)
}
