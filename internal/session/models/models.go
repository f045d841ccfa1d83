// Package models defines the verification session entity and its state
// machine vocabulary.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind selects the verification flow a session runs.
type Kind string

const (
	KindKYC        Kind = "kyc"        // government-id document verification
	KindAML        Kind = "aml"        // watchlist screening with user declaration
	KindBiometrics Kind = "biometrics" // liveness + face match + document scan
)

// Valid reports whether k is a known session kind.
func (k Kind) Valid() bool {
	switch k {
	case KindKYC, KindAML, KindBiometrics:
		return true
	}
	return false
}

// RequiresScreening reports whether sessions of this kind run the sanctions
// screening sub-machine before issuance.
func (k Kind) RequiresScreening() bool {
	return k == KindAML
}

// Status is the session state. The wire values are a stable contract.
type Status string

const (
	StatusNeedsPayment         Status = "NEEDS_PAYMENT"
	StatusInProgress           Status = "IN_PROGRESS"
	StatusPassedLivenessCheck  Status = "PASSED_LIVENESS_CHECK"
	StatusNeedsUserDeclaration Status = "NEEDS_USER_DECLARATION"
	StatusIssued               Status = "ISSUED"
	StatusVerificationFailed   Status = "VERIFICATION_FAILED"
	StatusRefunded             Status = "REFUNDED"
)

// Terminal reports whether no further verification work can happen in this
// status. VERIFICATION_FAILED counts as terminal even though the separate
// refund flow may still move it to REFUNDED.
func (s Status) Terminal() bool {
	switch s {
	case StatusIssued, StatusVerificationFailed, StatusRefunded:
		return true
	}
	return false
}

// MaxActiveSessionsPerUser caps concurrently non-terminal sessions per user
// to bound abuse.
const MaxActiveSessionsPerUser = 15

// UserDeclaration holds the PEP statement a user must confirm before an AML
// session can issue.
type UserDeclaration struct {
	Statement            string    `json:"statement"`
	Confirmed            bool      `json:"confirmed"`
	StatementGeneratedAt time.Time `json:"statementGeneratedAt"`
}

// Session is one verification attempt. Sessions are mutated only by the
// orchestrator and never physically deleted.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"userId"` // pseudonymous requester id, not PII
	Kind   Kind      `json:"kind"`
	Status Status    `json:"status"`

	Provider string `json:"provider"`
	// ProviderRef is the provider-side identifier (check id, applicant id,
	// inquiry id). Set once, immutable thereafter.
	ProviderRef string `json:"providerRef,omitempty"`

	// FailureReason is set only on transition into VERIFICATION_FAILED and
	// never cleared.
	FailureReason string `json:"failureReason,omitempty"`

	Declaration *UserDeclaration `json:"userDeclaration,omitempty"`

	PaymentRef string `json:"paymentRef,omitempty"`
	RefundTx   string `json:"refundTx,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanTransition reports whether moving from the current status to next is a
// legal state machine edge.
func (s *Session) CanTransition(next Status) bool {
	switch s.Status {
	case StatusNeedsPayment:
		return next == StatusInProgress || next == StatusVerificationFailed
	case StatusInProgress:
		switch next {
		case StatusPassedLivenessCheck, StatusNeedsUserDeclaration,
			StatusIssued, StatusVerificationFailed:
			return true
		}
		return false
	case StatusPassedLivenessCheck:
		return next == StatusIssued || next == StatusVerificationFailed
	case StatusNeedsUserDeclaration:
		// Confirmation returns the session to IN_PROGRESS.
		return next == StatusInProgress || next == StatusVerificationFailed
	case StatusVerificationFailed:
		return next == StatusRefunded
	}
	return false
}
