// Package payment defines the payment collaborator boundary and the refund
// mutex that serializes refund attempts per session.
package payment

import "context"

// Receipt describes a completed refund transfer.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// FundingVerifier answers whether a session's payment cleared. One funding
// proof maps to at most one session; that uniqueness is enforced on the
// collaborator's side.
type FundingVerifier interface {
	IsSessionFunded(ctx context.Context, sessionID string) (bool, error)
}

// Refunder executes the funds transfer for a refund.
type Refunder interface {
	Refund(ctx context.Context, sessionID, userID string) (Receipt, error)
}

// Mutex serializes refunds per session. Acquire is atomic insert-if-absent:
// a failed acquisition means a refund is already in progress, never a
// silent retry. The returned release must run on every exit path.
type Mutex interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// ErrLocked is returned by Acquire when another refund holds the lock.
var ErrLocked = errLocked{}

type errLocked struct{}

func (errLocked) Error() string { return "refund already in progress" }

// StaticFundingVerifier reports a fixed answer for every session. Used for
// flows where payment enforcement lives entirely at the collaborator, and
// in tests.
type StaticFundingVerifier bool

func (v StaticFundingVerifier) IsSessionFunded(context.Context, string) (bool, error) {
	return bool(v), nil
}
