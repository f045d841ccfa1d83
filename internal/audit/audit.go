// Package audit records session lifecycle events. Sessions are never
// physically deleted, so the event stream is the append-only audit trail of
// every transition.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened to a session.
type Action string

const (
	ActionSessionCreated      Action = "session.created"
	ActionSessionFunded       Action = "session.funded"
	ActionSessionFailed       Action = "session.failed"
	ActionSessionIssued       Action = "session.issued"
	ActionDeclarationRequired Action = "session.declaration_required"
	ActionDeclarationConfirm  Action = "session.declaration_confirmed"
	ActionSessionRefunded     Action = "session.refunded"
	ActionSessionAllowlisted  Action = "session.allowlisted"
)

// Event is one audit record. Reason carries failure reasons only; no PII.
type Event struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Action    Action    `json:"action"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
