// Package registration implements the duplicate-registration index: the
// time-windowed record of identity hashes that have already been issued
// credentials. It is the system's Sybil-resistance boundary.
package registration

import "time"

// Retention windows for duplicate lookups. A registration older than the
// window no longer blocks re-issuance. The replay path gets a grace period
// equal to the nullifier validity window so a registration cannot expire
// between original issuance and a replay request made just inside it.
const (
	RetentionWindow       = 11 * 30 * 24 * time.Hour
	ReplayRetentionWindow = RetentionWindow + 5*24*time.Hour
)

// Registration is one successfully issued identity hash.
type Registration struct {
	ID       string
	HashV1   string
	HashV2   string
	IssuedAt time.Time
}

// Collision records metadata about a duplicate detection for fraud
// analytics. Only hash-scheme and field-population flags are kept, never
// raw attribute values.
type Collision struct {
	SessionID  string
	PriorID    string
	MatchedV1  bool
	MatchedV2  bool
	HasFirst   bool
	HasMiddle  bool
	HasLast    bool
	HasDOB     bool
	HasCountry bool
	DetectedAt time.Time
}
