// Package nullifier implements the replay cache binding an issuance
// nullifier to the provider check it was issued against. A row existing is
// proof that issuance already validated; the replay path re-derives the
// credential from the recorded reference without re-running validation.
package nullifier

import "time"

// ValidityWindow bounds how long after first issuance a nullifier can be
// replayed to re-fetch credentials.
const ValidityWindow = 5 * 24 * time.Hour

// Record associates an issuance nullifier with the provider reference and
// identity hash used at first issuance.
type Record struct {
	Nullifier   string // decimal big-integer string
	UserID      string // pseudonymous requester id
	Provider    string
	ProviderRef string
	HashV2      string
	SessionIDs  []string
	CreatedAt   time.Time
}
