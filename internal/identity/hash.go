// Package identity derives deterministic, non-reversible identity hashes from
// verified personal attributes. The hashes key the duplicate-registration
// index; raw attributes are never persisted.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Attributes is the minimal verified attribute set needed for identity
// hashing and credential issuance.
type Attributes struct {
	FirstName      string
	MiddleName     string
	LastName       string
	DateOfBirth    string // YYYY-MM-DD
	IssuingCountry string // ISO 3166-1 alpha-3
	DocumentExpiry string // YYYY-MM-DD, may be empty
}

// HashV1 is the legacy identity hash: a plain SHA-256 over the raw
// concatenation of first name, last name, and date of birth. Retained for
// backward lookups only; historical registrations were keyed with it.
func HashV1(a Attributes) string {
	sum := sha256.Sum256([]byte(a.FirstName + a.LastName + a.DateOfBirth))
	return hex.EncodeToString(sum[:])
}

// HashV2 is the current identity hash. Fields are trimmed, lowercased, and
// joined with an unambiguous separator before hashing, so "Ann A" + "Lee"
// and "Ann" + "A Lee" no longer collide the way they did under V1.
func HashV2(a Attributes) string {
	parts := []string{
		normalize(a.FirstName),
		normalize(a.MiddleName),
		normalize(a.LastName),
		normalize(a.DateOfBirth),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// epochOffset1900 is the number of seconds between 1900-01-01 and the Unix
// epoch. Dates are encoded relative to 1900 so every plausible date of birth
// is a positive integer.
const epochOffset1900 = 2208988800

// DateAsInt encodes a YYYY-MM-DD date as seconds since 1900-01-01 UTC.
func DateAsInt(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	year := t.Year()
	if year < 1900 || year > 2099 {
		return 0, fmt.Errorf("date %q out of supported range", date)
	}
	return t.Unix() + epochOffset1900, nil
}

// TruncateToBytes shortens s so its UTF-8 encoding fits within n bytes,
// cutting only at rune boundaries. The second return reports whether any
// data was discarded.
func TruncateToBytes(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	total := 0
	for i, r := range s {
		size := len(string(r))
		if total+size > n {
			return s[:i], true
		}
		total += size
	}
	return s, false
}
