package screening

import (
	"fmt"
	"strings"
)

// Classification separates hits by required handling. Blocking hits fail the
// session outright (unless allow-listed); declarable hits require a user
// declaration before issuance can proceed.
type Classification struct {
	Blocking   []Hit
	Declarable []Hit
}

// Classify splits hits into blocking and declarable sets.
//
// A hit is blocking if it comes from any non-PEP list, or if it is a PEP hit
// whose identifier matches one of the configured high-risk prefixes. A PEP
// hit with no identifier at all is treated as blocking: we cannot prove it
// is outside the blocked jurisdictions, so we fail closed. Every remaining
// PEP hit is declarable, including ones missing a data hash.
func Classify(hits []Hit, blockedPrefixes []string) Classification {
	var c Classification
	for _, hit := range hits {
		if hit.DataSource.ShortName != PEPSourceShortName {
			c.Blocking = append(c.Blocking, hit)
			continue
		}
		if hit.SIIdentifier == "" || matchesPrefix(hit.SIIdentifier, blockedPrefixes) {
			c.Blocking = append(c.Blocking, hit)
			continue
		}
		c.Declarable = append(c.Declarable, hit)
	}
	return c
}

func matchesPrefix(identifier string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(identifier, p) {
			return true
		}
	}
	return false
}

// BlockingReason renders the verification-failure reason for blocking hits.
// Only sources and scores are disclosed, never the matched names.
func BlockingReason(blocking []Hit) string {
	scores := make([]string, len(blocking))
	for i, hit := range blocking {
		scores[i] = fmt.Sprintf("(%s: %.2f)", hit.DataSource.Name, hit.ConfidenceScore)
	}
	return "Sanctions match found. Confidence scores: " + strings.Join(scores, ", ")
}

// Statement renders the human-readable declaration the user must confirm
// when declarable PEP hits exist.
func Statement(declarable []Hit) string {
	items := make([]string, len(declarable))
	for i, hit := range declarable {
		name := hit.Name
		if name == "" {
			name = "<unknown>"
		}
		if hit.Title == "" {
			items[i] = name
		} else {
			items[i] = fmt.Sprintf("%s (%s)", name, hit.Title)
		}
	}
	return "I certify that I am not any of the following Politically Exposed Persons who have a similar name: " +
		strings.Join(items, ", ")
}
