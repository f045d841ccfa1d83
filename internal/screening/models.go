// Package screening queries an external watchlist-screening collaborator and
// classifies its hits into blocking matches and PEP hits that the user may
// declare away.
package screening

import "time"

// DataSource identifies the watchlist a hit came from.
type DataSource struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

// PEPSourceShortName marks hits from Politically Exposed Persons lists.
// PEP hits are potentially declarable; hits from any other list are not.
const PEPSourceShortName = "PEP"

// Hit is one fuzzy match returned by the screening collaborator.
type Hit struct {
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Nationality     string     `json:"nationality"`
	SIIdentifier    string     `json:"si_identifier"`
	DataHash        string     `json:"data_hash"`
	ConfidenceScore float64    `json:"confidence_score"`
	DataSource      DataSource `json:"data_source"`
}

// SessionHits records the hits observed for a session, persisted for fraud
// analytics. No declaration or blocking decision is stored here; those live
// on the session.
type SessionHits struct {
	SessionID  string
	Hits       []Hit
	ObservedAt time.Time
}
