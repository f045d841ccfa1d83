//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/screening"
	"attest/internal/screening/store"
	"attest/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.DB)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) TestRecordAndBySession() {
	ctx := context.Background()

	hits := screening.SessionHits{
		SessionID: "sess-1",
		Hits: []screening.Hit{
			{
				Name:            "Jane Roe",
				Title:           "Senator",
				SIIdentifier:    "US123",
				ConfidenceScore: 0.95,
				DataSource:      screening.DataSource{Name: "Politically Exposed Persons", ShortName: screening.PEPSourceShortName},
			},
			{
				Name:            "John Doe",
				ConfidenceScore: 0.97,
				DataSource:      screening.DataSource{Name: "OFAC Specially Designated Nationals", ShortName: "SDN"},
			},
		},
		ObservedAt: s.now,
	}
	s.Require().NoError(s.store.Record(ctx, hits))

	found, err := s.store.BySession(ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Require().Len(found[0].Hits, 2)
	s.Equal("Jane Roe", found[0].Hits[0].Name)
	s.Equal("SDN", found[0].Hits[1].DataSource.ShortName)
	s.InDelta(0.97, found[0].Hits[1].ConfidenceScore, 1e-9)
}

func (s *PostgresStoreSuite) TestBySessionOrdering() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.Record(ctx, screening.SessionHits{
			SessionID:  "sess-2",
			Hits:       []screening.Hit{{Name: "John Doe", DataSource: screening.DataSource{ShortName: "SDN"}}},
			ObservedAt: s.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	found, err := s.store.BySession(ctx, "sess-2")
	s.Require().NoError(err)
	s.Require().Len(found, 3)
	for i := 1; i < len(found); i++ {
		s.False(found[i].ObservedAt.Before(found[i-1].ObservedAt), "oldest first")
	}
}

func (s *PostgresStoreSuite) TestBySessionEmpty() {
	found, err := s.store.BySession(context.Background(), "sess-none")
	s.Require().NoError(err)
	s.Empty(found)
}
