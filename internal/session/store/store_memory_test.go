package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/sentinel"
	"attest/internal/session/models"
)

func testSession(mutate ...func(*models.Session)) models.Session {
	now := time.Now().UTC()
	sess := models.Session{
		ID:        uuid.New(),
		UserID:    "user-1",
		Kind:      models.KindKYC,
		Status:    models.StatusInProgress,
		Provider:  "onfido",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(&sess)
	}
	return sess
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	sess := testSession()

	require.NoError(t, s.Create(t.Context(), sess))

	found, err := s.Get(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, found.UserID)

	_, err = s.Get(t.Context(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_UpdateUnknownSession(t *testing.T) {
	s := NewMemoryStore()

	err := s.Update(t.Context(), testSession())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_PaymentRefExclusive(t *testing.T) {
	s := NewMemoryStore()
	first := testSession(func(sess *models.Session) { sess.PaymentRef = "pay-1" })
	second := testSession()
	require.NoError(t, s.Create(t.Context(), first))
	require.NoError(t, s.Create(t.Context(), second))

	second.PaymentRef = "pay-1"
	err := s.Update(t.Context(), second)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestMemoryStore_FindByPaymentRef(t *testing.T) {
	s := NewMemoryStore()
	sess := testSession(func(sess *models.Session) { sess.PaymentRef = "pay-2" })
	require.NoError(t, s.Create(t.Context(), sess))

	found, err := s.FindByPaymentRef(t.Context(), "pay-2")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)

	_, err = s.FindByPaymentRef(t.Context(), "pay-missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_ListByUserNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		sess := testSession(func(sess *models.Session) {
			sess.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
		require.NoError(t, s.Create(t.Context(), sess))
	}

	sessions, err := s.ListByUser(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].CreatedAt.After(sessions[2].CreatedAt))
}

func TestMemoryStore_CountActiveByUser(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Create(t.Context(), testSession()))
	require.NoError(t, s.Create(t.Context(), testSession(func(sess *models.Session) {
		sess.Status = models.StatusIssued
	})))
	require.NoError(t, s.Create(t.Context(), testSession(func(sess *models.Session) {
		sess.UserID = "user-other"
	})))

	count, err := s.CountActiveByUser(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryAllowlistStore(t *testing.T) {
	s := NewMemoryAllowlistStore()
	id := uuid.New()

	ok, err := s.Contains(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(t.Context(), id))
	require.NoError(t, s.Add(t.Context(), id))

	ok, err = s.Contains(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}
