package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashV1_Deterministic(t *testing.T) {
	a := Attributes{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-01-01"}
	b := Attributes{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-01-01"}

	assert.Equal(t, HashV1(a), HashV1(b))
	assert.Len(t, HashV1(a), 64)
}

func TestHashV1_BoundaryAmbiguity(t *testing.T) {
	// The legacy scheme concatenates raw fields, so shifting characters
	// between fields collides. V2 exists to fix exactly this.
	a := Attributes{FirstName: "AnnA", LastName: "Lee", DateOfBirth: "1990-01-01"}
	b := Attributes{FirstName: "Ann", LastName: "ALee", DateOfBirth: "1990-01-01"}

	assert.Equal(t, HashV1(a), HashV1(b))
	assert.NotEqual(t, HashV2(a), HashV2(b))
}

func TestHashV2_NormalizesCaseAndWhitespace(t *testing.T) {
	a := Attributes{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-01-01"}
	b := Attributes{FirstName: "  JANE ", LastName: "doe", DateOfBirth: "1990-01-01"}

	assert.Equal(t, HashV2(a), HashV2(b))
}

func TestHashV2_DistinctIdentities(t *testing.T) {
	a := Attributes{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-01-01"}
	b := Attributes{FirstName: "Jane", LastName: "Doe", DateOfBirth: "1990-01-02"}

	assert.NotEqual(t, HashV2(a), HashV2(b))
}

func TestDateAsInt(t *testing.T) {
	// 1900-01-01 is the epoch of the encoding.
	got, err := DateAsInt("1900-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	// 1970-01-01 is exactly the offset.
	got, err = DateAsInt("1970-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2208988800), got)

	got, err = DateAsInt("1990-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2208988800+631152000), got)
}

func TestDateAsInt_Rejects(t *testing.T) {
	_, err := DateAsInt("not-a-date")
	assert.Error(t, err)

	_, err = DateAsInt("1899-12-31")
	assert.Error(t, err)

	_, err = DateAsInt("2100-01-01")
	assert.Error(t, err)
}

func TestTruncateToBytes(t *testing.T) {
	s, truncated := TruncateToBytes("short", 24)
	assert.Equal(t, "short", s)
	assert.False(t, truncated)

	s, truncated = TruncateToBytes("abcdefghijklmnopqrstuvwxyz", 24)
	assert.Equal(t, "abcdefghijklmnopqrstuvwx", s)
	assert.True(t, truncated)
}

func TestTruncateToBytes_RuneBoundary(t *testing.T) {
	// é is two bytes in UTF-8; never cut mid-rune.
	s, truncated := TruncateToBytes("ééé", 5)
	assert.Equal(t, "éé", s)
	assert.True(t, truncated)
}
