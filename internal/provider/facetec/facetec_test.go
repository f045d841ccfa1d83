package facetec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attest/internal/provider"
)

func passingResult() *SessionResult {
	var r SessionResult
	r.Status = "completed"
	r.Liveness.Passed = true
	r.FaceMatch.Passed = true
	r.DocumentScan.Status = "passed"
	r.DocumentScan.OCR.FirstName = "Jane"
	r.DocumentScan.OCR.LastName = "Doe"
	r.DocumentScan.OCR.DateOfBirth = "1990-01-01"
	r.DocumentScan.OCR.IssuingCountry = "USA"
	return &r
}

func TestNormalize_Pass(t *testing.T) {
	out := Normalize(passingResult())

	assert.Equal(t, provider.OutcomePass, out.Status)
	assert.Equal(t, "Jane", out.Attributes.FirstName)
	assert.Equal(t, "1990-01-01", out.Attributes.DateOfBirth)
}

func TestNormalize_PendingIsRetryable(t *testing.T) {
	r := passingResult()
	r.Status = "processing"

	out := Normalize(r)

	assert.Equal(t, provider.OutcomeRetryable, out.Status)
}

func TestNormalize_LivenessFailure(t *testing.T) {
	r := passingResult()
	r.Liveness.Passed = false

	out := Normalize(r)

	assert.Equal(t, provider.OutcomeFail, out.Status)
	assert.Equal(t, "Liveness check failed", out.Reason)
}

func TestNormalize_FaceMatchFailure(t *testing.T) {
	r := passingResult()
	r.FaceMatch.Passed = false

	out := Normalize(r)

	assert.Equal(t, provider.OutcomeFail, out.Status)
	assert.Equal(t, "Face match failed", out.Reason)
}

func TestNormalize_DocumentScanFailure(t *testing.T) {
	r := passingResult()
	r.DocumentScan.Status = "rejected"

	out := Normalize(r)

	assert.Equal(t, provider.OutcomeFail, out.Status)
	assert.Contains(t, out.Reason, "rejected")
}
