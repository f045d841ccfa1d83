package handler

import (
	"attest/internal/session/models"
	dErrors "attest/pkg/domain-errors"
)

// createSessionRequest opens a session in the payment-first flow.
type createSessionRequest struct {
	UserID   string `json:"userId"`
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
}

func (r *createSessionRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "userId is required")
	}
	if !models.Kind(r.Kind).Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown session kind")
	}
	if r.Provider == "" {
		return dErrors.New(dErrors.CodeBadRequest, "provider is required")
	}
	return nil
}

// createSessionV2Request opens a session that starts verification
// immediately, binding an externally settled payment proof.
type createSessionV2Request struct {
	UserID     string `json:"userId"`
	Kind       string `json:"kind"`
	Provider   string `json:"provider"`
	PaymentRef string `json:"paymentRef"`
}

func (r *createSessionV2Request) Validate() error {
	base := createSessionRequest{UserID: r.UserID, Kind: r.Kind, Provider: r.Provider}
	return base.Validate()
}

type attachCheckRequest struct {
	ProviderRef string `json:"providerRef"`
}

type paymentRequest struct {
	PaymentRef string `json:"paymentRef"`
}

type adminFailRequest struct {
	Reason string `json:"reason"`
}
