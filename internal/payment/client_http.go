package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"attest/internal/provider"
)

const collaboratorName = "payment"

// Client talks to the payment collaborator service, which owns charge
// settlement and refund transfers. It implements FundingVerifier and
// Refunder.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	backoff provider.BackoffConfig
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithBackoff(b provider.BackoffConfig) ClientOption {
	return func(c *Client) { c.backoff = b }
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		backoff: provider.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSessionFunded asks the collaborator whether a charge settled for the
// session.
func (c *Client) IsSessionFunded(ctx context.Context, sessionID string) (bool, error) {
	var body struct {
		Funded bool `json:"funded"`
	}
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/charges/"+sessionID, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, collaboratorName, "build request", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		return provider.Do(ctx, c.http, req, collaboratorName, &body)
	})
	if err != nil {
		return false, err
	}
	return body.Funded, nil
}

// Refund asks the collaborator to return the session's charge. The transfer
// is not retried: a timeout after the collaborator accepted the transfer
// could otherwise double-pay.
func (c *Client) Refund(ctx context.Context, sessionID, userID string) (Receipt, error) {
	payload, err := json.Marshal(map[string]string{
		"sessionId": sessionID,
		"userId":    userID,
	})
	if err != nil {
		return Receipt{}, provider.NewProviderError(provider.ErrorInternal, collaboratorName, "encode refund request", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/refunds", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, provider.NewProviderError(provider.ErrorInternal, collaboratorName, "build request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var receipt Receipt
	if err := provider.Do(ctx, c.http, req, collaboratorName, &receipt); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Health probes the collaborator API.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	return provider.Do(ctx, c.http, req, collaboratorName, nil)
}

// NoopRefunder is a development Refunder that fabricates receipts without
// moving funds.
type NoopRefunder struct{}

func (NoopRefunder) Refund(_ context.Context, sessionID, _ string) (Receipt, error) {
	return Receipt{TransactionHash: "dev-refund-" + sessionID}, nil
}
