// Package facetec adapts the FaceTec liveness/face-match API to the
// normalized provider contract. A session's provider reference is the
// FaceTec session token.
//
// FaceTec sessions carry a document scan alongside the 3D liveness check;
// the OCR'd document fields supply the verified attributes.
package facetec

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"attest/internal/identity"
	"attest/internal/provider"
)

const providerName = "facetec"

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	backoff provider.BackoffConfig
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBackoff(b provider.BackoffConfig) Option {
	return func(c *Client) { c.backoff = b }
}

func New(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		backoff: provider.DefaultBackoff(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// SessionResult is the subset of the FaceTec session resource the validator needs.
type SessionResult struct {
	Status   string `json:"status"`
	Liveness struct {
		Passed bool `json:"passed"`
	} `json:"liveness"`
	FaceMatch struct {
		Passed bool `json:"passed"`
	} `json:"faceMatch"`
	DocumentScan struct {
		Status string `json:"status"`
		OCR    struct {
			FirstName      string `json:"firstName"`
			MiddleName     string `json:"middleName"`
			LastName       string `json:"lastName"`
			DateOfBirth    string `json:"dateOfBirth"`
			IssuingCountry string `json:"issuingCountry"`
			DateOfExpiry   string `json:"dateOfExpiry"`
		} `json:"ocr"`
	} `json:"documentScan"`
}

// Validate fetches the session result and normalizes it.
func (c *Client) Validate(ctx context.Context, ref string) (provider.Outcome, error) {
	result, err := c.getSession(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}
	return Normalize(result), nil
}

// Normalize applies the FaceTec status vocabulary to a session result.
func Normalize(r *SessionResult) provider.Outcome {
	if r.Status != "completed" {
		return provider.Retryable(fmt.Sprintf("Session is not complete. Session status: %s", r.Status))
	}
	if !r.Liveness.Passed {
		return provider.Fail("Liveness check failed")
	}
	if !r.FaceMatch.Passed {
		return provider.Fail("Face match failed")
	}
	if r.DocumentScan.Status != "passed" {
		return provider.Fail(fmt.Sprintf("Document scan did not pass. Status: %s", r.DocumentScan.Status))
	}
	return provider.Pass(extractAttributes(r))
}

func extractAttributes(r *SessionResult) identity.Attributes {
	ocr := r.DocumentScan.OCR
	return identity.Attributes{
		FirstName:      ocr.FirstName,
		MiddleName:     ocr.MiddleName,
		LastName:       ocr.LastName,
		DateOfBirth:    ocr.DateOfBirth,
		IssuingCountry: ocr.IssuingCountry,
		DocumentExpiry: ocr.DateOfExpiry,
	}
}

// Attributes re-fetches the OCR'd document fields for a session that already
// passed validation. Used by the replay issuance path.
func (c *Client) Attributes(ctx context.Context, ref string) (identity.Attributes, error) {
	result, err := c.getSession(ctx, ref)
	if err != nil {
		return identity.Attributes{}, err
	}
	return extractAttributes(result), nil
}

func (c *Client) getSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	var result SessionResult
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/session-result/"+sessionID, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, providerName, "build request", err)
		}
		req.Header.Set("X-Device-Key", c.token)
		req.Header.Set("Accept", "application/json")
		return provider.Do(ctx, c.http, req, providerName, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Health probes the API with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Device-Key", c.token)
	return provider.Do(ctx, c.http, req, providerName, nil)
}
