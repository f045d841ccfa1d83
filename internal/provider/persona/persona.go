// Package persona adapts the Persona inquiry API to the normalized provider
// contract. A session's provider reference is the Persona inquiry id.
package persona

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

const providerName = "persona"

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
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

func New(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		backoff: provider.DefaultBackoff(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// Inquiry is the subset of the Persona inquiry resource the validator needs.
// Persona wraps everything in a JSON:API envelope.
type Inquiry struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status         string `json:"status"`
			NameFirst      string `json:"name-first"`
			NameMiddle     string `json:"name-middle"`
			NameLast       string `json:"name-last"`
			Birthdate      string `json:"birthdate"`
			CountryCode    string `json:"country-code"`
			ExpirationDate string `json:"expiration-date"`
		} `json:"attributes"`
	} `json:"data"`
}

// Validate fetches the inquiry and normalizes its status.
func (c *Client) Validate(ctx context.Context, ref string) (provider.Outcome, error) {
	inq, err := c.getInquiry(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}
	return Normalize(inq), nil
}

// Normalize applies the Persona inquiry status vocabulary.
//
// "completed" means the user finished the flow but review has not resolved;
// only "approved" is a pass.
func Normalize(inq *Inquiry) provider.Outcome {
	switch inq.Data.Attributes.Status {
	case "approved":
		return provider.Pass(extractAttributes(inq))
	case "created", "pending", "completed":
		return provider.Retryable(fmt.Sprintf("Inquiry is not resolved. Inquiry status: %s", inq.Data.Attributes.Status))
	case "declined", "failed", "expired":
		return provider.Fail(fmt.Sprintf("Inquiry %s", inq.Data.Attributes.Status))
	default:
		return provider.Fail(fmt.Sprintf("Unknown inquiry status: %s", inq.Data.Attributes.Status))
	}
}

func extractAttributes(inq *Inquiry) identity.Attributes {
	a := inq.Data.Attributes
	return identity.Attributes{
		FirstName:      a.NameFirst,
		MiddleName:     a.NameMiddle,
		LastName:       a.NameLast,
		DateOfBirth:    a.Birthdate,
		IssuingCountry: a.CountryCode,
		DocumentExpiry: a.ExpirationDate,
	}
}

// Attributes re-fetches the inquiry attributes for a reference that already
// passed validation. Used by the replay issuance path.
func (c *Client) Attributes(ctx context.Context, ref string) (identity.Attributes, error) {
	inq, err := c.getInquiry(ctx, ref)
	if err != nil {
		return identity.Attributes{}, err
	}
	return extractAttributes(inq), nil
}

func (c *Client) getInquiry(ctx context.Context, inquiryID string) (*Inquiry, error) {
	var inq Inquiry
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/inquiries/"+inquiryID, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, providerName, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		return provider.Do(ctx, c.http, req, providerName, &inq)
	})
	if err != nil {
		return nil, err
	}
	return &inq, nil
}

// Health probes the API with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/inquiries?page[size]=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return provider.Do(ctx, c.http, req, providerName, nil)
}
