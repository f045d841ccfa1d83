package screening

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"attest/internal/provider"
)

const collaboratorName = "sanctions"

// MinConfidenceScore is the minimum fuzzy-match score requested from the
// screening collaborator. Matches below it are noise.
const MinConfidenceScore = 0.93

// Searcher is the screening collaborator boundary consumed by the session
// orchestrator.
type Searcher interface {
	Search(ctx context.Context, fullName, dateOfBirth string) ([]Hit, error)
}

// Client queries a sanctions.io-style screening API.
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

func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
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

// Search runs a name+DOB fuzzy match against the collaborator's watchlists.
// Only individual entities at or above MinConfidenceScore are requested.
func (c *Client) Search(ctx context.Context, fullName, dateOfBirth string) ([]Hit, error) {
	q := url.Values{}
	q.Set("name", fullName)
	q.Set("date_of_birth", dateOfBirth)
	q.Set("entity_type", "individual")
	q.Set("min_score", "0.93")

	var body struct {
		Count   int   `json:"count"`
		Results []Hit `json:"results"`
	}
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/search/?"+q.Encode(), nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, collaboratorName, "build request", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		return provider.Do(ctx, c.http, req, collaboratorName, &body)
	})
	if err != nil {
		return nil, err
	}
	return body.Results, nil
}

// Health probes the API with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/sources/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	return provider.Do(ctx, c.http, req, collaboratorName, nil)
}
