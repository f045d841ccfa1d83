// Package onfido adapts the Onfido document-verification API to the
// normalized provider contract. A session's provider reference is the Onfido
// check id.
package onfido

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

const providerName = "onfido"

// Client calls the Onfido v3 API.
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

// Check is the subset of the Onfido check resource the validator needs.
type Check struct {
	ID          string   `json:"id"`
	ApplicantID string   `json:"applicant_id"`
	Status      string   `json:"status"`
	Result      string   `json:"result"`
	ReportIDs   []string `json:"report_ids"`
	CreatedAt   string   `json:"created_at"`
}

// Report is the subset of the Onfido report resource the validator needs.
type Report struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	Result     string             `json:"result"`
	SubResult  string             `json:"sub_result"`
	Breakdown  map[string]Verdict `json:"breakdown"`
	Properties map[string]string  `json:"properties"`
}

// Verdict is one breakdown entry of a report.
type Verdict struct {
	Result *string `json:"result"`
}

// Validate fetches the check and its reports and normalizes them into a
// three-way outcome.
func (c *Client) Validate(ctx context.Context, ref string) (provider.Outcome, error) {
	check, err := c.getCheck(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}

	reports, err := c.getReports(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}

	return Normalize(check, reports), nil
}

// Normalize applies the Onfido status vocabulary to a check and its reports.
// Split out from Validate so it can be exercised without a live API.
//
// A check that exists but has zero reports is a propagation delay, not a
// failure; a report explicitly marked non-clear is terminal.
func Normalize(check *Check, reports []Report) provider.Outcome {
	if check.Status != "complete" {
		return provider.Retryable(fmt.Sprintf("Check is not complete. Check status: %s", check.Status))
	}

	if len(reports) == 0 {
		return provider.Retryable("No reports found")
	}

	var doc *Report
	for i := range reports {
		if reports[i].Name == "document" {
			doc = &reports[i]
			break
		}
	}
	if doc == nil {
		return provider.Fail("No document report found")
	}

	if check.Result != "clear" {
		return provider.Fail(failureReason(doc))
	}
	if doc.Status != "complete" || doc.Result != "clear" {
		return provider.Fail(failureReason(doc))
	}

	return provider.Pass(extractAttributes(doc))
}

func failureReason(doc *Report) string {
	var reasons []string
	for name, verdict := range doc.Breakdown {
		if verdict.Result != nil && *verdict.Result != "clear" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, *verdict.Result))
		}
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("Document report result is %q", doc.Result)
	}
	return "Verification failed. " + strings.Join(reasons, ", ")
}

func extractAttributes(doc *Report) identity.Attributes {
	return identity.Attributes{
		FirstName:      doc.Properties["first_name"],
		LastName:       doc.Properties["last_name"],
		DateOfBirth:    doc.Properties["date_of_birth"],
		IssuingCountry: doc.Properties["issuing_country"],
		DocumentExpiry: doc.Properties["date_of_expiry"],
	}
}

// Attributes re-fetches the document report attributes for a check that
// already passed validation. Used by the replay issuance path.
func (c *Client) Attributes(ctx context.Context, ref string) (identity.Attributes, error) {
	reports, err := c.getReports(ctx, ref)
	if err != nil {
		return identity.Attributes{}, err
	}
	for i := range reports {
		if reports[i].Name == "document" {
			return extractAttributes(&reports[i]), nil
		}
	}
	return identity.Attributes{}, provider.NewProviderError(provider.ErrorNotFound, providerName, "no document report for check", nil)
}

func (c *Client) getCheck(ctx context.Context, checkID string) (*Check, error) {
	var check Check
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/checks/"+checkID, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, providerName, "build request", err)
		}
		c.auth(req)
		return provider.Do(ctx, c.http, req, providerName, &check)
	})
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func (c *Client) getReports(ctx context.Context, checkID string) ([]Report, error) {
	var body struct {
		Reports []Report `json:"reports"`
	}
	err := provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/reports?check_id="+checkID, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, providerName, "build request", err)
		}
		c.auth(req)
		return provider.Do(ctx, c.http, req, providerName, &body)
	})
	if err != nil {
		return nil, err
	}
	return body.Reports, nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")
}

// Health probes the API root with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	c.auth(req)
	return provider.Do(ctx, c.http, req, providerName, nil)
}
