// Package sumsub adapts the Sumsub applicant-review API to the normalized
// provider contract. A session's provider reference is the Sumsub applicant id.
package sumsub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"attest/internal/identity"
	"attest/internal/provider"
)

const providerName = "sumsub"

// Client calls the Sumsub REST API. Requests are signed per Sumsub's
// app-token scheme: HMAC-SHA256 over ts + method + path.
type Client struct {
	http      *http.Client
	baseURL   string
	appToken  string
	secretKey string
	backoff   provider.BackoffConfig
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBackoff(b provider.BackoffConfig) Option {
	return func(c *Client) { c.backoff = b }
}

func New(baseURL, appToken, secretKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		appToken:  appToken,
		secretKey: secretKey,
		backoff:   provider.DefaultBackoff(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// ReviewStatus is the subset of the applicant status resource the validator needs.
type ReviewStatus struct {
	ReviewStatus string `json:"reviewStatus"`
	ReviewResult struct {
		ReviewAnswer     string   `json:"reviewAnswer"`
		RejectLabels     []string `json:"rejectLabels"`
		ReviewRejectType string   `json:"reviewRejectType"`
	} `json:"reviewResult"`
}

// Applicant is the subset of the applicant resource the validator needs.
type Applicant struct {
	ID   string `json:"id"`
	Info struct {
		FirstNameEn  string `json:"firstNameEn"`
		MiddleNameEn string `json:"middleNameEn"`
		LastNameEn   string `json:"lastNameEn"`
		DOB          string `json:"dob"`
		IDDocs       []struct {
			IDDocType  string `json:"idDocType"`
			Country    string `json:"country"`
			ValidUntil string `json:"validUntil"`
		} `json:"idDocs"`
	} `json:"info"`
}

// Validate fetches the review status and, when the review is approved, the
// applicant's verified attributes.
func (c *Client) Validate(ctx context.Context, ref string) (provider.Outcome, error) {
	status, err := c.getStatus(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}

	switch {
	case status.ReviewStatus != "completed":
		return provider.Retryable(fmt.Sprintf("Review is not complete. Review status: %s", status.ReviewStatus)), nil
	case status.ReviewResult.ReviewAnswer == "RED":
		reason := "Verification failed"
		if len(status.ReviewResult.RejectLabels) > 0 {
			reason = "Verification failed. " + strings.Join(status.ReviewResult.RejectLabels, ", ")
		}
		return provider.Fail(reason), nil
	case status.ReviewResult.ReviewAnswer != "GREEN":
		return provider.Retryable(fmt.Sprintf("Unexpected review answer: %s", status.ReviewResult.ReviewAnswer)), nil
	}

	attrs, err := c.Attributes(ctx, ref)
	if err != nil {
		return provider.Outcome{}, err
	}
	return provider.Pass(attrs), nil
}

// Attributes fetches the applicant's verified attributes without inspecting
// review results. Used by the replay issuance path.
func (c *Client) Attributes(ctx context.Context, ref string) (identity.Attributes, error) {
	applicant, err := c.getApplicant(ctx, ref)
	if err != nil {
		return identity.Attributes{}, err
	}
	return NormalizeApplicant(applicant), nil
}

// NormalizeApplicant maps a Sumsub applicant into the common attribute set.
func NormalizeApplicant(a *Applicant) identity.Attributes {
	attrs := identity.Attributes{
		FirstName:   a.Info.FirstNameEn,
		MiddleName:  a.Info.MiddleNameEn,
		LastName:    a.Info.LastNameEn,
		DateOfBirth: a.Info.DOB,
	}
	for _, doc := range a.Info.IDDocs {
		if doc.Country != "" {
			attrs.IssuingCountry = doc.Country
			attrs.DocumentExpiry = doc.ValidUntil
			break
		}
	}
	return attrs
}

func (c *Client) getStatus(ctx context.Context, applicantID string) (*ReviewStatus, error) {
	var status ReviewStatus
	path := "/resources/applicants/" + applicantID + "/status"
	if err := c.get(ctx, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) getApplicant(ctx context.Context, applicantID string) (*Applicant, error) {
	var applicant Applicant
	path := "/resources/applicants/" + applicantID + "/one"
	if err := c.get(ctx, path, &applicant); err != nil {
		return nil, err
	}
	return &applicant, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return provider.Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return provider.NewProviderError(provider.ErrorInternal, providerName, "build request", err)
		}
		c.sign(req, path)
		return provider.Do(ctx, c.http, req, providerName, out)
	})
}

func (c *Client) sign(req *http.Request, path string) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(ts + req.Method + path))

	req.Header.Set("X-App-Token", c.appToken)
	req.Header.Set("X-App-Access-Ts", ts)
	req.Header.Set("X-App-Access-Sig", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("Accept", "application/json")
}

// Health probes the API with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	path := "/resources/status/api"
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.sign(req, path)
	return provider.Do(ctx, c.http, req, providerName, nil)
}
