package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Do executes an HTTP request and decodes a JSON response into out,
// translating transport and status failures into categorized ProviderErrors
// so every adapter classifies failures the same way.
func Do(ctx context.Context, client *http.Client, req *http.Request, providerID string, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewProviderError(ErrorTimeout, providerID, "request timed out", err)
		}
		return NewProviderError(ErrorProviderOutage, providerID, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusNotFound:
		return NewProviderError(ErrorNotFound, providerID, "record not found", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewProviderError(ErrorAuthentication, providerID, "authentication failed", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewProviderError(ErrorRateLimited, providerID, "rate limited", nil)
	case resp.StatusCode >= 500:
		return NewProviderError(ErrorProviderOutage, providerID, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	default:
		return NewProviderError(ErrorBadData, providerID, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError(ErrorBadData, providerID, "decode response", err)
	}
	return nil
}
