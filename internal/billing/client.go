// Package billing talks to the external recurring-billing system.
// The caller must treat it as unreliable: every lookup runs under a
// bounded timeout and any failure maps to "no active plan" upstream.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Plan is the currently active recurring plan for an account, as
// reported by the billing system. Period boundaries belong to the
// external cycle, never to local clocks.
type Plan struct {
	PlanID      string    `json:"planId"`
	QuotaTotal  int       `json:"quotaTotal"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// Client looks up an account's active recurring plan. Implementations
// return (nil, nil) when the account has no active plan and an error
// on any transport or decoding failure.
type Client interface {
	ActivePlan(ctx context.Context, accountID string) (*Plan, error)
}

// HTTPClient is the production Client backed by the billing service's
// REST lookup.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a billing client with the given request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ActivePlan fetches GET {base}/accounts/{id}/active-plan. A 404 means
// no active plan.
func (c *HTTPClient) ActivePlan(ctx context.Context, accountID string) (*Plan, error) {
	u := fmt.Sprintf("%s/accounts/%s/active-plan", c.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build billing request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("billing lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("billing lookup: unexpected status %d", resp.StatusCode)
	}

	var plan Plan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode billing response: %w", err)
	}
	return &plan, nil
}

// Disabled is a Client for deployments without a billing system
// configured; every account reads as having no active plan.
type Disabled struct{}

// ActivePlan always reports no active plan.
func (Disabled) ActivePlan(ctx context.Context, accountID string) (*Plan, error) {
	return nil, nil
}
