// Package adapter provides the HTTP client for the external lookup provider.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lookup-tracker/internal/config"
	"github.com/lookup-tracker/internal/retry"

	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned when no provider credential is configured.
// It is a configuration fault and is surfaced before any network call.
var ErrMissingAPIKey = errors.New("missing provider API key")

// ProviderClient handles API calls to the asynchronous lookup provider.
// It is stateless between calls; credentials and URLs are shared read-only
// configuration.
type ProviderClient struct {
	apiKey     string
	submitURL  string
	resultURL  string
	balanceURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryCfg   *retry.Config
}

// SubmitResult is the normalized outcome of a submit call.
type SubmitResult struct {
	SearchID string          `json:"searchId"` // "" when the provider returned no extractable id
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"raw"`
}

// PollResult is the normalized outcome of a result poll.
type PollResult struct {
	Status string          `json:"status"` // "" when the payload carried no recognizable status
	Raw    json.RawMessage `json:"raw"`
}

// BalanceResult is the normalized outcome of a balance check.
type BalanceResult struct {
	Status  string   `json:"status"`
	Balance *float64 `json:"balance,omitempty"`
	Message string   `json:"message,omitempty"`
}

// NewProviderClient creates a new provider client. A missing API key is a
// fatal configuration error raised here, before any network call.
func NewProviderClient(cfg *config.ProviderConfig) (*ProviderClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}

	return &ProviderClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		submitURL:  cfg.SubmitURL,
		resultURL:  cfg.ResultURL,
		balanceURL: cfg.BalanceURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryCfg:   retry.DefaultConfig(),
	}, nil
}

// Submit submits a lookup request. The parameter map is opaque to the client
// beyond form encoding. When the provider acknowledges the request without a
// recognizable job identifier, SearchID is empty and no error is returned, so
// the caller can fall back to manual recovery.
func (c *ProviderClient) Submit(ctx context.Context, params map[string]string) (*SubmitResult, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	env, err := c.postForm(ctx, c.submitURL, form)
	if err != nil {
		return nil, fmt.Errorf("submit failed: %w", err)
	}

	return &SubmitResult{
		SearchID: env.SearchID,
		Status:   env.Status,
		Raw:      env.Raw,
	}, nil
}

// Poll fetches the current result payload for a job. An empty Status means
// the payload carried no recognizable status; the lifecycle controller treats
// that as still pending.
func (c *ProviderClient) Poll(ctx context.Context, searchID string) (*PollResult, error) {
	form := url.Values{}
	form.Set("search_id", searchID)

	env, err := c.postForm(ctx, c.resultURL, form)
	if err != nil {
		return nil, fmt.Errorf("poll %s failed: %w", searchID, err)
	}

	return &PollResult{
		Status: env.Status,
		Raw:    env.Raw,
	}, nil
}

// CheckBalance fetches the account balance from the provider.
func (c *ProviderClient) CheckBalance(ctx context.Context) (*BalanceResult, error) {
	env, err := c.postForm(ctx, c.balanceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("balance check failed: %w", err)
	}

	return &BalanceResult{
		Status:  env.Status,
		Balance: env.Balance,
		Message: env.Message,
	}, nil
}

// postForm performs one logical call: up to retryCfg.MaxAttempts physical
// attempts against transient faults (network errors, timeouts, 5xx), each
// preceded by a rate-limiter wait. A failed limiter wait means the context is
// gone and is not retried. The response body is normalized regardless of the
// HTTP status, since the provider reports application failures in the payload.
func (c *ProviderClient) postForm(ctx context.Context, endpoint string, form url.Values) (*Envelope, error) {
	var env *Envelope

	result := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		body, status, err := c.doPost(ctx, endpoint, form)
		if err != nil {
			return err
		}
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("provider returned status %d", status)
		}

		env = NormalizeResponse(body, status)
		return nil
	})

	if !result.Success {
		return nil, fmt.Errorf("call failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return env, nil
}

func (c *ProviderClient) doPost(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		// A malformed endpoint will not get better on a retry.
		return nil, 0, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
