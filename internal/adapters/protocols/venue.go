package protocols

// venue.go — shared REST client for external venues, with rate limiting
// and retries on transient failures.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	venueMaxRetries    = 3
	venueBaseRetryWait = 500 * time.Millisecond
)

// venueClient wraps one venue's REST API.
type venueClient struct {
	name       string
	http       *http.Client
	baseURL    string
	limiter    *rate.Limiter
	signingKey string // empty → read-only mode
}

func newVenueClient(name, baseURL, signingKey string, reqPerSec float64) *venueClient {
	if reqPerSec <= 0 {
		reqPerSec = 10
	}
	return &venueClient{
		name:       name,
		http:       &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(reqPerSec), 5),
		signingKey: signingKey,
	}
}

// readOnly reports whether no signing credential is configured. Mutating
// calls must fail with a declared read-only result before any network I/O.
func (c *venueClient) readOnly() bool { return c.signingKey == "" }

// getJSON performs a rate-limited GET and decodes the JSON response.
func (c *venueClient) getJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// postJSON performs a signed, rate-limited POST and decodes the response.
func (c *venueClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.signingKey)
		return c.http.Do(req)
	}, out)
}

// doWithRetry runs fn with exponential backoff on transient failures.
func (c *venueClient) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= venueMaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == venueMaxRetries {
				return fmt.Errorf("request failed after %d retries: %w", venueMaxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == venueMaxRetries {
				return fmt.Errorf("%s: status %d after %d retries", c.name, resp.StatusCode, venueMaxRetries)
			}
			slog.Warn("venue retrying", "venue", c.name, "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s: status %d: %s", c.name, resp.StatusCode, string(b))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name, err)
		}
		return nil
	}
	return fmt.Errorf("%s: retries exhausted", c.name)
}

func (c *venueClient) sleep(ctx context.Context, attempt int) {
	wait := venueBaseRetryWait * time.Duration(1<<attempt)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
