// Package httpretry executes HTTP requests with bounded exponential backoff
// for transient failures (network errors, 429 and 5xx responses).
package httpretry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Policy bounds the retry loop. The zero value means no retries.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy retries five times starting at 200ms, capped at 5s.
var DefaultPolicy = Policy{MaxRetries: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

// StatusError is returned when the final attempt still got a retryable status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Delay returns the backoff before the given zero-based retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Do sends the request built by buildReq until it succeeds, returns a
// non-retryable response or the retries are exhausted. The caller owns the
// returned response body.
func Do(ctx context.Context, client *http.Client, policy Policy, buildReq func(ctx context.Context) (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		req, err := buildReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			wait = policy.Delay(attempt)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			wait = retryAfter(resp.Header.Get("Retry-After"), policy.Delay(attempt))
		default:
			return resp, nil
		}

		if attempt == policy.MaxRetries {
			break
		}
		logger.Warn("request failed, will retry", "url", req.URL.String(), "attempt", attempt+1, "backoff", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", policy.MaxRetries, lastErr)
}

func retryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
