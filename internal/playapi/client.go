// Package playapi is the authenticated adapter for the Google Play publisher
// and reporting APIs: service-account credentials, token derivation, and an
// HTTP call wrapper with an explicit, injectable retry policy.
package playapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Default API endpoints. Overridable for tests and proxies.
const (
	DefaultPublisherBaseURL = "https://androidpublisher.googleapis.com/androidpublisher/v3"
	DefaultReportingBaseURL = "https://playdeveloperreporting.googleapis.com/v1beta1"
)

// RetryPolicy controls retry behavior for upstream calls. It is a plain
// value so tests can exercise backoff with a fake sleep.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	JitterFrac     float64 // e.g. 0.2 for ±20%
	AttemptTimeout time.Duration
	OverallTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used in production: up to 3 attempts,
// 500ms base delay doubling each time with ±20% jitter, 30s per attempt,
// 90s for the whole call.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		Multiplier:     2,
		JitterFrac:     0.2,
		AttemptTimeout: 30 * time.Second,
		OverallTimeout: 90 * time.Second,
	}
}

// Delay computes the backoff before retry number attempt (0-based: the delay
// after the first failed attempt is Delay(0)).
func (p RetryPolicy) Delay(attempt int, rnd *rand.Rand) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.JitterFrac > 0 && rnd != nil {
		d *= 1 + p.JitterFrac*(2*rnd.Float64()-1)
	}
	return time.Duration(d)
}

// Call describes one upstream request. Body is JSON-encoded when non-nil.
// Idempotent gates retry after a response has been observed: mutating calls
// like a review reply are only retried when the request provably never
// reached the upstream (transport failure before any response).
type Call struct {
	Method     string
	URL        string
	Query      url.Values
	Body       any
	Scope      string
	Idempotent bool
}

// Client performs authenticated upstream calls with retry and backoff.
// It holds no mutable state of its own; the token cache lives in the
// credential provider handed in at construction.
type Client struct {
	http   *http.Client
	tokens TokenSource
	policy RetryPolicy
	logger *slog.Logger

	// rnd feeds backoff jitter. rand.Rand is not safe for concurrent use
	// and dispatches run in parallel, so every read goes through rndMu.
	rndMu sync.Mutex
	rnd   *rand.Rand

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error

	PublisherBaseURL string
	ReportingBaseURL string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBaseURLs points the client at alternate API endpoints.
func WithBaseURLs(publisher, reporting string) ClientOption {
	return func(c *Client) {
		if publisher != "" {
			c.PublisherBaseURL = publisher
		}
		if reporting != "" {
			c.ReportingBaseURL = reporting
		}
	}
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates an upstream client backed by the given token source.
func NewClient(tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		http:             &http.Client{},
		tokens:           tokens,
		policy:           DefaultRetryPolicy(),
		logger:           slog.Default(),
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:            sleepCtx,
		PublisherBaseURL: DefaultPublisherBaseURL,
		ReportingBaseURL: DefaultReportingBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do performs the call, retrying transient failures per the policy, and
// returns the raw response body. Every returned error is a structured *Error.
func (c *Client) Do(ctx context.Context, call Call) (json.RawMessage, error) {
	if c.policy.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.OverallTimeout)
		defer cancel()
	}

	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *Error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.jitteredDelay(attempt - 1)
			c.logger.Warn("upstream call failed, retrying",
				"method", call.Method,
				"url", call.URL,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, Permanent(0, lastErr, fmt.Sprintf("deadline exceeded after %d attempts: %s", attempt, lastErr.Message))
			}
		}

		body, err := c.attempt(ctx, call)
		if err == nil {
			return body, nil
		}

		var pe *Error
		if !errors.As(err, &pe) {
			return nil, Coerce(err)
		}
		if pe.Kind != KindUpstreamTransient {
			return nil, pe
		}
		// A transient failure on a non-idempotent call is only safe to retry
		// when no response was observed; the upstream may have applied the
		// mutation before failing otherwise.
		if !call.Idempotent && pe.HTTPStatus != 0 {
			return nil, pe
		}
		lastErr = pe

		if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= 0 {
			break
		}
	}
	return nil, Permanent(lastErr.HTTPStatus, lastErr, fmt.Sprintf("retries exhausted after %d attempts: %s", attempts, lastErr.Message))
}

// jitteredDelay serializes access to the shared rand source.
func (c *Client) jitteredDelay(attempt int) time.Duration {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.policy.Delay(attempt, c.rnd)
}

// attempt performs one authenticated request with the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, call Call) (json.RawMessage, error) {
	tok, err := c.tokens.Token(ctx, call.Scope)
	if err != nil {
		// Auth failures bypass the retry loop; the client's policy covers
		// the upstream call, not the token exchange.
		return nil, err
	}

	if c.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		defer cancel()
	}

	u := call.URL
	if len(call.Query) > 0 {
		u += "?" + call.Query.Encode()
	}

	var reqBody io.Reader
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return nil, Internalf(err, "marshal request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, u, reqBody)
	if err != nil {
		return nil, Internalf(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// No response observed: transport error or timeout. Status zero
		// signals pre-response failure to the retry gate above.
		return nil, Transient(0, err, "upstream request failed: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(resp.StatusCode, err, "read upstream response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(resp.StatusCode, nil, upstreamMessage(resp.StatusCode, body))
	default:
		return nil, Permanent(resp.StatusCode, nil, upstreamMessage(resp.StatusCode, body))
	}
}

// upstreamMessage extracts the error message from a Google API error body,
// falling back to the raw payload.
func upstreamMessage(status int, body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("upstream error (%d %s): %s", status, parsed.Error.Status, parsed.Error.Message)
	}
	return fmt.Sprintf("upstream error (%d): %s", status, truncate(string(body), 200))
}
