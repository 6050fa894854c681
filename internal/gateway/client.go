// Package gateway talks to the billing REST backend on behalf of the
// dashboard. One Client wraps the backend base URL with retries and a
// circuit breaker; the per-resource gateways (clients, invoices,
// settings) build on it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/model"
)

// BackendError is a non-2xx response from the billing backend. Its string
// form is what the dashboard ultimately shows next to the retry action:
// the response body text when the backend sent one, otherwise a generic
// "HTTP Error: {status}".
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("HTTP Error: %d", e.StatusCode)
}

// Recorder publishes backend request metrics. observability.Metrics
// satisfies it.
type Recorder interface {
	RecordBackendRequest(method, resource string, status int, duration time.Duration)
	RecordBackendRetry()
	SetBackendCircuitBreakerState(state float64)
}

// Client executes HTTP requests against the billing backend with circuit
// breaker and retry support.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *CircuitBreaker
	retry   config.RetryConfig
	metrics Recorder
}

// NewClient creates a backend client from the given configuration.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		retry:   cfg.Retry,
	}
}

// Breaker exposes the circuit breaker for health checks and metrics.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// SetMetrics attaches a metrics recorder and subscribes it to breaker
// state transitions. Safe to leave unset; a nil recorder disables backend
// metrics.
func (c *Client) SetMetrics(rec Recorder) {
	c.metrics = rec
	c.breaker.OnStateChange(func(s BreakerState) {
		rec.SetBackendCircuitBreakerState(float64(s))
	})
}

// Get issues a GET to the given backend path with the given query string.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Send issues a request with a JSON body (POST, PUT) or none (DELETE).
func (c *Client) Send(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.do(ctx, method, path, nil, body)
}

// do builds the request and executes it with retry and backoff.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal body: %w", err)
		}
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := isIdempotentMethod(method) || !c.retry.IdempotentOnly

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordBackendRetry()
			}
			delay := calculateBackoff(c.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, err := c.executeOnce(ctx, method, reqURL, bodyBytes)
		if err != nil {
			lastErr = err
			if !canRetry || !isRetryableError(err) {
				return nil, err
			}
			slog.Debug("gateway: retrying after error",
				"attempt", attempt+1,
				"max", maxAttempts,
				"error", err,
			)
			continue
		}
		return respBody, nil
	}

	return nil, lastErr
}

// executeOnce performs a single HTTP request with circuit breaker protection.
func (c *Client) executeOnce(ctx context.Context, method, reqURL string, bodyBytes []byte) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, model.NewBackendUnavailableError()
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header = buildRequestHeaders(ctx, method)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if isConnectionError(err) {
			return nil, model.NewBackendUnavailableError()
		}
		if ctx.Err() != nil {
			return nil, model.NewBackendTimeoutError()
		}
		return nil, fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordBackendRequest(method, resourceFromPath(req.URL.Path),
			resp.StatusCode, time.Since(start))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	// Record circuit breaker outcome. 4xx are not infrastructure failures.
	if isServerError(resp.StatusCode) {
		c.breaker.RecordFailure()
	} else if !isClientError(resp.StatusCode) {
		c.breaker.RecordSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

// resourceFromPath reduces a backend path to its first segment so metric
// labels stay low-cardinality ("/Clients/5" becomes "Clients").
func resourceFromPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// buildRequestHeaders forwards identity and correlation headers from the
// authenticated dashboard request to the backend.
func buildRequestHeaders(ctx context.Context, method string) http.Header {
	h := make(http.Header)

	h.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Type", "application/json")
	}

	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.Token != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		h.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
	}

	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Circuit breaker open errors are not retryable.
	if _, ok := err.(*model.ErrorEnvelope); ok {
		return false
	}
	// Backend responses are retryable only for transient statuses.
	var be *BackendError
	if errors.As(err, &be) {
		return isRetryableStatus(be.StatusCode)
	}
	return true
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return false
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}
