package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/model"
)

func testBackendConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts:    1,
			IdempotentOnly: true,
		},
	}
}

func TestClient_Get_success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(testBackendConfig(server.URL))
	body, err := c.Get(context.Background(), "/Clients", nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestClient_forwardsIdentityHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("Authorization = %q, want Bearer tok123", got)
		}
		if got := r.Header.Get("X-Correlation-Id"); got != "corr-1" {
			t.Errorf("X-Correlation-Id = %q, want corr-1", got)
		}
		if got := r.Header.Get("X-Request-Subject"); got != "user-1" {
			t.Errorf("X-Request-Subject = %q, want user-1", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		SubjectID:     "user-1",
		Token:         "tok123",
		CorrelationID: "corr-1",
	})

	c := NewClient(testBackendConfig(server.URL))
	if _, err := c.Get(ctx, "/Clients", nil); err != nil {
		t.Fatalf("Get error: %v", err)
	}
}

func TestClient_headerInjectionStripped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Correlation-Id"); got != "evilinjected" {
			t.Errorf("X-Correlation-Id = %q, want newlines stripped", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		CorrelationID: "evil\r\ninjected",
	})

	c := NewClient(testBackendConfig(server.URL))
	if _, err := c.Get(ctx, "/Clients", nil); err != nil {
		t.Fatalf("Get error: %v", err)
	}
}

func TestClient_errorBodyBecomesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Client name is required"))
	}))
	defer server.Close()

	c := NewClient(testBackendConfig(server.URL))
	_, err := c.Get(context.Background(), "/Clients", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Client name is required" {
		t.Errorf("error = %q, want backend body text", err.Error())
	}
}

func TestClient_emptyErrorBodyFallsBackToStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(testBackendConfig(server.URL))
	_, err := c.Get(context.Background(), "/Clients/99", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "HTTP Error: 404" {
		t.Errorf("error = %q, want HTTP Error: 404", err.Error())
	}
}

func TestClient_retriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := testBackendConfig(server.URL)
	cfg.Retry = config.RetryConfig{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		IdempotentOnly: true,
	}

	c := NewClient(cfg)
	if _, err := c.Get(context.Background(), "/Clients", nil); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}
}

func TestClient_doesNotRetryPOST(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testBackendConfig(server.URL)
	cfg.Retry = config.RetryConfig{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		IdempotentOnly: true,
	}

	c := NewClient(cfg)
	_, err := c.Send(context.Background(), http.MethodPost, "/Clients", map[string]string{"name": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want no retries for POST", got)
	}
}

func TestClient_doesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	cfg := testBackendConfig(server.URL)
	cfg.Retry = config.RetryConfig{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		IdempotentOnly: true,
	}

	c := NewClient(cfg)
	if _, err := c.Get(context.Background(), "/Clients", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (4xx is not transient)", got)
	}
}

func TestClient_breakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testBackendConfig(server.URL)
	cfg.CircuitBreaker.FailureThreshold = 3

	c := NewClient(cfg)
	for i := 0; i < 3; i++ {
		c.Get(context.Background(), "/Clients", nil)
	}
	if c.Breaker().State() != BreakerOpen {
		t.Fatalf("breaker state = %v, want open", c.Breaker().State())
	}

	before := calls.Load()
	_, err := c.Get(context.Background(), "/Clients", nil)
	if err == nil {
		t.Fatal("expected breaker rejection")
	}
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE envelope", err)
	}
	if calls.Load() != before {
		t.Error("open breaker should not reach the backend")
	}
}

func TestClient_connectionErrorIsUnavailable(t *testing.T) {
	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	c := NewClient(testBackendConfig(serverURL))
	_, err := c.Get(context.Background(), "/Clients", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE envelope", err)
	}
}

func TestClient_queryEncoding(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(testBackendConfig(server.URL))
	q := url.Values{}
	q.Set("search", "smith & sons")
	q.Set("page", "2")
	if _, err := c.Get(context.Background(), "/Clients", q); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if gotQuery.Get("search") != "smith & sons" {
		t.Errorf("search = %q, want escaped round-trip", gotQuery.Get("search"))
	}
}
