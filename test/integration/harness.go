// Package integration provides a reusable test harness for end-to-end
// integration testing of the BillTrack Pro BFF. It starts a fully wired
// HTTP server with a mock billing backend, in-memory stores, and a test
// JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/internal/dashboard"
	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/internal/idempotency"
	"github.com/billtrack/bff/internal/observability"
	"github.com/billtrack/bff/internal/reports"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/internal/transport"
)

// TestHarness encapsulates a fully wired BFF instance with a mock billing
// backend for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Backend          *BillingBackend
	BackendClient    *gateway.Client
	Sessions         *session.Registry
	Dashboard        *dashboard.Provider
	IdempotencyStore *idempotency.MemoryStore

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	retryAttempts    int
	breakerThreshold int
	handlerTimeout   time.Duration
	dashboardTTL     time.Duration
	sessionTTL       time.Duration
}

// WithRetries sets the backend retry attempt count. The default is 1, so
// failure tests observe exactly one backend call per request.
func WithRetries(attempts int) HarnessOption {
	return func(c *harnessConfig) { c.retryAttempts = attempts }
}

// WithBreakerThreshold sets the consecutive-failure count that opens the
// backend circuit.
func WithBreakerThreshold(n int) HarnessOption {
	return func(c *harnessConfig) { c.breakerThreshold = n }
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.handlerTimeout = d }
}

// WithDashboardTTL sets the dashboard cache TTL.
func WithDashboardTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.dashboardTTL = d }
}

// NewTestHarness creates and starts a full BFF test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		retryAttempts:    1,
		breakerThreshold: 5,
		handlerTimeout:   10 * time.Second,
		dashboardTTL:     30 * time.Second,
		sessionTTL:       30 * time.Minute,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Start the mock billing backend and the JWT issuer.
	h.Backend = newBillingBackend(t)
	h.issuer = newTokenIssuer(t)

	// Step 2: Build config pointing at the mocks.
	cfg := config.Defaults()
	cfg.Backend.BaseURL = h.Backend.URL()
	cfg.Backend.Retry.MaxAttempts = hc.retryAttempts
	cfg.Backend.Retry.BackoffInitial = time.Millisecond
	cfg.Backend.CircuitBreaker.FailureThreshold = hc.breakerThreshold
	cfg.Backend.CircuitBreaker.Timeout = 100 * time.Millisecond
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Identity.Issuer = h.issuer.Issuer()
	cfg.Identity.Audience = h.issuer.Audience()
	cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	cfg.Dashboard.Cache.TTL = hc.dashboardTTL
	cfg.Session.TTL = hc.sessionTTL
	h.cfg = cfg

	// Step 3: Build the gateway stack and providers.
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	h.BackendClient = gateway.NewClient(cfg.Backend)
	h.BackendClient.SetMetrics(metrics)
	clientsGW := gateway.NewClients(h.BackendClient)
	invoicesGW := gateway.NewInvoices(h.BackendClient)
	settingsGW := gateway.NewSettings(h.BackendClient)

	h.Sessions = session.NewRegistry(clientsGW, invoicesGW, settingsGW,
		cfg.UI.PageSize, cfg.Session.TTL, cfg.Session.SweepInterval)
	t.Cleanup(h.Sessions.Close)

	h.Dashboard = dashboard.NewProvider(invoicesGW,
		cfg.Dashboard.Cache.TTL, cfg.Dashboard.Cache.MaxEntries,
		cfg.UI.PageSize, cfg.UI.RecentInvoices)
	h.IdempotencyStore = idempotency.NewMemoryStore()

	// Step 4: Build the router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Metrics:      metrics,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Sessions:     h.Sessions,
		Dashboard:    h.Dashboard,
		Reports:      reports.NewProvider(invoicesGW),
		Idempotency:  h.IdempotencyStore,
		Readiness: observability.ReadinessChecks{
			BackendCircuitClosed: func() bool {
				return h.BackendClient.Breaker().State() != gateway.BreakerOpen
			},
		},
	})

	// Step 5: Start the test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	// Reset the target so a reused destination reflects only this response;
	// json.Unmarshal leaves fields absent from the JSON untouched.
	if v := reflect.ValueOf(target); v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// AdminClaims returns TestClaims for a billing admin user.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		Email:     "admin@billtrack.example.com",
		Roles:     []string{"admin"},
	}
}

// AccountantClaims returns TestClaims for an accountant user.
func AccountantClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-accountant",
		Email:     "accountant@billtrack.example.com",
		Roles:     []string{"accountant"},
	}
}
