package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/billtrack/bff/internal/pagination"
	"github.com/billtrack/bff/model"
)

// Route names used for scripting and request assertions.
const (
	RouteListClients    = "listClients"
	RouteCreateClient   = "createClient"
	RouteGetClient      = "getClient"
	RouteUpdateClient   = "updateClient"
	RouteDeleteClient   = "deleteClient"
	RouteListInvoices   = "listInvoices"
	RouteCreateInvoice  = "createInvoice"
	RouteGetInvoice     = "getInvoice"
	RouteUpdateInvoice  = "updateInvoice"
	RouteDeleteInvoice  = "deleteInvoice"
	RouteDashboardStats = "dashboardStats"
	RouteReports        = "reports"
	RouteGetSettings    = "getSettings"
	RouteUpdateSettings = "updateSettings"
)

// BillingBackend simulates the billing REST backend. It serves stateful
// in-memory data by default, records every request for later assertion,
// and lets individual routes be scripted with queued responses to exercise
// failure paths.
type BillingBackend struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	clients  []model.Client
	invoices []model.Invoice
	profile  model.UserProfile
	stats    model.DashboardStats
	report   model.ReportData

	received map[string][]*RecordedRequest
	scripted map[string][]*scriptedResponse
}

// RecordedRequest captures the details of a request received by the backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

type scriptedResponse struct {
	status int
	body   any
	delay  time.Duration
}

// RouteScript queues scripted responses for one route.
type RouteScript struct {
	backend *BillingBackend
	route   string
}

// newBillingBackend starts a mock billing backend seeded with the standard
// fixture data: 12 clients and 12 invoices of alternating status.
func newBillingBackend(t *testing.T) *BillingBackend {
	t.Helper()

	b := &BillingBackend{
		t:        t,
		received: make(map[string][]*RecordedRequest),
		scripted: make(map[string][]*scriptedResponse),
		profile: model.UserProfile{
			ID:       1,
			FullName: "Ada Lovelace",
			Email:    "ada@example.com",
			Timezone: "UTC",
		},
		stats: model.DashboardStats{
			TotalRevenue:      42000,
			OutstandingAmount: 3100,
			TotalInvoices:     12,
		},
		report: model.ReportData{
			TotalRevenue:  42000,
			TotalExpenses: 18000,
			MonthlyRevenue: []model.MonthlyRevenue{
				{Month: "Jan", Revenue: 12000, Expenses: 5000},
				{Month: "Feb", Revenue: 15000, Expenses: 6500},
			},
			RevenueByClient: []model.ClientRevenue{
				{ClientName: "Client 1", Revenue: 21000, Percentage: 50},
			},
			InvoicesByStatus: []model.StatusCount{
				{Status: model.InvoiceStatusPaid, Count: 6},
				{Status: model.InvoiceStatusPending, Count: 6},
			},
		},
	}
	for i := 1; i <= 12; i++ {
		b.clients = append(b.clients, model.Client{
			ID:    int64(i),
			Name:  fmt.Sprintf("Client %d", i),
			Email: fmt.Sprintf("client%d@example.com", i),
		})
		status := model.InvoiceStatusPending
		if i%2 == 0 {
			status = model.InvoiceStatusPaid
		}
		b.invoices = append(b.invoices, model.Invoice{
			ID:            int64(i),
			InvoiceNumber: fmt.Sprintf("INV-%03d", i),
			Amount:        float64(i) * 100,
			Status:        status,
			ClientID:      int64(i),
			ClientName:    fmt.Sprintf("Client %d", i),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /Clients", b.handle(RouteListClients, b.listClients))
	mux.HandleFunc("POST /Clients", b.handle(RouteCreateClient, b.createClient))
	mux.HandleFunc("GET /Clients/{id}", b.handle(RouteGetClient, b.getClient))
	mux.HandleFunc("PUT /Clients/{id}", b.handle(RouteUpdateClient, b.updateClient))
	mux.HandleFunc("DELETE /Clients/{id}", b.handle(RouteDeleteClient, b.deleteClient))
	mux.HandleFunc("GET /Invoices", b.handle(RouteListInvoices, b.listInvoices))
	mux.HandleFunc("POST /Invoices", b.handle(RouteCreateInvoice, b.createInvoice))
	mux.HandleFunc("GET /Invoices/dashboard-stats", b.handle(RouteDashboardStats, b.dashboardStats))
	mux.HandleFunc("GET /Invoices/reports", b.handle(RouteReports, b.reports))
	mux.HandleFunc("GET /Invoices/{id}", b.handle(RouteGetInvoice, b.getInvoice))
	mux.HandleFunc("PUT /Invoices/{id}", b.handle(RouteUpdateInvoice, b.updateInvoice))
	mux.HandleFunc("DELETE /Invoices/{id}", b.handle(RouteDeleteInvoice, b.deleteInvoice))
	mux.HandleFunc("GET /settings", b.handle(RouteGetSettings, b.getSettings))
	mux.HandleFunc("PUT /settings", b.handle(RouteUpdateSettings, b.putSettings))

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the base URL of the mock backend server.
func (b *BillingBackend) URL() string {
	return b.server.URL
}

// On returns a script builder for the given route.
func (b *BillingBackend) On(route string) *RouteScript {
	return &RouteScript{backend: b, route: route}
}

// RespondWith queues a one-shot scripted response. Queued responses are
// consumed in order before the stateful default behavior resumes.
func (rs *RouteScript) RespondWith(status int, body any) *RouteScript {
	rs.backend.mu.Lock()
	defer rs.backend.mu.Unlock()
	rs.backend.scripted[rs.route] = append(rs.backend.scripted[rs.route],
		&scriptedResponse{status: status, body: body})
	return rs
}

// FailWith queues n one-shot failures with the given status.
func (rs *RouteScript) FailWith(status int, n int) *RouteScript {
	for i := 0; i < n; i++ {
		rs.RespondWith(status, map[string]string{"error": "scripted failure"})
	}
	return rs
}

// DelayWith queues a one-shot delayed success that serves the stateful
// default after sleeping for d.
func (rs *RouteScript) DelayWith(d time.Duration) *RouteScript {
	rs.backend.mu.Lock()
	defer rs.backend.mu.Unlock()
	rs.backend.scripted[rs.route] = append(rs.backend.scripted[rs.route],
		&scriptedResponse{delay: d})
	return rs
}

// Requests returns all requests recorded for the given route.
func (b *BillingBackend) Requests(route string) []*RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*RecordedRequest, len(b.received[route]))
	copy(out, b.received[route])
	return out
}

// LastRequest returns the most recent request for the route, or nil.
func (b *BillingBackend) LastRequest(route string) *RecordedRequest {
	reqs := b.Requests(route)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// RequestCount returns how many requests the route has received.
func (b *BillingBackend) RequestCount(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.received[route])
}

// handle wraps a stateful handler with request recording and script
// consumption.
func (b *BillingBackend) handle(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)

		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			RawBody:     raw,
			ReceivedAt:  time.Now(),
		}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				rec.QueryParams[k] = vs[0]
			}
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}

		b.mu.Lock()
		b.received[route] = append(b.received[route], rec)
		var script *scriptedResponse
		if queue := b.scripted[route]; len(queue) > 0 {
			script = queue[0]
			b.scripted[route] = queue[1:]
		}
		b.mu.Unlock()

		if script != nil {
			if script.delay > 0 {
				time.Sleep(script.delay)
			}
			if script.status != 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(script.status)
				json.NewEncoder(w).Encode(script.body)
				return
			}
		}

		// Re-seed the body for the stateful handler.
		r.Body = io.NopCloser(bytes.NewReader(raw))
		fn(w, r)
	}
}

// --- stateful default handlers ---

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func paginate[T any](items []T, q map[string][]string) model.PagedResult[T] {
	page, _ := strconv.Atoi(first(q, "page"))
	size, _ := strconv.Atoi(first(q, "pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	start := (page - 1) * size
	end := start + size
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return model.PagedResult[T]{
		Items:    out,
		PageMeta: pagination.Meta(page, size, len(items)),
	}
}

func first(q map[string][]string, key string) string {
	if vs := q[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (b *BillingBackend) listClients(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.clients
	if search := r.URL.Query().Get("search"); search != "" {
		filtered := make([]model.Client, 0, len(items))
		for _, c := range items {
			if containsFold(c.Name, search) || containsFold(c.Email, search) {
				filtered = append(filtered, c)
			}
		}
		items = filtered
	}
	respondJSON(w, paginate(items, r.URL.Query()))
}

func (b *BillingBackend) createClient(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var c model.Client
	json.NewDecoder(r.Body).Decode(&c)
	c.ID = int64(len(b.clients) + 1)
	b.clients = append(b.clients, c)
	respondJSON(w, c)
}

func (b *BillingBackend) getClient(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, c := range b.clients {
		if c.ID == id {
			respondJSON(w, c)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) updateClient(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var patch map[string]any
	json.NewDecoder(r.Body).Decode(&patch)
	for i, c := range b.clients {
		if c.ID == id {
			if name, ok := patch["name"].(string); ok {
				c.Name = name
			}
			if email, ok := patch["email"].(string); ok {
				c.Email = email
			}
			b.clients[i] = c
			respondJSON(w, c)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) deleteClient(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i, c := range b.clients {
		if c.ID == id {
			b.clients = append(b.clients[:i], b.clients[i+1:]...)
			w.WriteHeader(204)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) listInvoices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.invoices
	if search := r.URL.Query().Get("search"); search != "" {
		filtered := make([]model.Invoice, 0, len(items))
		for _, inv := range items {
			if containsFold(inv.InvoiceNumber, search) || containsFold(inv.ClientName, search) {
				filtered = append(filtered, inv)
			}
		}
		items = filtered
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]model.Invoice, 0, len(items))
		for _, inv := range items {
			if inv.Status == status {
				filtered = append(filtered, inv)
			}
		}
		items = filtered
	}
	respondJSON(w, paginate(items, r.URL.Query()))
}

func (b *BillingBackend) createInvoice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var inv model.Invoice
	json.NewDecoder(r.Body).Decode(&inv)
	inv.ID = int64(len(b.invoices) + 1)
	b.invoices = append(b.invoices, inv)
	respondJSON(w, inv)
}

func (b *BillingBackend) getInvoice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, inv := range b.invoices {
		if inv.ID == id {
			respondJSON(w, inv)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) updateInvoice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	var patch map[string]any
	json.NewDecoder(r.Body).Decode(&patch)
	for i, inv := range b.invoices {
		if inv.ID == id {
			if status, ok := patch["status"].(string); ok {
				inv.Status = status
			}
			b.invoices[i] = inv
			respondJSON(w, inv)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i, inv := range b.invoices {
		if inv.ID == id {
			b.invoices = append(b.invoices[:i], b.invoices[i+1:]...)
			w.WriteHeader(204)
			return
		}
	}
	http.NotFound(w, r)
}

func (b *BillingBackend) dashboardStats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	respondJSON(w, b.stats)
}

func (b *BillingBackend) reports(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	respondJSON(w, b.report)
}

func (b *BillingBackend) getSettings(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	respondJSON(w, map[string]any{"data": b.profile})
}

func (b *BillingBackend) putSettings(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	json.NewDecoder(r.Body).Decode(&b.profile)
	respondJSON(w, map[string]any{"data": b.profile})
}
