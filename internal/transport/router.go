package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/internal/dashboard"
	"github.com/billtrack/bff/internal/idempotency"
	"github.com/billtrack/bff/internal/observability"
	"github.com/billtrack/bff/internal/reports"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler
	Sessions     *session.Registry
	Dashboard    *dashboard.Provider
	Reports      *reports.Provider
	Idempotency  idempotency.Store
	Readiness    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}

	// Public routes — bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	r.Handle("/metrics", observability.Handler())

	// Authenticated routes — full middleware chain.
	// The authenticator attaches the RequestContext; with none configured,
	// attach an empty one so handlers behind the group still find it.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := model.WithRequestContext(r.Context(), &model.RequestContext{
					CorrelationID: CorrelationIDFrom(r.Context()),
				})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Route("/ui/clients", func(r chi.Router) {
			r.Get("/", handleClientsList(deps))
			r.Post("/", handleClientCreate(deps))
			r.Get("/{clientID}", handleClientGet(deps))
			r.Put("/{clientID}", handleClientUpdate(deps))
			r.Delete("/{clientID}", handleClientDelete(deps))
		})

		r.Route("/ui/invoices", func(r chi.Router) {
			r.Get("/", handleInvoicesList(deps))
			r.Post("/", handleInvoiceCreate(deps))
			r.Get("/{invoiceID}", handleInvoiceGet(deps))
			r.Put("/{invoiceID}", handleInvoiceUpdate(deps))
			r.Delete("/{invoiceID}", handleInvoiceDelete(deps))
		})

		r.Get("/ui/dashboard", handleDashboard(deps))
		r.Get("/ui/reports", handleReports(deps))
		r.Get("/ui/reports/export", handleReportsExport(deps))
		r.Get("/ui/settings", handleSettingsGet(deps))
		r.Put("/ui/settings", handleSettingsUpdate(deps))
	})

	return r
}
