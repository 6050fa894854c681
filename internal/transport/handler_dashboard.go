package transport

import (
	"net/http"

	"github.com/billtrack/bff/model"
)

// handleDashboard serves the aggregated dashboard overview: backend stats
// plus the most recent invoices, fetched concurrently and cached per
// subject. A failure of either half fails the whole aggregation; the
// response is still 200 with the error string inline, matching the list
// screens.
func handleDashboard(deps Dependencies) http.HandlerFunc {
	type dashboardView struct {
		Stats          any    `json:"stats,omitempty"`
		RecentInvoices any    `json:"recentInvoices,omitempty"`
		Cached         bool   `json:"cached"`
		Error          string `json:"error,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		overview, cached, err := deps.Dashboard.Overview(r.Context())
		if cached {
			deps.Metrics.RecordDashboardCacheHit()
		} else {
			deps.Metrics.RecordDashboardCacheMiss()
		}
		if err != nil {
			WriteJSON(w, http.StatusOK, dashboardView{Error: err.Error()})
			return
		}

		WriteJSON(w, http.StatusOK, dashboardView{
			Stats:          overview.Stats,
			RecentInvoices: overview.RecentInvoices,
			Cached:         cached,
		})
	}
}
