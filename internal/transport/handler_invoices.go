package transport

import (
	"net/http"

	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/model"
)

func invoicesOf(s *session.Session) *liststate.Controller[model.Invoice] { return s.Invoices }

// invalidateDashboard drops the subject's cached dashboard overview after a
// successful invoice mutation, since totals and recent invoices change.
func invalidateDashboard(deps Dependencies) func(*http.Request) {
	return func(r *http.Request) {
		if deps.Dashboard != nil {
			deps.Dashboard.Invalidate(r.Context())
		}
	}
}

func handleInvoicesList(deps Dependencies) http.HandlerFunc {
	return handleListFetch(deps, "invoices", invoicesOf, true)
}

func handleInvoiceGet(deps Dependencies) http.HandlerFunc {
	return handleListGet(deps, "invoices", "invoiceID", invoicesOf)
}

func handleInvoiceCreate(deps Dependencies) http.HandlerFunc {
	return handleListCreate(deps, "invoices", invoicesOf, invalidateDashboard(deps))
}

func handleInvoiceUpdate(deps Dependencies) http.HandlerFunc {
	return handleListUpdate(deps, "invoices", "invoiceID", invoicesOf, invalidateDashboard(deps))
}

func handleInvoiceDelete(deps Dependencies) http.HandlerFunc {
	return handleListDelete(deps, "invoices", "invoiceID", invoicesOf, invalidateDashboard(deps))
}
