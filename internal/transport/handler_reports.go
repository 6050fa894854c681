package transport

import (
	"fmt"
	"net/http"

	"github.com/billtrack/bff/model"
)

// handleReports serves the raw report dataset for the reports screen.
func handleReports(deps Dependencies) http.HandlerFunc {
	type reportsView struct {
		Data  *model.ReportData `json:"data,omitempty"`
		Error string            `json:"error,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		data, err := deps.Reports.Data(r.Context())
		if err != nil {
			WriteJSON(w, http.StatusOK, reportsView{Error: err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, reportsView{Data: &data})
	}
}

// handleReportsExport streams the report dataset as a CSV attachment named
// by the current date.
func handleReportsExport(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filename, csv, err := deps.Reports.Export(r.Context())
		if err != nil {
			WriteError(w, model.NewBackendUnavailableError())
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		w.Write(csv)
	}
}
