package transport

import (
	"encoding/json"
	"net/http"

	"github.com/billtrack/bff/model"
)

// handleSettingsGet serves the profile backing the settings screen.
func handleSettingsGet(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		ctrl := deps.Sessions.Get(rctx.SubjectID).Settings

		ctrl.FetchProfile(r.Context())
		WriteJSON(w, http.StatusOK, ctrl.Snapshot())
	}
}

// handleSettingsUpdate merges the submitted field patch over the loaded
// profile and sends the full record back to the billing backend. With no
// profile loaded the update is a no-op and the snapshot is returned as is.
func handleSettingsUpdate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		var updates map[string]any
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		ctrl := deps.Sessions.Get(rctx.SubjectID).Settings

		ctrl.UpdateProfile(r.Context(), updates)
		WriteJSON(w, http.StatusOK, ctrl.Snapshot())
	}
}
