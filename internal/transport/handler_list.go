package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/billtrack/bff/internal/idempotency"
	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/internal/pagination"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/model"
)

// listView is the wire shape of a list screen: the cached page, its
// pagination metadata, the render plan for the page-number window, and the
// effective query. Backend failures show up as the error string, never as a
// non-200 response.
type listView[T liststate.Entity] struct {
	Items      []T                   `json:"items"`
	Pagination model.PageMeta        `json:"pagination"`
	Window     pagination.WindowPlan `json:"window"`
	Query      model.Query           `json:"query"`
	Loading    bool                  `json:"isLoading"`
	Error      string                `json:"error,omitempty"`
	Selected   *T                    `json:"selected,omitempty"`
}

func viewOf[T liststate.Entity](s liststate.Snapshot[T]) listView[T] {
	return listView[T]{
		Items:      s.Items,
		Pagination: s.Page,
		Window:     pagination.Window(s.Page.PageNumber, s.Page.TotalPages),
		Query:      s.Query,
		Loading:    s.Loading,
		Error:      s.Error,
		Selected:   s.Selected,
	}
}

// fetchOptionsFromQuery maps list query parameters onto FetchOptions.
// A parameter that is present but empty is an explicit override to empty;
// an absent parameter leaves the stored query value in place.
func fetchOptionsFromQuery(r *http.Request, withStatus bool) liststate.FetchOptions {
	q := r.URL.Query()
	opts := liststate.FetchOptions{Page: queryInt(r, "page", 0)}

	if q.Has("q") {
		s := q.Get("q")
		opts.Search = &s
	}
	if q.Has("sort") {
		sort := q.Get("sort")
		opts.OrderBy = &sort
		desc := q.Get("sort_dir") == "desc"
		opts.Descending = &desc
	}
	if withStatus {
		if status, ok := queryFilter(r, "status"); ok {
			opts.Status = &status
		}
	}
	return opts
}

// handleListFetch serves GET on a list collection: apply any query-parameter
// overrides, fetch the page, and return the resulting view. Always 200; a
// backend failure is carried inline as the view's error string.
func handleListFetch[T liststate.Entity](deps Dependencies, entity string, pick func(*session.Session) *liststate.Controller[T], withStatus bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		ctrl := pick(deps.Sessions.Get(rctx.SubjectID))

		start := time.Now()
		ok := ctrl.FetchPage(r.Context(), fetchOptionsFromQuery(r, withStatus))
		deps.Metrics.RecordListOperation(entity, "fetch", ok)
		deps.Metrics.RecordListFetchDuration(entity, time.Since(start))

		WriteJSON(w, http.StatusOK, viewOf(ctrl.Snapshot()))
	}
}

// handleListGet serves GET on a single entity, loading it into the view's
// selected slot.
func handleListGet[T liststate.Entity](deps Dependencies, entity, param string, pick func(*session.Session) *liststate.Controller[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		id, err := pathID(r, param)
		if err != nil {
			WriteError(w, model.NewBadRequestError("invalid entity id"))
			return
		}
		ctrl := pick(deps.Sessions.Get(rctx.SubjectID))

		ok := ctrl.FetchByID(r.Context(), id)
		deps.Metrics.RecordListOperation(entity, "get", ok)

		WriteJSON(w, http.StatusOK, viewOf(ctrl.Snapshot()))
	}
}

// handleListCreate serves POST on a list collection. On success the
// controller has already reset the view to page 1; the response is 201 with
// the refreshed view. Requests carrying X-Idempotency-Key are answered from
// the idempotency store on replay.
func handleListCreate[T liststate.Entity](deps Dependencies, entity string, pick func(*session.Session) *liststate.Controller[T], onSuccess func(*http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			WriteError(w, model.NewBadRequestError("unreadable request body"))
			return
		}
		var draft map[string]any
		if err := json.Unmarshal(body, &draft); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		replayed, idem := checkIdempotency(deps, w, r, entity, body)
		if replayed {
			return
		}

		ctrl := pick(deps.Sessions.Get(rctx.SubjectID))
		ok := ctrl.Create(r.Context(), draft)
		deps.Metrics.RecordListOperation(entity, "create", ok)
		if ok && onSuccess != nil {
			onSuccess(r)
		}

		status := http.StatusOK
		if ok {
			status = http.StatusCreated
		}
		writeWithIdempotency(deps, w, r, idem, status, viewOf(ctrl.Snapshot()))
	}
}

// handleListUpdate serves PUT on a single entity. The controller patches the
// cached row in place on success; no refetch happens.
func handleListUpdate[T liststate.Entity](deps Dependencies, entity, param string, pick func(*session.Session) *liststate.Controller[T], onSuccess func(*http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		id, err := pathID(r, param)
		if err != nil {
			WriteError(w, model.NewBadRequestError("invalid entity id"))
			return
		}
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		ctrl := pick(deps.Sessions.Get(rctx.SubjectID))
		ok := ctrl.Update(r.Context(), id, patch)
		deps.Metrics.RecordListOperation(entity, "update", ok)
		if ok && onSuccess != nil {
			onSuccess(r)
		}

		WriteJSON(w, http.StatusOK, viewOf(ctrl.Snapshot()))
	}
}

// handleListDelete serves DELETE on a single entity. The controller re-reads
// the current page on success. Replays via X-Idempotency-Key are answered
// from the idempotency store.
func handleListDelete[T liststate.Entity](deps Dependencies, entity, param string, pick func(*session.Session) *liststate.Controller[T], onSuccess func(*http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		id, err := pathID(r, param)
		if err != nil {
			WriteError(w, model.NewBadRequestError("invalid entity id"))
			return
		}

		replayed, idem := checkIdempotency(deps, w, r, entity, []byte(strconv.FormatInt(id, 10)))
		if replayed {
			return
		}

		ctrl := pick(deps.Sessions.Get(rctx.SubjectID))
		ok := ctrl.Delete(r.Context(), id)
		deps.Metrics.RecordListOperation(entity, "delete", ok)
		if ok && onSuccess != nil {
			onSuccess(r)
		}

		writeWithIdempotency(deps, w, r, idem, http.StatusOK, viewOf(ctrl.Snapshot()))
	}
}

// idemState carries the resolved idempotency key material between the check
// before a mutation and the store after it.
type idemState struct {
	key  string
	hash string
}

// checkIdempotency resolves X-Idempotency-Key against the store. If the key
// has a recorded outcome the response is replayed and the handler must stop.
// A reused key with a different input hash is rejected with 409.
func checkIdempotency(deps Dependencies, w http.ResponseWriter, r *http.Request, resource string, input []byte) (replayed bool, state idemState) {
	key := r.Header.Get("X-Idempotency-Key")
	if key == "" || deps.Idempotency == nil {
		return false, idemState{}
	}

	state = idemState{
		key:  idempotency.FormatKey(resource, key),
		hash: idempotency.HashInput(input),
	}

	outcome, found, err := deps.Idempotency.Check(r.Context(), state.key, state.hash)
	if err != nil {
		WriteError(w, err)
		return true, state
	}
	if found {
		deps.Metrics.RecordIdempotentReplay(resource)
		w.Header().Set("X-Idempotent-Replay", "true")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(outcome.StatusCode)
		w.Write(outcome.Body)
		return true, state
	}
	return false, state
}

// writeWithIdempotency writes the response and, when the request carried an
// idempotency key, records the outcome for future replays.
func writeWithIdempotency(deps Dependencies, w http.ResponseWriter, r *http.Request, state idemState, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		WriteError(w, model.NewInternalError())
		return
	}

	if state.key != "" && deps.Idempotency != nil {
		_ = deps.Idempotency.Store(r.Context(), state.key, state.hash, idempotency.Outcome{
			StatusCode: status,
			Body:       payload,
		}, deps.Config.Idempotency.Store.DefaultTTL)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write(payload)
}

// --- query and path helpers ---

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// queryFilter extracts filter[name] from the query string, reporting
// whether the parameter was present at all.
func queryFilter(r *http.Request, name string) (string, bool) {
	values, ok := r.URL.Query()["filter["+name+"]"]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
