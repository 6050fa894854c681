// Package liststate implements the list-state controller shared by the
// client and invoice screens: one page of entities consistent with the
// current search/filter/sort, the request lifecycle flag, and a single
// error slot. Mutations are serialized against that cache with the refresh
// policy each write deserves (create resets to page one, delete re-reads
// the current page, update patches in place).
package liststate

import (
	"context"
	"sync"

	"github.com/billtrack/bff/model"
)

// Entity is any record with a stable identifier. The controller is agnostic
// to the rest of the shape.
type Entity interface {
	EntityID() int64
}

// ListRequest carries the resolved query to the gateway. Search is always
// sent, even when empty; OrderBy is dropped from the wire entirely when "".
type ListRequest struct {
	Page       int
	PageSize   int
	Search     string
	Status     string
	OrderBy    string
	Descending bool
}

// Gateway translates controller intents into backend requests. Draft and
// patch bodies are entity-specific; the gateway serializes whatever it is
// given and lets the backend validate.
type Gateway[T Entity] interface {
	List(ctx context.Context, req ListRequest) (model.PagedResult[T], error)
	GetByID(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, draft any) (T, error)
	Update(ctx context.Context, id int64, patch any) (T, error)
	Delete(ctx context.Context, id int64) error
}

// FetchOptions override parts of the stored query for a single fetch. A nil
// pointer means "use the current value"; a pointer to the empty string is an
// explicit override to empty. Page 0 means the current page number.
type FetchOptions struct {
	Page       int
	Search     *string
	Status     *string
	OrderBy    *string
	Descending *bool
}

// Snapshot is a read-only copy of the controller state, taken atomically.
// Views render from snapshots and never mutate controller state directly.
type Snapshot[T Entity] struct {
	Items    []T            `json:"items"`
	Page     model.PageMeta `json:"pagination"`
	Query    model.Query    `json:"query"`
	Loading  bool           `json:"isLoading"`
	Error    string         `json:"error,omitempty"`
	Selected *T             `json:"selected,omitempty"`
}

// Controller owns the list view state for one entity type. One instance per
// entity type per session; it is handed to consumers explicitly rather than
// living in package-level state.
//
// The mutex guards state transitions but is not held across gateway calls,
// so two racing fetches resolve last-writer-wins on items and pagination —
// the same visible behavior the dashboard has always had under rapid input.
type Controller[T Entity] struct {
	gw       Gateway[T]
	pageSize int

	mu       sync.Mutex
	items    []T
	page     model.PageMeta
	query    model.Query
	loading  bool
	lastErr  string
	selected *T
}

// Option configures a Controller.
type Option func(*config)

type config struct {
	pageSize      int
	defaultStatus string
}

// WithPageSize sets the page size used for every fetch.
func WithPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithStatusFilter enables the status dimension of the query and sets its
// initial value (normally model.StatusFilterAll).
func WithStatusFilter(initial string) Option {
	return func(c *config) { c.defaultStatus = initial }
}

// New creates a controller over the given gateway with empty items on page 1.
func New[T Entity](gw Gateway[T], opts ...Option) *Controller[T] {
	cfg := config{pageSize: 10}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller[T]{
		gw:       gw,
		pageSize: cfg.pageSize,
		page:     model.PageMeta{PageNumber: 1, PageSize: cfg.pageSize},
		query:    model.Query{Status: cfg.defaultStatus},
	}
}

// Snapshot returns an atomic copy of the current state. The items slice is
// copied so later fetches cannot mutate what a view already holds.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]T, len(c.items))
	copy(items, c.items)

	return Snapshot[T]{
		Items:    items,
		Page:     c.page,
		Query:    c.query,
		Loading:  c.loading,
		Error:    c.lastErr,
		Selected: c.selected,
	}
}

// FetchPage fetches one page of entities for the effective query (stored
// query with opts merged on top) and replaces the cached page wholesale.
// On success the effective query becomes the stored query. On failure the
// items are cleared, the error slot is set, and the stored query is left
// exactly as it was: the user keeps seeing what they asked for, with an
// explicit error, instead of a silent revert.
func (c *Controller[T]) FetchPage(ctx context.Context, opts FetchOptions) bool {
	c.mu.Lock()
	page := opts.Page
	if page < 1 {
		page = c.page.PageNumber
	}
	if page < 1 {
		page = 1
	}
	eff := c.query
	if opts.Search != nil {
		eff.Search = *opts.Search
	}
	if opts.Status != nil {
		eff.Status = *opts.Status
	}
	if opts.OrderBy != nil {
		eff.OrderBy = *opts.OrderBy
	}
	if opts.Descending != nil {
		eff.Descending = *opts.Descending
	}
	c.loading = true
	c.lastErr = ""
	c.mu.Unlock()

	result, err := c.gw.List(ctx, ListRequest{
		Page:       page,
		PageSize:   c.pageSize,
		Search:     eff.Search,
		Status:     eff.Status,
		OrderBy:    eff.OrderBy,
		Descending: eff.Descending,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.items = nil
		c.lastErr = err.Error()
		return false
	}

	// Full replace, never a merge. An empty page with valid metadata is a
	// successful "no results", not an error.
	c.items = result.Items
	c.page = result.PageMeta
	c.query = eff
	return true
}

// FetchByID loads a single entity into the selected slot.
func (c *Controller[T]) FetchByID(ctx context.Context, id int64) bool {
	c.setLoading()

	entity, err := c.gw.GetByID(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.selected = nil
		c.lastErr = err.Error()
		return false
	}
	c.selected = &entity
	return true
}

// Create issues one write and, on success, resets the view to page 1 of the
// current query so the new row is reachable. A failed create leaves the
// cached items untouched; only the error slot changes.
func (c *Controller[T]) Create(ctx context.Context, draft any) bool {
	c.setLoading()

	if _, err := c.gw.Create(ctx, draft); err != nil {
		c.setError(err)
		return false
	}

	c.FetchPage(ctx, FetchOptions{Page: 1})
	return true
}

// Update issues one write for the entity keyed by id and, on success,
// replaces the matching cached entity in place without a refetch.
func (c *Controller[T]) Update(ctx context.Context, id int64, patch any) bool {
	c.setLoading()

	updated, err := c.gw.Update(ctx, id, patch)
	if err != nil {
		c.setError(err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	for i := range c.items {
		if c.items[i].EntityID() == id {
			c.items[i] = updated
			break
		}
	}
	if c.selected != nil && (*c.selected).EntityID() == id {
		c.selected = &updated
	}
	return true
}

// Delete issues one delete and, on success, re-reads the current page (not
// page 1). Deleting the last row of the last page therefore lands on an
// empty page; the controller does not step the page number back.
func (c *Controller[T]) Delete(ctx context.Context, id int64) bool {
	c.setLoading()

	if err := c.gw.Delete(ctx, id); err != nil {
		c.setError(err)
		return false
	}

	c.mu.Lock()
	page := c.page.PageNumber
	c.mu.Unlock()

	c.FetchPage(ctx, FetchOptions{Page: page})
	return true
}

// QueryPatch is a partial query update; nil fields are left unchanged.
type QueryPatch struct {
	Search *string
	Status *string
}

// SetQuery applies a partial query update without fetching. Callers follow
// up with FetchPage so a search-plus-filter change costs one request.
func (c *Controller[T]) SetQuery(patch QueryPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if patch.Search != nil {
		c.query.Search = *patch.Search
	}
	if patch.Status != nil {
		c.query.Status = *patch.Status
	}
}

// SetSort sets the sort column and direction without fetching.
func (c *Controller[T]) SetSort(orderBy string, descending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.OrderBy = orderBy
	c.query.Descending = descending
}

// ToggleSort applies the column-header click policy: clicking the active
// column flips the direction; clicking a different column selects it
// ascending-first. Returns the resulting sort so the caller can fetch with it.
func (c *Controller[T]) ToggleSort(column string) (orderBy string, descending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query.OrderBy == column {
		c.query.Descending = !c.query.Descending
	} else {
		c.query.OrderBy = column
		c.query.Descending = false
	}
	return c.query.OrderBy, c.query.Descending
}

// SetSelected stores the selected entity (nil clears it).
func (c *Controller[T]) SetSelected(entity *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = entity
}

// ClearError clears the error slot.
func (c *Controller[T]) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

func (c *Controller[T]) setLoading() {
	c.mu.Lock()
	c.loading = true
	c.lastErr = ""
	c.mu.Unlock()
}

func (c *Controller[T]) setError(err error) {
	c.mu.Lock()
	c.loading = false
	c.lastErr = err.Error()
	c.mu.Unlock()
}
