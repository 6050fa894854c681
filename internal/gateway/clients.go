package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/model"
)

// listQuery encodes the shared list parameters. The search term is always
// sent, even when empty; orderBy is omitted entirely when unset, and
// isDescending only travels alongside it.
func listQuery(req liststate.ListRequest) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("pageSize", strconv.Itoa(req.PageSize))
	q.Set("search", req.Search)
	if req.OrderBy != "" {
		q.Set("orderBy", req.OrderBy)
		q.Set("isDescending", strconv.FormatBool(req.Descending))
	}
	return q
}

// Clients is the gateway for the backend's /Clients resource.
type Clients struct {
	client *Client
}

// NewClients creates a client-entity gateway on top of the backend client.
func NewClients(c *Client) *Clients {
	return &Clients{client: c}
}

// List fetches one page of clients.
func (g *Clients) List(ctx context.Context, req liststate.ListRequest) (model.PagedResult[model.Client], error) {
	body, err := g.client.Get(ctx, "/Clients", listQuery(req))
	if err != nil {
		return model.PagedResult[model.Client]{}, err
	}
	return decodePaged[model.Client](body)
}

// GetByID fetches a single client.
func (g *Clients) GetByID(ctx context.Context, id int64) (model.Client, error) {
	body, err := g.client.Get(ctx, fmt.Sprintf("/Clients/%d", id), nil)
	if err != nil {
		return model.Client{}, err
	}
	return decode[model.Client](body)
}

// Create creates a client from a draft.
func (g *Clients) Create(ctx context.Context, draft any) (model.Client, error) {
	body, err := g.client.Send(ctx, http.MethodPost, "/Clients", draft)
	if err != nil {
		return model.Client{}, err
	}
	return decode[model.Client](body)
}

// Update applies a partial update to a client.
func (g *Clients) Update(ctx context.Context, id int64, patch any) (model.Client, error) {
	body, err := g.client.Send(ctx, http.MethodPut, fmt.Sprintf("/Clients/%d", id), patch)
	if err != nil {
		return model.Client{}, err
	}
	return decode[model.Client](body)
}

// Delete removes a client.
func (g *Clients) Delete(ctx context.Context, id int64) error {
	_, err := g.client.Send(ctx, http.MethodDelete, fmt.Sprintf("/Clients/%d", id), nil)
	return err
}
