package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/model"
)

// Invoices is the gateway for the backend's /Invoices resource, which also
// hosts the dashboard and report aggregations.
type Invoices struct {
	client *Client
}

// NewInvoices creates an invoice gateway on top of the backend client.
func NewInvoices(c *Client) *Invoices {
	return &Invoices{client: c}
}

// List fetches one page of invoices. The status filter is always sent;
// the "All" tab travels as an empty string.
func (g *Invoices) List(ctx context.Context, req liststate.ListRequest) (model.PagedResult[model.Invoice], error) {
	q := listQuery(req)
	status := req.Status
	if status == model.StatusFilterAll {
		status = ""
	}
	q.Set("status", status)

	body, err := g.client.Get(ctx, "/Invoices", q)
	if err != nil {
		return model.PagedResult[model.Invoice]{}, err
	}
	return decodePaged[model.Invoice](body)
}

// GetByID fetches a single invoice.
func (g *Invoices) GetByID(ctx context.Context, id int64) (model.Invoice, error) {
	body, err := g.client.Get(ctx, fmt.Sprintf("/Invoices/%d", id), nil)
	if err != nil {
		return model.Invoice{}, err
	}
	return decode[model.Invoice](body)
}

// Create creates an invoice from a draft.
func (g *Invoices) Create(ctx context.Context, draft any) (model.Invoice, error) {
	body, err := g.client.Send(ctx, http.MethodPost, "/Invoices", draft)
	if err != nil {
		return model.Invoice{}, err
	}
	return decode[model.Invoice](body)
}

// Update applies a partial update to an invoice.
func (g *Invoices) Update(ctx context.Context, id int64, patch any) (model.Invoice, error) {
	body, err := g.client.Send(ctx, http.MethodPut, fmt.Sprintf("/Invoices/%d", id), patch)
	if err != nil {
		return model.Invoice{}, err
	}
	return decode[model.Invoice](body)
}

// Delete removes an invoice.
func (g *Invoices) Delete(ctx context.Context, id int64) error {
	_, err := g.client.Send(ctx, http.MethodDelete, fmt.Sprintf("/Invoices/%d", id), nil)
	return err
}

// DashboardStats fetches the pre-aggregated dashboard counters.
func (g *Invoices) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	body, err := g.client.Get(ctx, "/Invoices/dashboard-stats", nil)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return decode[model.DashboardStats](body)
}

// Reports fetches the financial report aggregation.
func (g *Invoices) Reports(ctx context.Context) (model.ReportData, error) {
	body, err := g.client.Get(ctx, "/Invoices/reports", nil)
	if err != nil {
		return model.ReportData{}, err
	}
	return decode[model.ReportData](body)
}
