// Package reports serves the financial reports page and its CSV export.
package reports

import (
	"context"

	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/model"
)

// Provider fetches report data from the backend.
type Provider struct {
	invoices *gateway.Invoices
}

// NewProvider creates a reports provider.
func NewProvider(invoices *gateway.Invoices) *Provider {
	return &Provider{invoices: invoices}
}

// Data returns the full report aggregation.
func (p *Provider) Data(ctx context.Context) (model.ReportData, error) {
	return p.invoices.Reports(ctx)
}

// Export returns the report as a downloadable CSV together with its
// suggested filename.
func (p *Provider) Export(ctx context.Context) (filename string, csv []byte, err error) {
	data, err := p.Data(ctx)
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(nowFunc()), RenderCSV(data), nil
}
