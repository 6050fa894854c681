// Package model holds the public types shared between the BFF layers:
// entity DTOs mirroring the billing backend contract, the paged result
// envelope, query state, error envelopes, and the per-request context.
package model

// Client is one customer record as served by the billing backend.
type Client struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	CompanyName       string  `json:"companyName,omitempty"`
	AvatarURL         string  `json:"avatarUrl,omitempty"`
	IsActive          bool    `json:"isActive"`
	LifetimeValue     float64 `json:"lifetimeValue"`
	OutstandingStatus string  `json:"outstandingStatus,omitempty"`
}

// EntityID returns the stable identifier used for in-place list updates.
func (c Client) EntityID() int64 { return c.ID }

// ClientDraft carries the fields the backend requires to create a client.
type ClientDraft struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Invoice statuses as the backend reports them.
const (
	InvoiceStatusPaid    = "Paid"
	InvoiceStatusPending = "Pending"
	InvoiceStatusOverdue = "Overdue"
)

// StatusFilterAll is the sentinel status filter meaning "no status filter".
// It is never sent to the backend; the gateway maps it to an empty value.
const StatusFilterAll = "All"

// Invoice is one invoice record, denormalized with client display fields.
type Invoice struct {
	ID              int64   `json:"id"`
	InvoiceNumber   string  `json:"invoiceNumber"`
	Amount          float64 `json:"amount"`
	DateIssued      string  `json:"dateIssued"`
	Status          string  `json:"status"`
	ClientID        int64   `json:"clientId"`
	ClientName      string  `json:"clientName"`
	ClientEmail     string  `json:"clientEmail"`
	ClientAvatarURL string  `json:"clientAvatarUrl,omitempty"`
}

// EntityID returns the stable identifier used for in-place list updates.
func (i Invoice) EntityID() int64 { return i.ID }

// MetricItem is a single labelled value in a stats series.
type MetricItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// DashboardStats is the aggregate payload behind the dashboard cards.
type DashboardStats struct {
	TotalRevenue              float64      `json:"totalRevenue"`
	OutstandingAmount         float64      `json:"outstandingAmount"`
	TotalInvoices             int          `json:"totalInvoices"`
	MonthlyRevenue            []MetricItem `json:"monthlyRevenue"`
	InvoiceStatusDistribution []MetricItem `json:"invoiceStatusDistribution"`
}

// MonthlyRevenue is one month of the revenue-vs-expenses series.
type MonthlyRevenue struct {
	Month    string  `json:"month"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
}

// ClientRevenue is one slice of the revenue-by-client breakdown.
type ClientRevenue struct {
	ClientName string  `json:"clientName"`
	Revenue    float64 `json:"revenue"`
	Percentage float64 `json:"percentage"`
}

// StatusCount is one bar of the invoices-by-status chart.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ReportData is the financial reports payload.
type ReportData struct {
	TotalRevenue     float64          `json:"totalRevenue"`
	TotalExpenses    float64          `json:"totalExpenses"`
	MonthlyRevenue   []MonthlyRevenue `json:"monthlyRevenue"`
	RevenueByClient  []ClientRevenue  `json:"revenueByClient"`
	InvoicesByStatus []StatusCount    `json:"invoicesByStatus"`
}

// UserProfile is the account settings record.
type UserProfile struct {
	ID             int64  `json:"id"`
	FullName       string `json:"fullName"`
	Title          string `json:"title"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Timezone       string `json:"timezone"`
	AvatarURL      string `json:"avatarUrl"`
	CompanyName    string `json:"companyName"`
	TaxID          string `json:"taxId"`
	StreetAddress  string `json:"streetAddress"`
	City           string `json:"city"`
	ZipCode        string `json:"zipCode"`
	Country        string `json:"country"`
	CompanyLogoURL string `json:"companyLogoUrl"`
	BrandColor     string `json:"brandColor"`
	SecondaryColor string `json:"secondaryColor"`
}
