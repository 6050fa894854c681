package reports

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/billtrack/bff/model"
)

// nowFunc is swapped in tests to pin the export date.
var nowFunc = time.Now

// ExportFilename returns the download name for a report exported at the
// given time, e.g. financial_report_2026-08-29.csv.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("financial_report_%s.csv", now.Format("2006-01-02"))
}

// RenderCSV renders the multi-section export the reports page offers:
// a summary block followed by the monthly, per-client, and per-status
// tables, separated by blank lines.
func RenderCSV(data model.ReportData) []byte {
	lines := []string{
		"Financial Reports Export",
		"",
		"Summary",
		fmt.Sprintf("Total Revenue,$%.2f", data.TotalRevenue),
		fmt.Sprintf("Total Expenses,$%.2f", data.TotalExpenses),
		"",
		"Monthly Revenue",
		"Month,Revenue,Expenses",
	}

	for _, m := range data.MonthlyRevenue {
		lines = append(lines, fmt.Sprintf("%s,%s,%s",
			m.Month, formatNumber(m.Revenue), formatNumber(m.Expenses)))
	}

	lines = append(lines, "", "Revenue by Client", "Client,Revenue")
	for _, c := range data.RevenueByClient {
		lines = append(lines, fmt.Sprintf("%s,%s", c.ClientName, formatNumber(c.Revenue)))
	}

	lines = append(lines, "", "Invoices by Status", "Status,Count")
	for _, s := range data.InvoicesByStatus {
		lines = append(lines, fmt.Sprintf("%s,%d", s.Status, s.Count))
	}

	return []byte(strings.Join(lines, "\n"))
}

// formatNumber prints a value without trailing zeros (10200, 10200.5).
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
