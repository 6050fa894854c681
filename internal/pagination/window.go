// Package pagination implements the page-number window shown under list
// views, plus the page metadata arithmetic shared by the gateways and
// controllers. Everything here is a pure function of its integer inputs.
package pagination

import "github.com/billtrack/bff/model"

// VisibleWindow is the number of page buttons rendered at once.
const VisibleWindow = 5

// WindowPlan is the render plan for the pagination control: which page
// numbers to show as buttons, plus the first/last shortcuts and ellipses
// around them. An empty plan (no Pages) means the control is hidden.
type WindowPlan struct {
	Pages            []int `json:"pages"`
	ShowFirst        bool  `json:"showFirst"`
	LeadingEllipsis  bool  `json:"leadingEllipsis"`
	ShowLast         bool  `json:"showLast"`
	TrailingEllipsis bool  `json:"trailingEllipsis"`
	HasPrevious      bool  `json:"hasPrevious"`
	HasNext          bool  `json:"hasNext"`
}

// Window computes the page-button window for the given current page and
// total page count. With one page or fewer there is nothing to paginate and
// the plan is empty. Near the boundaries the window is re-clamped so it
// stays VisibleWindow wide instead of shrinking.
func Window(currentPage, totalPages int) WindowPlan {
	if totalPages <= 1 {
		return WindowPlan{}
	}
	if currentPage < 1 {
		currentPage = 1
	}
	if currentPage > totalPages {
		currentPage = totalPages
	}

	start := currentPage - VisibleWindow/2
	if start < 1 {
		start = 1
	}
	end := start + VisibleWindow - 1
	if end > totalPages {
		end = totalPages
	}
	if end-start+1 < VisibleWindow {
		start = end - VisibleWindow + 1
		if start < 1 {
			start = 1
		}
	}

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}

	return WindowPlan{
		Pages:            pages,
		ShowFirst:        start > 1,
		LeadingEllipsis:  start > 2,
		ShowLast:         end < totalPages,
		TrailingEllipsis: end < totalPages-1,
		HasPrevious:      currentPage > 1,
		HasNext:          currentPage < totalPages,
	}
}

// Meta builds a PageMeta that satisfies the paging invariants:
// TotalPages is ceil(TotalCount/PageSize) and the has-previous/has-next
// flags follow from the page number. Used for locally assembled pages and
// by tests asserting backend responses.
func Meta(pageNumber, pageSize, totalCount int) model.PageMeta {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if totalCount < 0 {
		totalCount = 0
	}

	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	return model.PageMeta{
		PageNumber:      pageNumber,
		PageSize:        pageSize,
		TotalCount:      totalCount,
		TotalPages:      totalPages,
		HasPreviousPage: pageNumber > 1,
		HasNextPage:     pageNumber < totalPages,
	}
}

// Consistent reports whether a PageMeta satisfies the paging invariants.
// The gateway rejects list responses for which this is false.
func Consistent(m model.PageMeta) bool {
	if m.PageSize < 1 || m.PageNumber < 1 || m.TotalCount < 0 {
		return false
	}
	want := Meta(m.PageNumber, m.PageSize, m.TotalCount)
	return m == want
}
