package model

// PageMeta describes one page of a larger result set. The backend computes
// these fields; Validate re-checks them at the gateway boundary so a
// malformed response fails loudly instead of rendering nonsense controls.
type PageMeta struct {
	PageNumber      int  `json:"pageNumber"`
	PageSize        int  `json:"pageSize"`
	TotalCount      int  `json:"totalCount"`
	TotalPages      int  `json:"totalPages"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

// PagedResult is the backend's list response envelope.
type PagedResult[T any] struct {
	Items []T `json:"items"`
	PageMeta
}

// Query is the user-controlled search/filter/sort state driving list fetches.
// An empty OrderBy means unsorted; it is omitted from backend requests
// entirely, whereas an empty Search is still sent.
type Query struct {
	Search     string `json:"search"`
	Status     string `json:"status,omitempty"`
	OrderBy    string `json:"orderBy,omitempty"`
	Descending bool   `json:"isDescending"`
}
