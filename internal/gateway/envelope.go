package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/billtrack/bff/internal/pagination"
	"github.com/billtrack/bff/model"
)

// serviceResponse is the {data: ...} wrapper some backend endpoints use
// (settings, uploads). List and entity endpoints return their payload bare.
type serviceResponse struct {
	Data json.RawMessage `json:"data"`
}

// decode unmarshals a bare JSON payload into T. A body that does not
// match the expected shape is an error, not something to silently
// duck-type around.
func decode[T any](body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("gateway: decode response: %w", err)
	}
	return out, nil
}

// decodeWrapped unmarshals a {data: ...} ServiceResponse envelope and
// returns the inner payload. A missing or null data field fails loudly;
// callers must know which endpoints are wrapped.
func decodeWrapped[T any](body []byte) (T, error) {
	var out T
	var env serviceResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return out, fmt.Errorf("gateway: decode envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, fmt.Errorf("gateway: response envelope has no data field")
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("gateway: decode envelope data: %w", err)
	}
	return out, nil
}

// decodePaged unmarshals a paged list response and validates that the
// backend's pagination metadata is internally consistent.
func decodePaged[T any](body []byte) (model.PagedResult[T], error) {
	page, err := decode[model.PagedResult[T]](body)
	if err != nil {
		return model.PagedResult[T]{}, err
	}
	if !pagination.Consistent(page.PageMeta) {
		return model.PagedResult[T]{}, fmt.Errorf(
			"gateway: inconsistent pagination metadata: page %d/%d, %d total",
			page.PageNumber, page.TotalPages, page.TotalCount,
		)
	}
	return page, nil
}
