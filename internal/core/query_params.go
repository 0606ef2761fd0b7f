// internal/core/query_params.go
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default and limit constants for pagination
const (
	DefaultLimit = 500
	MaxLimit     = 5000
	DefaultOrder = "asc"
)

// Accepted values for table view sorting and filtering.
var (
	SortFields   = map[string]bool{"name": true, "rows": true, "size": true}
	FilterValues = map[string]bool{"all": true, "new": true, "modified": true, "existing": true}
)

// ListQueryOptions holds parsed query parameters for table inventory views
type ListQueryOptions struct {
	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string
	SortOrder string // "asc" or "desc"

	// Filtering
	Filter string
	Search string
}

// ParseListQueryOptions extracts pagination, sorting and filter options from query parameters.
// Returns the parsed options and any validation error.
func ParseListQueryOptions(queryParams url.Values) (*ListQueryOptions, error) {
	opts := &ListQueryOptions{
		Limit:     DefaultLimit,
		Offset:    0,
		SortBy:    "",
		SortOrder: DefaultOrder,
	}

	if limitStr := queryParams.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid 'limit' parameter: must be an integer")
		}
		if limit < 1 {
			return nil, fmt.Errorf("invalid 'limit' parameter: must be at least 1")
		}
		if limit > MaxLimit {
			return nil, fmt.Errorf("invalid 'limit' parameter: maximum is %d", MaxLimit)
		}
		opts.Limit = limit
	}

	if offsetStr := queryParams.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, fmt.Errorf("invalid 'offset' parameter: must be an integer")
		}
		if offset < 0 {
			return nil, fmt.Errorf("invalid 'offset' parameter: must be non-negative")
		}
		opts.Offset = offset
	}

	if sortBy := strings.ToLower(queryParams.Get("sort")); sortBy != "" {
		if !SortFields[sortBy] {
			return nil, fmt.Errorf("invalid 'sort' parameter: '%s' is not one of name, rows, size", sortBy)
		}
		opts.SortBy = sortBy
	}

	if order := queryParams.Get("order"); order != "" {
		lowerOrder := strings.ToLower(order)
		if lowerOrder != "asc" && lowerOrder != "desc" {
			return nil, fmt.Errorf("invalid 'order' parameter: must be 'asc' or 'desc'")
		}
		opts.SortOrder = lowerOrder
	}

	if filter := strings.ToLower(queryParams.Get("filter")); filter != "" {
		if !FilterValues[filter] {
			return nil, fmt.Errorf("invalid 'filter' parameter: '%s'", filter)
		}
		opts.Filter = filter
	}

	opts.Search = strings.TrimSpace(queryParams.Get("q"))

	return opts, nil
}
