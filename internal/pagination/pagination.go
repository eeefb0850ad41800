// Package pagination slices large result sets into fixed-size pages for the
// dashboard API.
package pagination

// DefaultPageSize is the page length used when the caller does not ask for
// a specific one.
const DefaultPageSize = 10

// Page is one window over a larger result set, with the metadata a client
// needs to render pager controls. Pages are 1-based.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Number     int  `json:"page"`
	Size       int  `json:"pageSize"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasPrev    bool `json:"hasPrev"`
	HasNext    bool `json:"hasNext"`
}

// Slice returns the requested page of items. Out-of-range page numbers clamp
// to the nearest valid page; an empty set yields page 1 of 1 with no items.
// The returned items are a copy.
func Slice[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}

	totalItems := len(items)
	totalPages := (totalItems + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if end > totalItems {
		end = totalItems
	}

	window := make([]T, 0, size)
	if start < totalItems {
		window = append(window, items[start:end]...)
	}

	return Page[T]{
		Items:      window,
		Number:     page,
		Size:       size,
		TotalItems: totalItems,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}
