// Package search serves ranked results over the catalog: hybrid vector and
// keyword ranking, a keyword-only fallback, and a live web tier when local
// results are sparse.
package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/websearch"
)

const (
	DefaultLimit   = 20
	MaxLimit       = 50
	MaxQueryLength = 500

	// SparseThreshold is the local match count below which the web is searched.
	SparseThreshold = 5
)

var ErrInvalidRequest = errors.New("invalid search request")

type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortNewest    SortBy = "newest"
	SortPriceAsc  SortBy = "price_asc"
	SortPriceDesc SortBy = "price_desc"
)

type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeKeyword Mode = "keyword"
)

type Filters struct {
	Type     database.ItemType
	PriceMin *int64
	PriceMax *int64
	Vendor   string
}

type Request struct {
	Query   string
	Filters Filters
	SortBy  SortBy
	Page    int
	Limit   int
}

// Normalize applies defaults and validates the request in place.
func (r *Request) Normalize() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if len([]rune(r.Query)) > MaxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, MaxQueryLength)
	}

	if r.Page == 0 {
		r.Page = 1
	}
	if r.Page < 1 {
		return fmt.Errorf("%w: page must be positive", ErrInvalidRequest)
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit < 1 || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, MaxLimit)
	}

	switch r.SortBy {
	case "":
		r.SortBy = SortRelevance
	case SortRelevance, SortNewest, SortPriceAsc, SortPriceDesc:
	default:
		return fmt.Errorf("%w: unknown sort %q", ErrInvalidRequest, r.SortBy)
	}

	switch strings.ToUpper(string(r.Filters.Type)) {
	case "", "ALL":
		r.Filters.Type = ""
	case string(database.ItemTypeDirect), string(database.ItemTypeAggregated):
		r.Filters.Type = database.ItemType(strings.ToUpper(string(r.Filters.Type)))
	default:
		return fmt.Errorf("%w: unknown item type %q", ErrInvalidRequest, r.Filters.Type)
	}

	f := r.Filters
	if (f.PriceMin != nil && *f.PriceMin < 0) || (f.PriceMax != nil && *f.PriceMax < 0) {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidRequest)
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return fmt.Errorf("%w: priceMin exceeds priceMax", ErrInvalidRequest)
	}
	r.Filters.Vendor = strings.TrimSpace(f.Vendor)

	return nil
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// WebTier holds live web results, kept apart from catalog items.
type WebTier struct {
	Results   []websearch.Result  `json:"results"`
	FromCache bool                `json:"fromCache"`
	Error     websearch.ErrorKind `json:"error,omitempty"`
}

type Response struct {
	Items      []database.ScoredItem `json:"items"`
	Pagination Pagination            `json:"pagination"`
	Mode       Mode                  `json:"mode"`
	Web        *WebTier              `json:"web,omitempty"`
}
