// Package scraper defines the vendor adapter contract, the registry that
// resolves adapters by vendor name, and the concrete marketplace adapters.
package scraper

import (
	"context"
	"errors"
	"fmt"
)

var ErrMissingCredentials = errors.New("missing vendor credentials")

// ScrapedItem is a normalised candidate listing. Price is in minor units.
// The JSON names are the wire format accepted by the ingest endpoint.
type ScrapedItem struct {
	ExternalID  string   `json:"externalId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	ImageURLs   []string `json:"imageUrls"`
	SourceURL   string   `json:"sourceUrl"`
	VendorName  string   `json:"vendorName"`
}

// SourceItemID is the idempotency key of the item across ingestion paths.
func (s ScrapedItem) SourceItemID() string {
	return s.VendorName + ":" + s.ExternalID
}

// Config is one page request. Only SearchTerms[0] paginates: an empty Cursor
// fetches the first page of every term, a non-empty Cursor fetches the next
// page of the first term only.
type Config struct {
	SearchTerms []string
	BaseURL     string
	VendorName  string
	Options     map[string]any
	Cursor      string
}

type Result struct {
	Items      []ScrapedItem
	NextCursor string
}

type Adapter interface {
	FetchPage(ctx context.Context, cfg Config) (*Result, error)
}

type AdapterFunc func(ctx context.Context, cfg Config) (*Result, error)

func (f AdapterFunc) FetchPage(ctx context.Context, cfg Config) (*Result, error) {
	return f(ctx, cfg)
}

// StatusError reports a non-2xx vendor response.
type StatusError struct {
	Vendor     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Vendor, e.StatusCode)
}
