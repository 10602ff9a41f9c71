package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

type ItemType string

const (
	ItemTypeDirect     ItemType = "DIRECT"
	ItemTypeAggregated ItemType = "AGGREGATED"
)

type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "AVAILABLE"
	ItemStatusSold      ItemStatus = "SOLD"
	ItemStatusRemoved   ItemStatus = "REMOVED"
)

// CatalogItem is a sellable record, first-party or aggregated.
// Price is in minor currency units.
type CatalogItem struct {
	ID           string           `db:"id" json:"id"`
	Slug         string           `db:"slug" json:"slug"`
	Title        string           `db:"title" json:"title"`
	Description  string           `db:"description" json:"description"`
	Price        int64            `db:"price" json:"price"`
	Currency     string           `db:"currency" json:"currency"`
	Type         ItemType         `db:"type" json:"type"`
	Status       ItemStatus       `db:"status" json:"status"`
	Images       pq.StringArray   `db:"images" json:"images"`
	Tags         pq.StringArray   `db:"tags" json:"tags"`
	Embedding    *pgvector.Vector `db:"embedding" json:"-"`
	SourceURL    *string          `db:"source_url" json:"sourceUrl,omitempty"`
	VendorName   *string          `db:"vendor_name" json:"vendorName,omitempty"`
	SourceItemID *string          `db:"source_item_id" json:"-"`
	SellerID     string           `db:"seller_id" json:"sellerId"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}

// ScoredItem is a search hit. TotalCount is the window count of all matches
// and is repeated on every row.
type ScoredItem struct {
	CatalogItem
	Score      float64 `db:"score" json:"score"`
	TotalCount int     `db:"total_count" json:"-"`
}

type SourceStatus string

const (
	SourceStatusActive SourceStatus = "ACTIVE"
	SourceStatusPaused SourceStatus = "PAUSED"
	SourceStatusError  SourceStatus = "ERROR"
)

type CrawlSource struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	VendorName  string         `db:"vendor_name" json:"vendorName"`
	BaseURL     string         `db:"base_url" json:"baseUrl"`
	SearchTerms pq.StringArray `db:"search_terms" json:"searchTerms"`
	Strategy    string         `db:"strategy" json:"strategy"`
	Config      types.JSONText `db:"config" json:"config"`
	Status      SourceStatus   `db:"status" json:"status"`
	LastCrawlAt *time.Time     `db:"last_crawl_at" json:"lastCrawlAt"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// Options decodes the vendor config blob.
func (s *CrawlSource) Options() (map[string]any, error) {
	opts := map[string]any{}
	if len(s.Config) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(s.Config, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode config for source %s: %w", s.Name, err)
	}
	return opts, nil
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type CrawlRun struct {
	ID           string     `db:"id" json:"id"`
	SourceID     string     `db:"source_id" json:"sourceId"`
	Status       RunStatus  `db:"status" json:"status"`
	ItemsFound   int        `db:"items_found" json:"itemsFound"`
	ItemsCreated int        `db:"items_created" json:"itemsCreated"`
	ItemsSkipped int        `db:"items_skipped" json:"itemsSkipped"`
	ErrorMessage *string    `db:"error_message" json:"errorMessage,omitempty"`
	StartedAt    *time.Time `db:"started_at" json:"startedAt"`
	CompletedAt  *time.Time `db:"completed_at" json:"completedAt"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}
