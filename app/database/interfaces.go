package database

import (
	"context"
	"time"
)

type ItemRepository interface {
	FindIDBySourceItemID(ctx context.Context, sourceItemID string) (*string, error)
	// InsertAggregated reports false when a row with the same source item id
	// already exists; the insert is then a no-op.
	InsertAggregated(ctx context.Context, item *CatalogItem) (bool, error)

	Search(ctx context.Context, query string, args []any) ([]ScoredItem, error)
	ListAvailable(ctx context.Context, itemType ItemType, limit, offset int) ([]CatalogItem, int, error)
	GetItemCount(ctx context.Context) (int, error)
}

type CrawlRepository interface {
	ListSources(ctx context.Context) ([]CrawlSource, error)
	ListActiveSources(ctx context.Context) ([]CrawlSource, error)
	GetSource(ctx context.Context, id string) (*CrawlSource, error)
	UpsertSource(ctx context.Context, source *CrawlSource) (string, error)
	TouchLastCrawl(ctx context.Context, sourceID string, at time.Time) error

	CreateRun(ctx context.Context, sourceID string) (*CrawlRun, error)
	GetRun(ctx context.Context, id string) (*CrawlRun, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	IncrementCounters(ctx context.Context, id string, found, created, skipped int) error
	CompleteRun(ctx context.Context, id string) error
	FailRun(ctx context.Context, id string, message string) error
	ListRuns(ctx context.Context, sourceID string, limit, offset int) ([]CrawlRun, int, error)
}
