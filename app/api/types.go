package api

import (
	"context"

	"github.com/lysyi3m/curio/app/crawl"
	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/feed"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/search"
	"github.com/lysyi3m/curio/app/sources"
	"github.com/prometheus/client_golang/prometheus"
)

type GeneratorInterface interface {
	Run(ch feed.Channel, items []database.CatalogItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Ingester interface {
	ProcessBatch(ctx context.Context, items []scraper.ScrapedItem) ingest.Counts
}

type PageProcessor interface {
	ProcessPage(ctx context.Context, req crawl.PageRequest) (*crawl.PageResult, error)
}

type Triggerer interface {
	TriggerAll(ctx context.Context) ([]string, error)
	TriggerSource(ctx context.Context, sourceID string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

type VendorLister interface {
	Vendors() []string
}

// Deps are the collaborators of Handler. Nil optional fields disable the
// routes that need them.
type Deps struct {
	Items       database.ItemRepository
	Crawl       database.CrawlRepository
	Ingester    Ingester
	Pages       PageProcessor
	Triggerer   Triggerer
	Searcher    Searcher
	Vendors     VendorLister
	ConfigCache *sources.ConfigCache
	Generator   GeneratorInterface
	Channel     feed.Channel
	Gatherer    prometheus.Gatherer
}

type Handler struct {
	items       database.ItemRepository
	crawlRepo   database.CrawlRepository
	ingester    Ingester
	pages       PageProcessor
	triggerer   Triggerer
	searcher    Searcher
	vendors     VendorLister
	configCache *sources.ConfigCache
	generator   GeneratorInterface
	channel     feed.Channel
	gatherer    prometheus.Gatherer
}

type ingestRequest struct {
	Items *[]scraper.ScrapedItem `json:"items"`
}

type triggerRequest struct {
	SourceID string `json:"sourceId"`
}

type pageResponse struct {
	Status     string `json:"status"`
	Page       string `json:"page,omitempty"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	NextCursor string `json:"nextCursor,omitempty"`
	TotalItems *int   `json:"totalItems,omitempty"`
}
