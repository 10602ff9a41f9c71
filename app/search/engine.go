package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/metrics"
	"github.com/lysyi3m/curio/app/ratelimit"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/websearch"
	"github.com/pgvector/pgvector-go"
)

const defaultEmbedTimeout = 5 * time.Second

type Embedder interface {
	Configured() bool
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string) websearch.Response
}

// Reingester hands web results to background ingestion.
type Reingester interface {
	Reingest(ctx context.Context, subject string, items []scraper.ScrapedItem) error
}

type Engine struct {
	items        database.ItemRepository
	embedder     Embedder
	aiQueue      *ratelimit.Queue
	web          WebSearcher
	reingester   Reingester
	metrics      *metrics.Metrics
	embedTimeout time.Duration
}

func NewEngine(items database.ItemRepository, embedder Embedder, aiQueue *ratelimit.Queue, web WebSearcher, reingester Reingester, m *metrics.Metrics) *Engine {
	return &Engine{
		items:        items,
		embedder:     embedder,
		aiQueue:      aiQueue,
		web:          web,
		reingester:   reingester,
		metrics:      m,
		embedTimeout: defaultEmbedTimeout,
	}
}

// Search ranks catalog items for req. Missing embeddings degrade to keyword
// ranking; sparse results add a web tier. Only invalid requests and store
// failures are returned as errors.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	mode := ModeKeyword
	var sql string
	var args []any
	if vec, ok := e.embed(ctx, req.Query); ok {
		mode = ModeHybrid
		sql, args = Hybrid(req, vec)
	} else {
		sql, args = Keyword(req)
	}

	items, err := e.items.Search(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []database.ScoredItem{}
	}

	total := 0
	if len(items) > 0 {
		total = items[0].TotalCount
	}

	resp := &Response{
		Items:      items,
		Pagination: NewPagination(req.Page, req.Limit, total),
		Mode:       mode,
	}
	if req.Page == 1 && total < SparseThreshold {
		resp.Web = e.searchWeb(ctx, req.Query)
	}

	e.metrics.Search(string(mode))

	slog.Debug("Search completed",
		"query", req.Query,
		"mode", mode,
		"results", len(items),
		"total", total)

	return resp, nil
}

func (e *Engine) embed(ctx context.Context, query string) (pgvector.Vector, bool) {
	if e.embedder == nil || !e.embedder.Configured() {
		return pgvector.Vector{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	values, err := ratelimit.Submit(ctx, e.aiQueue, func(ctx context.Context) ([]float32, error) {
		return e.embedder.GenerateEmbedding(ctx, query)
	})
	if err != nil || len(values) == 0 {
		slog.Debug("Query embedding unavailable, using keyword ranking", "error", err)
		return pgvector.Vector{}, false
	}
	return pgvector.NewVector(values), true
}

func (e *Engine) searchWeb(ctx context.Context, query string) *WebTier {
	if e.web == nil {
		return nil
	}

	web := e.web.Search(ctx, query)
	tier := &WebTier{Results: web.Results, FromCache: web.FromCache}
	switch web.Error {
	case websearch.ErrNotConfigured, websearch.ErrQuotaExceeded:
		tier.Error = web.Error
	case websearch.ErrNetwork:
		slog.Warn("Web search failed", "query", query)
	}
	if tier.Results == nil {
		tier.Results = []websearch.Result{}
	}

	if len(web.Results) > 0 && e.reingester != nil {
		// One background ingestion per result.
		for _, item := range FromWebResults(web.Results) {
			if err := e.reingester.Reingest(ctx, "search:"+query, []scraper.ScrapedItem{item}); err != nil {
				slog.Warn("Failed to queue web result for ingestion", "query", query, "url", item.SourceURL, "error", err)
			}
		}
	}

	return tier
}

// FromWebResults converts web results into candidate items with a zero
// placeholder price. Results without a usable URL are dropped.
func FromWebResults(results []websearch.Result) []scraper.ScrapedItem {
	items := make([]scraper.ScrapedItem, 0, len(results))
	for _, r := range results {
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" {
			continue
		}

		var images []string
		if r.Thumbnail != "" {
			images = []string{r.Thumbnail}
		}

		sum := sha256.Sum256([]byte(r.URL))
		items = append(items, scraper.ScrapedItem{
			ExternalID:  hex.EncodeToString(sum[:12]),
			Title:       r.Title,
			Description: r.Snippet,
			Price:       0,
			Currency:    "USD",
			ImageURLs:   images,
			SourceURL:   r.URL,
			VendorName:  vendorFromHost(u.Hostname()),
		})
	}
	return items
}

func vendorFromHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
