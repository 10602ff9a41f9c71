// Package ingest turns scraped candidate items into enriched, deduplicated
// catalog records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/enrich"
	"github.com/lysyi3m/curio/app/metrics"
	"github.com/lysyi3m/curio/app/ratelimit"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/slug"
	"github.com/pgvector/pgvector-go"
)

type Outcome string

const (
	Created Outcome = "created"
	Skipped Outcome = "skipped"
	Failed  Outcome = "error"
)

type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

func (c *Counts) Add(o Outcome) {
	switch o {
	case Created:
		c.Created++
	case Skipped:
		c.Skipped++
	default:
		c.Errors++
	}
}

type Enricher interface {
	AnalyzeImage(ctx context.Context, imageURL string) (*enrich.ImageAnalysis, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

var errInvalidItem = errors.New("invalid scraped item")

type Processor struct {
	items    database.ItemRepository
	enricher Enricher
	aiQueue  *ratelimit.Queue
	sellerID string
	metrics  *metrics.Metrics
}

func NewProcessor(items database.ItemRepository, enricher Enricher, aiQueue *ratelimit.Queue, sellerID string, m *metrics.Metrics) *Processor {
	return &Processor{
		items:    items,
		enricher: enricher,
		aiQueue:  aiQueue,
		sellerID: sellerID,
		metrics:  m,
	}
}

// Process stores item as an AGGREGATED catalog record. It never returns an
// error: failures are logged and reported as Failed.
func (p *Processor) Process(ctx context.Context, item scraper.ScrapedItem) (outcome Outcome) {
	start := time.Now()
	sourceItemID := item.SourceItemID()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Item processing panicked", "source_item_id", sourceItemID, "panic", r)
			outcome = Failed
		}
		p.metrics.IngestOutcome(string(outcome))
	}()

	outcome, err := p.process(ctx, item, sourceItemID)
	if err != nil {
		slog.Error("Failed to process item", "source_item_id", sourceItemID, "error", err)
		return Failed
	}

	slog.Debug("Item processed",
		"source_item_id", sourceItemID,
		"outcome", outcome,
		"duration", time.Since(start))

	return outcome
}

func (p *Processor) process(ctx context.Context, item scraper.ScrapedItem, sourceItemID string) (Outcome, error) {
	if err := validate(item); err != nil {
		return Failed, err
	}

	existing, err := p.items.FindIDBySourceItemID(ctx, sourceItemID)
	if err != nil {
		return Failed, err
	}
	if existing != nil {
		return Skipped, nil
	}

	description, tags := p.describe(ctx, item)

	embedding, err := ratelimit.Submit(ctx, p.aiQueue, func(ctx context.Context) ([]float32, error) {
		return p.enricher.GenerateEmbedding(ctx, EmbeddingText(item.Title, description, tags))
	})
	if err != nil {
		return Failed, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(embedding) == 0 {
		return Failed, errors.New("empty embedding")
	}

	vec := pgvector.NewVector(embedding)
	sourceURL := item.SourceURL
	vendor := item.VendorName
	record := &database.CatalogItem{
		Slug:         slug.Generate(item.Title),
		Title:        item.Title,
		Description:  description,
		Price:        item.Price,
		Currency:     currency(item.Currency),
		Images:       nonNil(item.ImageURLs),
		Tags:         nonNil(tags),
		Embedding:    &vec,
		SourceURL:    &sourceURL,
		VendorName:   &vendor,
		SourceItemID: &sourceItemID,
		SellerID:     p.sellerID,
	}

	inserted, err := p.items.InsertAggregated(ctx, record)
	if err != nil {
		return Failed, err
	}
	if !inserted {
		// Another ingestion path stored the same source item first.
		return Skipped, nil
	}

	return Created, nil
}

// describe returns the description and tags for item, from image analysis
// when the item has an image and the analysis succeeds.
func (p *Processor) describe(ctx context.Context, item scraper.ScrapedItem) (string, []string) {
	if len(item.ImageURLs) == 0 || item.ImageURLs[0] == "" {
		return fallback(item)
	}

	analysis, err := ratelimit.Submit(ctx, p.aiQueue, func(ctx context.Context) (*enrich.ImageAnalysis, error) {
		return p.enricher.AnalyzeImage(ctx, item.ImageURLs[0])
	})
	if err != nil || analysis == nil {
		slog.Debug("Image analysis failed, using fallback", "source_item_id", item.SourceItemID(), "error", err)
		return fallback(item)
	}

	return analysis.Description, analysis.Tags
}

// ProcessBatch processes items one after another and tallies the outcomes.
func (p *Processor) ProcessBatch(ctx context.Context, items []scraper.ScrapedItem) Counts {
	var counts Counts
	for _, item := range items {
		counts.Add(p.Process(ctx, item))
	}
	return counts
}

func validate(item scraper.ScrapedItem) error {
	switch {
	case strings.TrimSpace(item.ExternalID) == "":
		return fmt.Errorf("%w: external id is required", errInvalidItem)
	case strings.TrimSpace(item.VendorName) == "":
		return fmt.Errorf("%w: vendor name is required", errInvalidItem)
	case strings.TrimSpace(item.Title) == "":
		return fmt.Errorf("%w: title is required", errInvalidItem)
	case strings.TrimSpace(item.SourceURL) == "":
		return fmt.Errorf("%w: source URL is required", errInvalidItem)
	case item.Price < 0:
		return fmt.Errorf("%w: negative price", errInvalidItem)
	}
	return nil
}

func fallback(item scraper.ScrapedItem) (string, []string) {
	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = item.Title
	}
	return description, strings.Fields(strings.ToLower(item.Title))
}

// EmbeddingText is the text the ranking embedding of an item is computed from.
func EmbeddingText(title, description string, tags []string) string {
	parts := append([]string{title, description}, tags...)
	return strings.Join(parts, " ")
}

func currency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "USD"
	}
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
