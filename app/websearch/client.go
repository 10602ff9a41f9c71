package websearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/curio/app/enrich"
	"github.com/lysyi3m/curio/app/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

const (
	DefaultModel      = "gemini-3-flash-preview"
	DefaultRetryDelay = 2 * time.Second

	promptTemplate = `Search for "%s" currently for sale online. Return ONLY a JSON array (no markdown, no explanation) where each element has: {"title": "product name", "price": "$XX" or null, "description": "one sentence about the item"}. Focus on actual product listings from marketplaces like Etsy, eBay, 1stDibs, Chairish, etc. Return 10-15 results.`
)

type Generator interface {
	Configured() bool
	GroundedSearch(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error)
}

type Options struct {
	Model      string
	RetryDelay time.Duration
}

type Client struct {
	gen        Generator
	images     *ImageSearch
	cache      Cache
	model      string
	retryDelay time.Duration
	metrics    *metrics.Metrics
}

func New(gen Generator, images *ImageSearch, cache Cache, opts Options, m *metrics.Metrics) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL, DefaultCacheSize)
	}
	return &Client{
		gen:        gen,
		images:     images,
		cache:      cache,
		model:      opts.Model,
		retryDelay: opts.RetryDelay,
		metrics:    m,
	}
}

// Search looks query up on the web. Failures are reported in
// Response.Error, never as a Go error, and are not cached.
func (c *Client) Search(ctx context.Context, query string) Response {
	key := NormalizeQuery(query)
	if key == "" {
		return Response{Results: []Result{}}
	}

	if results, ok := c.cache.Get(ctx, key); ok {
		c.metrics.WebSearch("cache_hit")
		return Response{Results: results, FromCache: true}
	}

	if c.gen == nil || !c.gen.Configured() {
		c.metrics.WebSearch(string(ErrNotConfigured))
		return Response{Results: []Result{}, Error: ErrNotConfigured}
	}

	start := time.Now()
	results, kind := c.lookup(ctx, strings.TrimSpace(query))
	if kind != "" {
		c.metrics.WebSearch(string(kind))
		return Response{Results: []Result{}, Error: kind}
	}

	c.cache.Set(ctx, key, results)
	c.metrics.WebSearch("ok")

	slog.Info("Web search completed",
		"query", key,
		"results", len(results),
		"duration", time.Since(start))

	return Response{Results: results}
}

func (c *Client) lookup(ctx context.Context, query string) ([]Result, ErrorKind) {
	var (
		resp   *genai.GenerateContentResponse
		images []imageHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp, err = c.generate(gctx, query)
		return err
	})
	g.Go(func() error {
		images = c.images.Find(gctx, query)
		return nil
	})

	if err := g.Wait(); err != nil {
		if isRateLimited(err) {
			slog.Warn("Web search quota exceeded", "query", query)
			return nil, ErrQuotaExceeded
		}
		slog.Error("Web search failed", "query", query, "error", err)
		return nil, ErrNetwork
	}

	if resp == nil || len(resp.Candidates) == 0 {
		slog.Error("Web search returned no candidates", "query", query)
		return nil, ErrNetwork
	}

	return buildResults(resp, images), ""
}

// generate runs the grounded query, retrying once after a rate limit.
func (c *Client) generate(ctx context.Context, query string) (*genai.GenerateContentResponse, error) {
	prompt := fmt.Sprintf(promptTemplate, query)

	resp, err := c.gen.GroundedSearch(ctx, c.model, prompt)
	if err == nil || !isRateLimited(err) {
		return resp, err
	}

	slog.Debug("Web search rate limited, retrying", "delay", c.retryDelay)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.retryDelay):
	}

	return c.gen.GroundedSearch(ctx, c.model, prompt)
}

func isRateLimited(err error) bool {
	var gerr *enrich.Error
	return errors.As(err, &gerr) && gerr.StatusCode == http.StatusTooManyRequests
}
