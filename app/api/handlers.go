package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/curio/app/crawl"
	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/feed"
	"github.com/lysyi3m/curio/app/search"
)

const (
	maxIngestBatch = 20
	feedItems      = 50
)

func NewHandler(d Deps) *Handler {
	generator := d.Generator
	if generator == nil {
		generator = feed.NewGenerator()
	}
	return &Handler{
		items:       d.Items,
		crawlRepo:   d.Crawl,
		ingester:    d.Ingester,
		pages:       d.Pages,
		triggerer:   d.Triggerer,
		searcher:    d.Searcher,
		vendors:     d.Vendors,
		configCache: d.ConfigCache,
		generator:   generator,
		channel:     d.Channel,
		gatherer:    d.Gatherer,
	}
}

func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Items == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items array required"})
		return
	}

	items := *req.Items
	if len(items) > maxIngestBatch {
		items = items[:maxIngestBatch]
	}

	counts := h.ingester.ProcessBatch(c.Request.Context(), items)

	slog.Info("Ingest batch processed",
		"received", len(*req.Items),
		"created", counts.Created,
		"skipped", counts.Skipped,
		"errors", counts.Errors)

	c.JSON(http.StatusOK, counts)
}

func (h *Handler) ProcessCrawlPage(c *gin.Context) {
	var req crawl.PageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RunID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId required"})
		return
	}

	result, err := h.pages.ProcessPage(c.Request.Context(), req)
	if err != nil {
		status := crawlErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Crawl page failed", "run", req.RunID, "error", err)
			c.JSON(status, gin.H{"error": "crawl page failed", "details": err.Error()})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := pageResponse{
		Status:  result.Status,
		Created: result.Created,
		Skipped: result.Skipped,
	}
	if result.Status == crawl.StatusProcessing {
		resp.Page = result.Page
		resp.NextCursor = result.NextCursor
	} else {
		total := result.Found
		resp.TotalItems = &total
	}

	c.JSON(http.StatusOK, resp)
}

func crawlErrorStatus(err error) int {
	switch {
	case errors.Is(err, crawl.ErrRunNotFound), errors.Is(err, crawl.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, crawl.ErrRunFinished):
		return http.StatusConflict
	case errors.Is(err, crawl.ErrNoAdapter):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) TriggerCrawl(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SourceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sourceId required"})
		return
	}

	runID, err := h.triggerer.TriggerSource(c.Request.Context(), req.SourceID)
	if errors.Is(err, crawl.ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to trigger crawl", "source", req.SourceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runId": runID, "status": "triggered"})
}

func (h *Handler) RunCrawl(c *gin.Context) {
	runIDs, err := h.triggerer.TriggerAll(c.Request.Context())
	if err != nil {
		slog.Error("Failed to start crawl runs", "started", len(runIDs), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "runIds": runIDs})
		return
	}

	if len(runIDs) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no active sources", "runIds": []string{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("started %d crawl runs", len(runIDs)),
		"runIds":  runIDs,
	})
}

func (h *Handler) ListRuns(c *gin.Context) {
	page, limit := pageParams(c)

	runs, total, err := h.crawlRepo.ListRuns(c.Request.Context(), c.Query("sourceId"), limit, (page-1)*limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if runs == nil {
		runs = []database.CrawlRun{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":       runs,
		"pagination": search.NewPagination(page, limit, total),
	})
}

func (h *Handler) ListSources(c *gin.Context) {
	list, err := h.crawlRepo.ListSources(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if list == nil {
		list = []database.CrawlSource{}
	}

	vendors := []string{}
	if h.vendors != nil {
		vendors = h.vendors.Vendors()
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": list,
		"total":   len(list),
		"vendors": vendors,
	})
}

func (h *Handler) Search(c *gin.Context) {
	req, err := searchRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search params", "details": err.Error()})
		return
	}

	resp, err := h.searcher.Search(c.Request.Context(), req)
	if errors.Is(err, search.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search params", "details": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Search failed", "query", req.Query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func searchRequest(c *gin.Context) (search.Request, error) {
	req := search.Request{
		Query:  c.Query("query"),
		SortBy: search.SortBy(c.Query("sortBy")),
		Filters: search.Filters{
			Type:   database.ItemType(c.Query("type")),
			Vendor: c.Query("vendor"),
		},
	}

	var err error
	if req.Page, err = intParam(c, "page"); err != nil {
		return req, err
	}
	if req.Limit, err = intParam(c, "limit"); err != nil {
		return req, err
	}
	if req.Filters.PriceMin, err = priceParam(c, "priceMin"); err != nil {
		return req, err
	}
	if req.Filters.PriceMax, err = priceParam(c, "priceMax"); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func priceParam(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer in minor units", name)
	}
	return &v, nil
}

// pageParams reads page and limit leniently: bad values fall back to
// defaults and limit is clamped to 1..50.
func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = search.DefaultLimit
	}
	return page, min(limit, search.MaxLimit)
}

func itemTypeParam(c *gin.Context) database.ItemType {
	switch t := database.ItemType(strings.ToUpper(c.Query("type"))); t {
	case database.ItemTypeDirect, database.ItemTypeAggregated:
		return t
	}
	return ""
}

func (h *Handler) ListListings(c *gin.Context) {
	page, limit := pageParams(c)

	items, total, err := h.items.ListAvailable(c.Request.Context(), itemTypeParam(c), limit, (page-1)*limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if items == nil {
		items = []database.CatalogItem{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      items,
		"pagination": search.NewPagination(page, limit, total),
	})
}

func (h *Handler) GetCatalogFeed(c *gin.Context) {
	items, _, err := h.items.ListAvailable(c.Request.Context(), itemTypeParam(c), feedItems, 0)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(h.channel, items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if h.items != nil {
		if count, err := h.items.GetItemCount(c.Request.Context()); err == nil {
			health["items"] = count
		} else {
			slog.Warn("Health check could not count items", "error", err)
			health["status"] = "degraded"
		}
	}

	if h.configCache != nil {
		health["loaded_sources"] = h.configCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, health)
}
