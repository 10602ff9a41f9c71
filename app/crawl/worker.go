package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/metrics"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/sources"
)

type Worker struct {
	repo       database.CrawlRepository
	adapters   AdapterResolver
	processor  ItemProcessor
	filterer   *sources.Filterer
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewWorker(repo database.CrawlRepository, adapters AdapterResolver, processor ItemProcessor, dispatcher Dispatcher, m *metrics.Metrics) *Worker {
	return &Worker{
		repo:       repo,
		adapters:   adapters,
		processor:  processor,
		filterer:   sources.NewFilterer(),
		dispatcher: dispatcher,
		metrics:    m,
		now:        time.Now,
	}
}

// ProcessPage fetches and ingests one page of a run. A run or source that no
// longer exists yields ErrRunNotFound or ErrSourceNotFound and a finished run
// yields ErrRunFinished; none of these touch the run. Any other failure marks
// the run FAILED before it is returned.
func (w *Worker) ProcessPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	start := time.Now()

	run, err := w.repo.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, w.fail(ctx, req.RunID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, req.RunID)
	}
	if run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID, run.Status)
	}

	source, err := w.repo.GetSource(ctx, run.SourceID)
	if err != nil {
		return nil, w.fail(ctx, run.ID, err)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, run.SourceID)
	}

	result, err := w.processPage(ctx, run, source, req.Cursor)
	if err != nil {
		if errors.Is(err, ErrNoAdapter) {
			return nil, err
		}
		return nil, w.fail(ctx, run.ID, err)
	}

	w.metrics.CrawlPage(result.Status)
	slog.Info("Crawl page processed",
		"run", run.ID,
		"source", source.Name,
		"page", result.Page,
		"status", result.Status,
		"found", result.Found,
		"created", result.Created,
		"skipped", result.Skipped,
		"duration", time.Since(start))

	return result, nil
}

func (w *Worker) processPage(ctx context.Context, run *database.CrawlRun, source *database.CrawlSource, cursor string) (*PageResult, error) {
	if run.Status == database.RunStatusPending {
		if _, err := w.repo.MarkRunning(ctx, run.ID); err != nil {
			return nil, err
		}
	}

	adapter, ok := w.adapters.Lookup(source.VendorName)
	if !ok {
		msg := fmt.Sprintf("No adapter for vendor: %s", source.VendorName)
		if err := w.repo.FailRun(context.WithoutCancel(ctx), run.ID, msg); err != nil {
			slog.Error("Failed to mark crawl run failed", "run", run.ID, "error", err)
		}
		w.metrics.CrawlPage("failed")
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, source.VendorName)
	}

	opts, err := source.Options()
	if err != nil {
		return nil, err
	}
	filters, err := sources.FiltersFromOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.Name, err)
	}

	page, err := adapter.FetchPage(ctx, scraper.Config{
		SearchTerms: source.SearchTerms,
		BaseURL:     source.BaseURL,
		VendorName:  source.VendorName,
		Options:     opts,
		Cursor:      cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page from %s: %w", source.VendorName, err)
	}

	kept, filtered := w.filterer.Run(page.Items, filters)

	counts := ingest.Counts{Skipped: filtered}
	for _, item := range kept {
		counts.Add(w.processor.Process(ctx, item))
	}

	if err := w.repo.IncrementCounters(ctx, run.ID, len(page.Items), counts.Created, counts.Skipped); err != nil {
		return nil, err
	}

	result := &PageResult{
		Page:    cursor,
		Found:   len(page.Items),
		Created: counts.Created,
		Skipped: counts.Skipped,
	}
	if result.Page == "" {
		result.Page = "0"
	}

	if page.NextCursor != "" {
		result.Status = StatusProcessing
		result.NextCursor = page.NextCursor

		next := PageRequest{RunID: run.ID, Cursor: page.NextCursor}
		if err := w.dispatcher.Dispatch(ctx, next); err != nil {
			slog.Error("Failed to dispatch next crawl page", "run", run.ID, "cursor", page.NextCursor, "error", err)
		}
		return result, nil
	}

	if err := w.repo.CompleteRun(ctx, run.ID); err != nil {
		return nil, err
	}
	if err := w.repo.TouchLastCrawl(ctx, source.ID, w.now()); err != nil {
		return nil, err
	}

	result.Status = StatusCompleted
	return result, nil
}

// fail marks the run FAILED on a best-effort basis and returns cause.
func (w *Worker) fail(ctx context.Context, runID string, cause error) error {
	w.metrics.CrawlPage("failed")
	if runID == "" {
		return cause
	}
	if err := w.repo.FailRun(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		slog.Error("Failed to mark crawl run failed", "run", runID, "error", err)
	}
	slog.Error("Crawl page failed", "run", runID, "error", cause)
	return cause
}
