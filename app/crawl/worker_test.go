package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerFixture struct {
	repo       *memoryRepo
	adapter    *pagedAdapter
	processor  *outcomeProcessor
	dispatcher *recordingDispatcher
	worker     *Worker
	run        *database.CrawlRun
}

func newWorkerFixture(t *testing.T, config string) *workerFixture {
	t.Helper()
	f := &workerFixture{
		repo:       newMemoryRepo(),
		adapter:    &pagedAdapter{pages: map[string]*scraper.Result{}},
		processor:  &outcomeProcessor{outcomes: map[string]ingest.Outcome{}},
		dispatcher: &recordingDispatcher{},
	}
	if config == "" {
		config = "{}"
	}
	f.repo.addSource(database.CrawlSource{
		ID:          "src-1",
		Name:        "etsy-lamps",
		VendorName:  "etsy",
		BaseURL:     "https://openapi.etsy.com",
		SearchTerms: []string{"vintage lamp", "brass sconce"},
		Strategy:    "api",
		Config:      []byte(config),
	})
	f.worker = NewWorker(f.repo, staticResolver{"etsy": f.adapter}, f.processor, f.dispatcher, nil)

	run, err := f.repo.CreateRun(context.Background(), "src-1")
	require.NoError(t, err)
	f.run = run
	return f
}

func TestProcessPageEmptyPageWithCursorChains(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.adapter.pages[""] = &scraper.Result{Items: []scraper.ScrapedItem{}, NextCursor: "20"}

	res, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, res.Status)
	assert.Equal(t, "0", res.Page)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "20", res.NextCursor)

	require.Len(t, f.dispatcher.requests, 1)
	assert.Equal(t, PageRequest{RunID: f.run.ID, Cursor: "20"}, f.dispatcher.requests[0])

	run := f.repo.run(f.run.ID)
	assert.Equal(t, database.RunStatusRunning, run.Status)
	assert.NotNil(t, run.StartedAt)
	assert.Nil(t, f.repo.source("src-1").LastCrawlAt)
}

func TestProcessPageLastPageCompletesRun(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.processor.outcomes["2"] = ingest.Skipped
	f.processor.outcomes["4"] = ingest.Failed
	f.adapter.pages[""] = &scraper.Result{Items: scrapedItems(5)}

	res, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 5, res.Found)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.dispatcher.requests)
	assert.Len(t, f.processor.processed, 5)

	run := f.repo.run(f.run.ID)
	assert.Equal(t, database.RunStatusCompleted, run.Status)
	assert.Equal(t, 5, run.ItemsFound)
	assert.Equal(t, 3, run.ItemsCreated)
	assert.Equal(t, 1, run.ItemsSkipped)
	assert.NotNil(t, run.CompletedAt)
	assert.NotNil(t, f.repo.source("src-1").LastCrawlAt)
}

func TestProcessPageCountersAccumulateAcrossPages(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.adapter.pages[""] = &scraper.Result{Items: scrapedItems(3), NextCursor: "20"}
	f.adapter.pages["20"] = &scraper.Result{Items: scrapedItems(2)}

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.NoError(t, err)
	first := f.repo.run(f.run.ID)

	_, err = f.worker.ProcessPage(context.Background(), f.dispatcher.requests[0])
	require.NoError(t, err)
	second := f.repo.run(f.run.ID)

	assert.GreaterOrEqual(t, second.ItemsFound, first.ItemsFound)
	assert.GreaterOrEqual(t, second.ItemsCreated, first.ItemsCreated)
	assert.Equal(t, 5, second.ItemsFound)
	assert.Equal(t, database.RunStatusCompleted, second.Status)

	require.Len(t, f.adapter.configs, 2)
	assert.Equal(t, "20", f.adapter.configs[1].Cursor)
	assert.Equal(t, []string{"vintage lamp", "brass sconce"}, f.adapter.configs[1].SearchTerms)
}

func TestProcessPageAppliesSourceFilters(t *testing.T) {
	f := newWorkerFixture(t, `{"filters":[{"field":"title","excludes":["item 1"]}],"taxonomy_id":891}`)
	f.adapter.pages[""] = &scraper.Result{Items: scrapedItems(3)}

	res, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"2", "3"}, f.processor.processed)
	assert.Equal(t, float64(891), f.adapter.configs[0].Options["taxonomy_id"])
}

func TestProcessPageUnknownRun(t *testing.T) {
	f := newWorkerFixture(t, "")

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: "missing"})
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Equal(t, 0, f.repo.failRunCalled)
}

func TestProcessPageMissingSource(t *testing.T) {
	f := newWorkerFixture(t, "")
	run, err := f.repo.CreateRun(context.Background(), "src-gone")
	require.NoError(t, err)

	_, err = f.worker.ProcessPage(context.Background(), PageRequest{RunID: run.ID})
	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.Equal(t, database.RunStatusPending, f.repo.run(run.ID).Status)
}

func TestProcessPageFinishedRunIsNoop(t *testing.T) {
	f := newWorkerFixture(t, "")
	require.NoError(t, f.repo.CompleteRun(context.Background(), f.run.ID))

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID, Cursor: "20"})
	assert.ErrorIs(t, err, ErrRunFinished)
	assert.Empty(t, f.adapter.configs)
}

func TestProcessPageNoAdapterFailsRun(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.worker.adapters = staticResolver{}

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	assert.ErrorIs(t, err, ErrNoAdapter)

	run := f.repo.run(f.run.ID)
	assert.Equal(t, database.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "etsy")
}

func TestProcessPageAdapterErrorFailsRun(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.adapter.err = &scraper.StatusError{Vendor: "etsy", StatusCode: 503}

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})

	var statusErr *scraper.StatusError
	require.True(t, errors.As(err, &statusErr))

	run := f.repo.run(f.run.ID)
	assert.Equal(t, database.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "503")
}

func TestProcessPageCounterFailureFailsRun(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.repo.incrementErr = errors.New("connection reset")
	f.adapter.pages[""] = &scraper.Result{Items: scrapedItems(1)}

	_, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.Error(t, err)
	assert.Equal(t, database.RunStatusFailed, f.repo.run(f.run.ID).Status)
}

func TestProcessPageDispatchFailureIsLogged(t *testing.T) {
	f := newWorkerFixture(t, "")
	f.dispatcher.err = errors.New("queue is full")
	f.adapter.pages[""] = &scraper.Result{NextCursor: "2"}

	res, err := f.worker.ProcessPage(context.Background(), PageRequest{RunID: f.run.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, res.Status)
	assert.Equal(t, database.RunStatusRunning, f.repo.run(f.run.ID).Status)
}
