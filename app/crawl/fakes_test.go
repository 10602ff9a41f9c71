package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/scraper"
)

// memoryRepo is an in-memory CrawlRepository.
type memoryRepo struct {
	mu      sync.Mutex
	sources map[string]*database.CrawlSource
	runs    map[string]*database.CrawlRun
	nextID  int

	getRunErr     error
	incrementErr  error
	createRunErr  error
	failRunCalled int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sources: map[string]*database.CrawlSource{},
		runs:    map[string]*database.CrawlRun{},
	}
}

func (m *memoryRepo) addSource(s database.CrawlSource) *database.CrawlSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == "" {
		s.Status = database.SourceStatusActive
	}
	m.sources[s.ID] = &s
	return &s
}

func (m *memoryRepo) run(id string) database.CrawlRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

func (m *memoryRepo) source(id string) database.CrawlSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sources[id]
}

func (m *memoryRepo) ListSources(ctx context.Context) ([]database.CrawlSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.CrawlSource
	for _, s := range m.sources {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memoryRepo) ListActiveSources(ctx context.Context) ([]database.CrawlSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.CrawlSource
	for _, id := range []string{"src-1", "src-2", "src-3"} {
		if s, ok := m.sources[id]; ok && s.Status == database.SourceStatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetSource(ctx context.Context, id string) (*database.CrawlSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memoryRepo) UpsertSource(ctx context.Context, source *database.CrawlSource) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.ID] = source
	return source.ID, nil
}

func (m *memoryRepo) TouchLastCrawl(ctx context.Context, sourceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[sourceID].LastCrawlAt = &at
	return nil
}

func (m *memoryRepo) CreateRun(ctx context.Context, sourceID string) (*database.CrawlRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRunErr != nil {
		return nil, m.createRunErr
	}
	m.nextID++
	run := &database.CrawlRun{ID: fmt.Sprintf("run-%d", m.nextID), SourceID: sourceID, Status: database.RunStatusPending}
	m.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (m *memoryRepo) GetRun(ctx context.Context, id string) (*database.CrawlRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	if r.Status != database.RunStatusPending {
		return false, nil
	}
	now := time.Now()
	r.Status = database.RunStatusRunning
	r.StartedAt = &now
	return true, nil
}

func (m *memoryRepo) IncrementCounters(ctx context.Context, id string, found, created, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	if found < 0 || created < 0 || skipped < 0 {
		return fmt.Errorf("negative increment")
	}
	r := m.runs[id]
	r.ItemsFound += found
	r.ItemsCreated += created
	r.ItemsSkipped += skipped
	return nil
}

func (m *memoryRepo) CompleteRun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	if r.Status.Terminal() {
		return nil
	}
	now := time.Now()
	r.Status = database.RunStatusCompleted
	r.CompletedAt = &now
	return nil
}

func (m *memoryRepo) FailRun(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRunCalled++
	r, ok := m.runs[id]
	if !ok || r.Status.Terminal() {
		return nil
	}
	now := time.Now()
	r.Status = database.RunStatusFailed
	r.ErrorMessage = &message
	r.CompletedAt = &now
	return nil
}

func (m *memoryRepo) ListRuns(ctx context.Context, sourceID string, limit, offset int) ([]database.CrawlRun, int, error) {
	return nil, 0, nil
}

// pagedAdapter serves pages keyed by cursor.
type pagedAdapter struct {
	mu      sync.Mutex
	pages   map[string]*scraper.Result
	err     error
	configs []scraper.Config
}

func (a *pagedAdapter) FetchPage(ctx context.Context, cfg scraper.Config) (*scraper.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configs = append(a.configs, cfg)
	if a.err != nil {
		return nil, a.err
	}
	if p, ok := a.pages[cfg.Cursor]; ok {
		return p, nil
	}
	return &scraper.Result{}, nil
}

type staticResolver map[string]scraper.Adapter

func (r staticResolver) Lookup(vendor string) (scraper.Adapter, bool) {
	a, ok := r[vendor]
	return a, ok
}

// outcomeProcessor returns a fixed outcome per external id, created otherwise.
type outcomeProcessor struct {
	mu        sync.Mutex
	outcomes  map[string]ingest.Outcome
	processed []string
}

func (p *outcomeProcessor) Process(ctx context.Context, item scraper.ScrapedItem) ingest.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, item.ExternalID)
	if o, ok := p.outcomes[item.ExternalID]; ok {
		return o
	}
	return ingest.Created
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []PageRequest
	err      error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, req PageRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return d.err
}

func scrapedItems(n int) []scraper.ScrapedItem {
	out := make([]scraper.ScrapedItem, n)
	for i := range out {
		out[i] = scraper.ScrapedItem{
			ExternalID: fmt.Sprintf("%d", i+1),
			Title:      fmt.Sprintf("Item %d", i+1),
			SourceURL:  fmt.Sprintf("https://example.com/%d", i+1),
			VendorName: "etsy",
		}
	}
	return out
}
