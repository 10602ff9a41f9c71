// Package crawl drives crawl runs: the orchestrator creates runs for active
// sources and the worker processes one page per invocation, handing the
// continuation to a Dispatcher.
package crawl

import (
	"context"
	"errors"

	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/scraper"
)

var (
	ErrRunNotFound    = errors.New("crawl run not found")
	ErrSourceNotFound = errors.New("crawl source not found")
	ErrRunFinished    = errors.New("crawl run already finished")
	ErrNoAdapter      = errors.New("no adapter registered for vendor")
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

type PageRequest struct {
	RunID  string `json:"runId"`
	Cursor string `json:"cursor,omitempty"`
}

// PageResult summarises one processed page. NextCursor is set only while
// the run is still processing.
type PageResult struct {
	Status     string
	Page       string
	Found      int
	Created    int
	Skipped    int
	NextCursor string
}

// Dispatcher delivers a page request to a Worker asynchronously. A nil error
// means the request was handed off, not that it was processed.
type Dispatcher interface {
	Dispatch(ctx context.Context, req PageRequest) error
}

type DispatcherFunc func(ctx context.Context, req PageRequest) error

func (f DispatcherFunc) Dispatch(ctx context.Context, req PageRequest) error {
	return f(ctx, req)
}

type AdapterResolver interface {
	Lookup(vendor string) (scraper.Adapter, bool)
}

type ItemProcessor interface {
	Process(ctx context.Context, item scraper.ScrapedItem) ingest.Outcome
}
