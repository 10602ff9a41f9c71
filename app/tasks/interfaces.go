package tasks

import (
	"context"

	"github.com/lysyi3m/curio/app/crawl"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/scraper"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background task processing.
// Example usage:
//
//	scheduler := NewScheduler(configCache, crawlRepo, workers, schedule, m)
//	scheduler.Bind(orchestrator, worker, processor)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task Task) error
}

type Triggerer interface {
	TriggerAll(ctx context.Context) ([]string, error)
}

type PageProcessor interface {
	ProcessPage(ctx context.Context, req crawl.PageRequest) (*crawl.PageResult, error)
}

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, items []scraper.ScrapedItem) ingest.Counts
}
