package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/curio/app/scraper"
)

// IngestItemsTask feeds a batch through the item processor in the
// background. It fails, and is retried, only when every item errored;
// items stored by an earlier attempt are skipped on the retry.
type IngestItemsTask struct {
	TaskInfo
	Items     []scraper.ScrapedItem
	processor BatchProcessor
}

func NewIngestItemsTask(subject string, items []scraper.ScrapedItem, processor BatchProcessor) *IngestItemsTask {
	return &IngestItemsTask{
		TaskInfo:  newTaskInfo(TaskTypeIngestItems, subject, DefaultMaxRetries),
		Items:     items,
		processor: processor,
	}
}

func (t *IngestItemsTask) Execute(ctx context.Context) error {
	if len(t.Items) == 0 {
		return nil
	}

	counts := t.processor.ProcessBatch(ctx, t.Items)
	if counts.Errors == len(t.Items) {
		return fmt.Errorf("all %d items failed to ingest", counts.Errors)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"subject", t.Subject,
		"duration", t.Elapsed(),
		"created", counts.Created,
		"skipped", counts.Skipped,
		"errors", counts.Errors)

	return nil
}
