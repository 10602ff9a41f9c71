package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/curio/app/crawl"
)

// ProcessCrawlPageTask runs one worker page. The worker records failures on
// the run itself, so the task is never retried.
type ProcessCrawlPageTask struct {
	TaskInfo
	Request crawl.PageRequest
	pages   PageProcessor
}

func NewProcessCrawlPageTask(req crawl.PageRequest, pages PageProcessor) *ProcessCrawlPageTask {
	return &ProcessCrawlPageTask{
		TaskInfo: newTaskInfo(TaskTypeProcessCrawlPage, req.RunID, 0),
		Request:  req,
		pages:    pages,
	}
}

func (t *ProcessCrawlPageTask) Execute(ctx context.Context) error {
	result, err := t.pages.ProcessPage(ctx, t.Request)
	if errors.Is(err, crawl.ErrRunFinished) || errors.Is(err, crawl.ErrRunNotFound) || errors.Is(err, crawl.ErrSourceNotFound) {
		slog.Debug("Skipping crawl page", "run", t.Request.RunID, "reason", err)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"run", t.Request.RunID,
		"cursor", t.Request.Cursor,
		"status", result.Status,
		"duration", t.Elapsed())

	return nil
}
