package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// TriggerCrawlTask starts a run for every active source. It is not retried:
// a partial failure has already created runs that a retry would duplicate.
type TriggerCrawlTask struct {
	TaskInfo
	orchestrator Triggerer
}

func NewTriggerCrawlTask(orchestrator Triggerer) *TriggerCrawlTask {
	return &TriggerCrawlTask{
		TaskInfo:     newTaskInfo(TaskTypeTriggerCrawl, "all", 0),
		orchestrator: orchestrator,
	}
}

func (t *TriggerCrawlTask) Execute(ctx context.Context) error {
	runIDs, err := t.orchestrator.TriggerAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to trigger crawl runs: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"runs", len(runIDs),
		"duration", t.Elapsed())

	return nil
}
