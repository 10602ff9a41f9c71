package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/sources"
)

type SyncCrawlSourceTask struct {
	TaskInfo
	Definition *sources.Definition
	crawlRepo  database.CrawlRepository
}

func NewSyncCrawlSourceTask(def *sources.Definition, crawlRepo database.CrawlRepository) *SyncCrawlSourceTask {
	return &SyncCrawlSourceTask{
		TaskInfo:   newTaskInfo(TaskTypeSyncCrawlSource, def.Name, DefaultMaxRetries),
		Definition: def,
		crawlRepo:  crawlRepo,
	}
}

func (t *SyncCrawlSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	source, err := t.Definition.ToSource()
	if err != nil {
		return err
	}

	id, err := t.crawlRepo.UpsertSource(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to sync crawl source to database: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"source", t.Subject,
		"id", id,
		"duration", t.Elapsed())

	return nil
}
