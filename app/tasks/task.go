package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeSyncCrawlSource  TaskType = "sync_crawl_source"
	TaskTypeTriggerCrawl     TaskType = "trigger_crawl"
	TaskTypeProcessCrawlPage TaskType = "process_crawl_page"
	TaskTypeIngestItems      TaskType = "ingest_items"
)

// DefaultMaxRetries applies to tasks that are safe to run again.
const DefaultMaxRetries = 3

// Task is a unit of work run by the Scheduler.
type Task interface {
	Execute(ctx context.Context) error
	Info() *TaskInfo
}

// TaskInfo identifies a task and tracks its attempts. Subject names what
// the task acts on: a source name, a run id or a search query.
type TaskInfo struct {
	ID         string
	Type       TaskType
	Subject    string
	Retries    int
	MaxRetries int
	started    time.Time
}

func newTaskInfo(taskType TaskType, subject string, maxRetries int) TaskInfo {
	return TaskInfo{
		ID:         uuid.NewString(),
		Type:       taskType,
		Subject:    subject,
		MaxRetries: maxRetries,
	}
}

func (i *TaskInfo) Info() *TaskInfo {
	return i
}

func (i *TaskInfo) begin() {
	i.started = time.Now()
}

// Elapsed is the time since the current attempt started.
func (i *TaskInfo) Elapsed() time.Duration {
	if i.started.IsZero() {
		return 0
	}
	return time.Since(i.started)
}

// retry records another attempt and reports whether one was allowed.
func (i *TaskInfo) retry() bool {
	if i.Retries >= i.MaxRetries {
		return false
	}
	i.Retries++
	return true
}

func (i *TaskInfo) logAttrs() []any {
	return []any{"type", string(i.Type), "id", i.ID, "subject", i.Subject, "retries", i.Retries}
}
