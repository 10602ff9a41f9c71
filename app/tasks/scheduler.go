package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/curio/app/crawl"
	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/metrics"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/sources"
	"github.com/robfig/cron/v3"
)

const (
	queueSize   = 300
	taskTimeout = 5 * time.Minute
	maxBackoff  = 30 * time.Second
)

var ErrNotBound = errors.New("scheduler has no handler bound for this task")

var (
	_ TaskSchedulerInterface = (*Scheduler)(nil)
	_ crawl.Dispatcher       = (*Scheduler)(nil)
)

type Scheduler struct {
	configCache  *sources.ConfigCache
	crawlRepo    database.CrawlRepository
	orchestrator Triggerer
	pages        PageProcessor
	ingester     BatchProcessor
	metrics      *metrics.Metrics
	schedule     string
	workerCount  int
	cron         *cron.Cron
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan Task
}

// NewScheduler creates a scheduler with workerCount workers. An empty
// schedule disables the periodic crawl trigger.
func NewScheduler(configCache *sources.ConfigCache, crawlRepo database.CrawlRepository, workerCount int, schedule string, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount < 1 {
		workerCount = 1
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	return &Scheduler{
		configCache: configCache,
		crawlRepo:   crawlRepo,
		metrics:     m,
		schedule:    schedule,
		workerCount: workerCount,
		cron:        cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan Task, queueSize),
	}
}

// Bind attaches the components tasks call into. It must be called before
// Start; the crawl components themselves take the scheduler as their
// dispatcher.
func (s *Scheduler) Bind(orchestrator Triggerer, pages PageProcessor, ingester BatchProcessor) {
	s.orchestrator = orchestrator
	s.pages = pages
	s.ingester = ingester
}

func (s *Scheduler) Start() error {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.schedule != "" && s.orchestrator != nil {
		_, err := s.cron.AddFunc(s.schedule, func() {
			if err := s.EnqueueTask(NewTriggerCrawlTask(s.orchestrator)); err != nil {
				slog.Warn("Failed to enqueue TriggerCrawlTask", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid crawl schedule %q: %w", s.schedule, err)
		}
		s.cron.Start()
		slog.Debug("Crawl schedule registered", "schedule", s.schedule)
	}

	s.enqueueStartupTasks()
	return nil
}

func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task Task) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Dispatch queues one crawl page.
func (s *Scheduler) Dispatch(ctx context.Context, req crawl.PageRequest) error {
	if s.pages == nil {
		return ErrNotBound
	}
	return s.EnqueueTask(NewProcessCrawlPageTask(req, s.pages))
}

// Reingest queues a batch of items for background ingestion.
func (s *Scheduler) Reingest(ctx context.Context, subject string, items []scraper.ScrapedItem) error {
	if s.ingester == nil {
		return ErrNotBound
	}
	return s.EnqueueTask(NewIngestItemsTask(subject, items, s.ingester))
}

func (s *Scheduler) enqueueStartupTasks() {
	if s.configCache == nil || s.crawlRepo == nil {
		return
	}

	defs := s.configCache.GetConfigs()
	if len(defs) == 0 {
		slog.Debug("No crawl source definitions found")
		return
	}

	slog.Debug("Syncing crawl source definitions", "count", len(defs))

	for _, def := range defs {
		if err := s.EnqueueTask(NewSyncCrawlSourceTask(def, s.crawlRepo)); err != nil {
			slog.Warn("Failed to enqueue SyncCrawlSourceTask", "source", def.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task Task) {
	info := task.Info()
	info.begin()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := s.run(taskCtx, task)
	if err == nil {
		s.metrics.Task(string(info.Type), "success")
		return
	}

	slog.Error("Worker task execution failed", append(info.logAttrs(), "worker_id", workerID, "error", err)...)

	if !info.retry() {
		s.metrics.Task(string(info.Type), "failed")
		if info.MaxRetries > 0 {
			slog.Error("Task failed after maximum retries", append(info.logAttrs(), "last_error", err)...)
		}
		return
	}

	s.metrics.Task(string(info.Type), "retry")
	retryDelay := backoff(info.Retries)

	slog.Warn("Task retry scheduled", append(info.logAttrs(), "max_retries", info.MaxRetries, "delay", retryDelay.String())...)

	go func() {
		select {
		case <-time.After(retryDelay):
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", info.logAttrs()...)
			return
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", append(info.logAttrs(), "error", retryErr)...)
		}
	}()
}

// run executes task and turns a panic into an error.
func (s *Scheduler) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}

func backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<uint(retry-1))*time.Second, maxBackoff)
}
