// Package ratelimit gates outbound calls behind FIFO queues that bound both
// concurrency and the number of task starts per interval.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/curio/app/metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var ErrClosed = errors.New("rate limit queue is closed")

type Config struct {
	Name        string
	Concurrency int
	IntervalCap int
	Interval    time.Duration
}

// AIConfig gates the enrichment provider: 2 concurrent, 2 starts per second.
var AIConfig = Config{Name: "ai", Concurrency: 2, IntervalCap: 2, Interval: time.Second}

// MarketplaceConfig gates vendor sites: 1 concurrent, 1 start per 2 seconds.
var MarketplaceConfig = Config{Name: "marketplace", Concurrency: 1, IntervalCap: 1, Interval: 2 * time.Second}

type job struct {
	ctx      context.Context
	enqueued time.Time
	run      func(ctx context.Context)
	abandon  func(err error)
}

type Queue struct {
	name    string
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	jobs    chan *job
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(c Config, m *metrics.Metrics) *Queue {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.IntervalCap < 1 {
		c.IntervalCap = 1
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}

	// Burst 1 spaces starts evenly, so no window of length Interval holds
	// more than IntervalCap of them.
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:    c.Name,
		sem:     semaphore.NewWeighted(int64(c.Concurrency)),
		limiter: rate.NewLimiter(rate.Every(c.Interval/time.Duration(c.IntervalCap)), 1),
		jobs:    make(chan *job, 1024),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.dispatch()

	return q
}

func (q *Queue) Name() string {
	return q.name
}

// Close stops the dispatcher and waits for running tasks. Tasks still queued
// fail with ErrClosed.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

// dispatch starts jobs strictly in submission order.
func (q *Queue) dispatch() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case j := <-q.jobs:
			q.start(j)
		}
	}
}

func (q *Queue) start(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.abandon(err)
		return
	}

	if err := q.limiter.Wait(j.ctx); err != nil {
		j.abandon(q.waitErr(j.ctx, err))
		return
	}

	if err := q.sem.Acquire(q.ctx, 1); err != nil {
		j.abandon(ErrClosed)
		return
	}

	q.metrics.ObserveQueueWait(q.name, time.Since(j.enqueued))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.sem.Release(1)
		j.run(j.ctx)
	}()
}

func (q *Queue) waitErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("rate limiter wait failed: %w", err)
}

func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			j.abandon(ErrClosed)
		default:
			return
		}
	}
}

func (q *Queue) enqueue(ctx context.Context, j *job) error {
	select {
	case <-q.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return ErrClosed
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Submit queues fn and blocks until it has run or ctx is done. An error or
// panic from fn is returned to this caller only; the queue keeps serving.
func Submit[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	done := make(chan outcome[T], 1)

	j := &job{
		ctx:      ctx,
		enqueued: time.Now(),
		run: func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Rate limited task panicked", "queue", q.name, "panic", r)
					done <- outcome[T]{err: fmt.Errorf("task panicked: %v", r)}
				}
			}()
			v, err := fn(ctx)
			done <- outcome[T]{value: v, err: err}
		},
		abandon: func(err error) {
			done <- outcome[T]{err: err}
		},
	}

	if err := q.enqueue(ctx, j); err != nil {
		return zero, err
	}

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.ctx.Done():
		// The dispatcher may have exited before seeing this job.
		select {
		case o := <-done:
			return o.value, o.err
		case <-time.After(closeGrace):
			return zero, ErrClosed
		}
	}
}

const closeGrace = 100 * time.Millisecond

// Do is Submit for tasks with no result.
func Do(ctx context.Context, q *Queue, fn func(ctx context.Context) error) error {
	_, err := Submit(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
