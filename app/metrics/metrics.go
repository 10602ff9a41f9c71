// Package metrics holds the Prometheus collectors for the ingestion pipeline,
// the rate-limited queues and search. All methods are safe on a nil receiver
// so components can run without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "curio"

type Metrics struct {
	IngestItems      *prometheus.CounterVec
	CrawlPages       *prometheus.CounterVec
	QueueWait        *prometheus.HistogramVec
	SearchRequests   *prometheus.CounterVec
	WebSearchResults *prometheus.CounterVec
	TasksExecuted    *prometheus.CounterVec
}

// New registers every collector on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		IngestItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Scraped items processed, by outcome",
		}, []string{"outcome"}),
		CrawlPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "crawl",
			Name:      "pages_total",
			Help:      "Crawl pages processed, by resulting run status",
		}, []string{"status"}),
		QueueWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time a task spent queued before it started",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"queue"}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests served, by ranking mode",
		}, []string{"mode"}),
		WebSearchResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "websearch",
			Name:      "requests_total",
			Help:      "Live web search lookups, by result",
		}, []string{"result"}),
		TasksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tasks",
			Name:      "executed_total",
			Help:      "Background tasks executed, by type and status",
		}, []string{"type", "status"}),
	}
}

func (m *Metrics) IngestOutcome(outcome string) {
	if m == nil {
		return
	}
	m.IngestItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CrawlPage(status string) {
	if m == nil {
		return
	}
	m.CrawlPages.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveQueueWait(queue string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueueWait.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *Metrics) Search(mode string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(mode).Inc()
}

func (m *Metrics) WebSearch(result string) {
	if m == nil {
		return
	}
	m.WebSearchResults.WithLabelValues(result).Inc()
}

func (m *Metrics) Task(taskType, status string) {
	if m == nil {
		return
	}
	m.TasksExecuted.WithLabelValues(taskType, status).Inc()
}
