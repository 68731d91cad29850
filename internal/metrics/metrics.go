package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youthclub/notification-queue/internal/model"
)

// Metrics holds the queue's Prometheus instruments on a private registry.
//
//   - notification_queue_processed_total{status}: items taken to a terminal status
//   - notification_provider_send_duration_seconds: provider call latency
//   - notification_queue_enqueued_total{category}: items persisted by producers
//   - notification_enqueue_skipped_total{reason}: enqueue calls that persisted nothing
//   - notification_queue_items{status}: queue depth, collected on scrape
type Metrics struct {
	Registry *prometheus.Registry

	ProcessedTotal      *prometheus.CounterVec
	SendDurationSeconds prometheus.Histogram
	EnqueuedTotal       *prometheus.CounterVec
	SkippedTotal        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ProcessedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_queue_processed_total",
			Help: "Queue items processed, by resulting status.",
		}, []string{"status"}),
		SendDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_provider_send_duration_seconds",
			Help:    "Duration of provider send calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EnqueuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_queue_enqueued_total",
			Help: "Queue items enqueued, by category.",
		}, []string{"category"}),
		SkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_enqueue_skipped_total",
			Help: "Enqueue requests that produced no item, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) RecordProcessed(status model.Status, d time.Duration) {
	m.ProcessedTotal.WithLabelValues(string(status)).Inc()
	m.SendDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) RecordEnqueued(c model.Category) {
	m.EnqueuedTotal.WithLabelValues(string(c)).Inc()
}

func (m *Metrics) RecordSkipped(reason string) {
	m.SkippedTotal.WithLabelValues(reason).Inc()
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SnapshotSource is satisfied by service.Stats.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// RegisterQueueDepth exposes notification_queue_items{status}, read from src
// on every scrape.
func (m *Metrics) RegisterQueueDepth(src SnapshotSource, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return m.Registry.Register(&depthCollector{
		src:    src,
		logger: logger,
		desc: prometheus.NewDesc(
			"notification_queue_items",
			"Queue items by current status.",
			[]string{"status"}, nil,
		),
	})
}

const scrapeTimeout = 5 * time.Second

type depthCollector struct {
	src    SnapshotSource
	logger *slog.Logger
	desc   *prometheus.Desc
}

func (c *depthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *depthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	snap, err := c.src.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("queue depth scrape failed", slog.Any("error", err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(snap.Pending), string(model.Pending))
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(snap.Sent), string(model.Sent))
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(snap.Failed), string(model.Failed))
}
