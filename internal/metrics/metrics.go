// Package metrics exposes Prometheus instruments for the refresh pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "smartflow"

// Metrics holds every collector. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	LastSuccess   prometheus.Gauge
	TokensFetched prometheus.Gauge

	// Upstream
	UpstreamErrors *prometheus.CounterVec
	ChunkFailures  prometheus.Counter
	Rejected       *prometheus.CounterVec

	// Store
	RowsPublished  *prometheus.GaugeVec
	BucketFailures *prometheus.CounterVec
	ArchiveErrors  prometheus.Counter

	// API
	FallbackServed *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Refresh runs by trigger and final status",
		}, []string{"trigger", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a refresh run",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last run that published every bucket",
		}),
		TokensFetched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tokens_fetched",
			Help:      "Netflow tokens accepted in the last run",
		}),

		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Upstream failures by provider",
		}, []string{"provider"}),
		ChunkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "market_chunk_failures_total",
			Help:      "Market data chunks that returned no data",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "rejected_records_total",
			Help:      "Upstream records dropped at validation by provider",
		}, []string{"provider"}),

		RowsPublished: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows_published",
			Help:      "Rows in the last successful replacement of each timeframe",
		}, []string{"timeframe"}),
		BucketFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bucket_failures_total",
			Help:      "Timeframe replacements that failed",
		}, []string{"timeframe"}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "archive_errors_total",
			Help:      "History archive writes that failed",
		}),

		FallbackServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "fallback_served_total",
			Help:      "Read requests answered with sample data",
		}, []string{"timeframe"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRun(trigger, status string, d time.Duration, at time.Time, fullSuccess bool) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(trigger, status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if fullSuccess {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

func (m *Metrics) RecordTokens(n int) {
	if m == nil {
		return
	}
	m.TokensFetched.Set(float64(n))
}

func (m *Metrics) RecordUpstreamError(provider string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordChunkFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunkFailures.Add(float64(n))
}

func (m *Metrics) RecordRejected(provider string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Rejected.WithLabelValues(provider).Add(float64(n))
}

func (m *Metrics) RecordBucket(timeframe string, rows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BucketFailures.WithLabelValues(timeframe).Inc()
		return
	}
	m.RowsPublished.WithLabelValues(timeframe).Set(float64(rows))
}

func (m *Metrics) RecordArchiveError() {
	if m == nil {
		return
	}
	m.ArchiveErrors.Inc()
}

func (m *Metrics) RecordFallback(timeframe string) {
	if m == nil {
		return
	}
	m.FallbackServed.WithLabelValues(timeframe).Inc()
}
