// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guidestats"

// Result label values
const (
	ResultAccepted = "accepted"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultBot      = "bot"
	ResultExcluded = "excluded"
	ResultCreated  = "created"
	ResultUpdated  = "updated"
)

// Metrics holds every collector, registered on a private registry so tests
// can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested   *prometheus.CounterVec
	SessionUpserts   *prometheus.CounterVec
	IngestDuration   *prometheus.HistogramVec
	StatsDuration    prometheus.Histogram
	ArchiveFlushed   prometheus.Counter
	ArchiveDropped   prometheus.Counter
	ArchiveFailures  prometheus.Counter
	ArchiveQueueSize prometheus.Gauge
}

// New creates a Metrics instance with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Visit and custom events received, by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		SessionUpserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_upserts_total",
				Help:      "Session aggregation calls by result",
			},
			[]string{"result"},
		),
		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Time spent persisting one ingested event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		StatsDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_query_duration_seconds",
				Help:      "Time spent computing one stats dashboard",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ArchiveFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "events_flushed_total",
			Help:      "Visit events written to the archive",
		}),
		ArchiveDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "events_dropped_total",
			Help:      "Visit events dropped because the archive queue was full",
		}),
		ArchiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_failures_total",
			Help:      "Archive batches that failed to send",
		}),
		ArchiveQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "queue_size",
			Help:      "Visit events waiting to be archived",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
