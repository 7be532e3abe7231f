package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sensor_engine"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion
// pipeline and the analytics service.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	SamplesProduced  prometheus.Counter
	IngestRejections *prometheus.CounterVec // labels: reason={invalid_numeric_value,unknown_reading,unconvertible_unit,invalid_argument,decode}
	NewUnitsObserved *prometheus.CounterVec // labels: kind={new_reading,new_unit}
	FlaggedSamples   prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Registry metrics.
	RegistryReloads *prometheus.CounterVec // labels: outcome={success,error}
	RegistryVersion prometheus.Gauge

	// Analytics metrics.
	SeriesCache *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total raw reading messages read from the source topic.",
		}),
		SamplesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_produced_total",
			Help:      "Total normalized samples written to the sinks.",
		}),
		IngestRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejections_total",
			Help:      "Raw readings dropped during ingestion, by reason.",
		}, []string{"reason"}),
		NewUnitsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_units_observed_total",
			Help:      "Reading names or units seen for the first time.",
		}, []string{"kind"}),
		FlaggedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flagged_samples_total",
			Help:      "Accepted samples flagged as outside their valid range.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-ingest-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RegistryReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_reloads_total",
			Help:      "Reading registry reloads by outcome.",
		}, []string{"outcome"}),
		RegistryVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_version",
			Help:      "Version of the reading definition snapshot in use.",
		}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_cache_total",
			Help:      "Sensor series cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.SamplesProduced,
		m.IngestRejections,
		m.NewUnitsObserved,
		m.FlaggedSamples,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.RegistryReloads,
		m.RegistryVersion,
		m.SeriesCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
