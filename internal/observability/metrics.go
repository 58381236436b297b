package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// noise ETL pipeline.
type Metrics struct {
	DaysProcessed   prometheus.Counter
	DaysSkipped     prometheus.Counter // cached PSD reused, no fetch
	DaysFailed      prometheus.Counter // fetch or estimation failed, day dropped
	PSDWindows      prometheus.Counter
	RMSRows         prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Sweep processing metrics.
	CycleDuration prometheus.Histogram

	// FDSN client metrics.
	FetchRequests    *prometheus.CounterVec   // labels: endpoint={timeseries,station}, outcome={success,error}
	FetchDuration    *prometheus.HistogramVec // labels: endpoint={timeseries,station}
	SensitivityCache *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		DaysProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "days_processed_total",
			Help:      "Total stream-days fetched and converted to PSD tables.",
		}),
		DaysSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "days_skipped_total",
			Help:      "Total stream-days served from the PSD archive without a fetch.",
		}),
		DaysFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "days_failed_total",
			Help:      "Total stream-days dropped after fetch or estimation failure.",
		}),
		PSDWindows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "psd_windows_total",
			Help:      "Total PSD rows estimated from raw waveforms.",
		}),
		RMSRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "rms_rows_written_total",
			Help:      "Total RMS rows delivered to the configured sinks.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seis_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seis_etl",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one full sweep over all streams and days.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "fetch_requests_total",
			Help:      "FDSN web service requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "seis_etl",
			Name:      "fetch_duration_seconds",
			Help:      "FDSN web service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		}, []string{"endpoint"}),
		SensitivityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seis_etl",
			Name:      "sensitivity_cache_total",
			Help:      "Instrument sensitivity cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.DaysProcessed,
		m.DaysSkipped,
		m.DaysFailed,
		m.PSDWindows,
		m.RMSRows,
		m.PipelineRunning,
		m.CycleDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.SensitivityCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		DaysProcessed:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "seis_etl", Name: "days_processed_total"}),
		DaysSkipped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "seis_etl", Name: "days_skipped_total"}),
		DaysFailed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "seis_etl", Name: "days_failed_total"}),
		PSDWindows:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "seis_etl", Name: "psd_windows_total"}),
		RMSRows:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "seis_etl", Name: "rms_rows_written_total"}),
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "seis_etl", Name: "pipeline_running"}),
		CycleDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "seis_etl", Name: "cycle_duration_seconds"}),
		FetchRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "seis_etl", Name: "fetch_requests_total"}, []string{"endpoint", "outcome"}),
		FetchDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "seis_etl", Name: "fetch_duration_seconds"}, []string{"endpoint"}),
		SensitivityCache: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "seis_etl", Name: "sensitivity_cache_total"}, []string{"result"}),
	}
}
