package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// region-job ingest pipeline.
type Metrics struct {
	FilesProcessed prometheus.Counter
	FilesFailed    prometheus.Counter

	// Fetcher metrics.
	DownloadRetries  prometheus.Counter
	CacheHits        prometheus.Counter
	BytesDownloaded  prometheus.Counter
	DownloadDuration prometheus.Histogram

	// Extractor metrics.
	VariablesMissing *prometheus.CounterVec // labels: variable

	// Run-level metrics.
	RunRunning       prometheus.Gauge
	RunsCompleted    prometheus.Counter
	RunDuration      prometheus.Histogram
	LastRunProcessed prometheus.Gauge
	LastRunTotal     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting registers on a throwaway registry so parallel tests
// never hit "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "files_processed_total",
			Help:      "Source files fetched, decoded, and written successfully.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "files_failed_total",
			Help:      "Source files skipped after a fetch, decode, or indexing failure.",
		}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "download_retries_total",
			Help:      "Download attempts retried after a transient failure.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "download_cache_hits_total",
			Help:      "Fetches satisfied by the local file cache.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "bytes_downloaded_total",
			Help:      "Bytes streamed from the NOMADS archive.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nbm_ingest",
			Name:      "download_duration_seconds",
			Help:      "Duration of a single successful file download.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		VariablesMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "variables_missing_total",
			Help:      "Requested variables absent from a source file, by variable.",
		}, []string{"variable"}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nbm_ingest",
			Name:      "run_running",
			Help:      "1 while a region run is in progress, 0 otherwise.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nbm_ingest",
			Name:      "runs_completed_total",
			Help:      "Region runs that reached a terminal state, partial or full.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nbm_ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete region run including persistence.",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		LastRunProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nbm_ingest",
			Name:      "last_run_files_processed",
			Help:      "Successfully processed source files in the most recent run.",
		}),
		LastRunTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nbm_ingest",
			Name:      "last_run_files_total",
			Help:      "Total source files enumerated for the most recent run.",
		}),
	}

	reg.MustRegister(
		m.FilesProcessed,
		m.FilesFailed,
		m.DownloadRetries,
		m.CacheHits,
		m.BytesDownloaded,
		m.DownloadDuration,
		m.VariablesMissing,
		m.RunRunning,
		m.RunsCompleted,
		m.RunDuration,
		m.LastRunProcessed,
		m.LastRunTotal,
	)
	return m
}
