// Package metrics provides Prometheus metrics for the filebay server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all filebay metrics.
var Registry = prometheus.NewRegistry()

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// storeMetricsOnce ensures metrics are only initialized once.
var storeMetricsOnce sync.Once

// storeMetricsInstance is the singleton instance of store metrics.
var storeMetricsInstance *StoreMetrics

// StoreMetrics holds all Prometheus metrics for the resource store, the
// web layer in front of it, and the background sweepers behind it.
type StoreMetrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // filebay_requests_total{operation,status}
	RequestDuration *prometheus.HistogramVec // filebay_request_duration_seconds{operation}

	// Transfer metrics
	BytesUploaded   prometheus.Counter // filebay_bytes_uploaded_total
	BytesDownloaded prometheus.Counter // filebay_bytes_downloaded_total

	// Trash and sweeper metrics
	TrashEntries  *prometheus.GaugeVec   // filebay_trash_entries{namespace}
	SweepRuns     *prometheus.CounterVec // filebay_sweep_runs_total{sweep}
	SweepRemovals *prometheus.CounterVec // filebay_sweep_removed_total{sweep}
	SweepLastRun  *prometheus.GaugeVec   // filebay_sweep_last_run_timestamp_seconds{sweep}

	// Share and event metrics
	SharesIssued prometheus.Counter // filebay_shares_issued_total
	EventClients prometheus.Gauge   // filebay_event_clients
}

// InitStoreMetrics initializes all store metrics.
// Metrics are only registered once; subsequent calls return the same instance.
func InitStoreMetrics(registry prometheus.Registerer) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		if registry == nil {
			registry = Registry
		}
		storeMetricsInstance = &StoreMetrics{
			RequestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "filebay_requests_total",
				Help: "Total store requests by operation and status",
			}, []string{"operation", "status"}),

			RequestDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "filebay_request_duration_seconds",
				Help:    "Store request duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),

			BytesUploaded: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "filebay_bytes_uploaded_total",
				Help: "Total bytes accepted by uploads",
			}),

			BytesDownloaded: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "filebay_bytes_downloaded_total",
				Help: "Total bytes served by downloads and archives",
			}),

			TrashEntries: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
				Name: "filebay_trash_entries",
				Help: "Current number of readable trash entries",
			}, []string{"namespace"}),

			SweepRuns: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "filebay_sweep_runs_total",
				Help: "Completed sweeper passes by sweep kind",
			}, []string{"sweep"}),

			SweepRemovals: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "filebay_sweep_removed_total",
				Help: "Items permanently removed by sweepers, by sweep kind",
			}, []string{"sweep"}),

			SweepLastRun: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
				Name: "filebay_sweep_last_run_timestamp_seconds",
				Help: "Unix time of the last completed pass by sweep kind",
			}, []string{"sweep"}),

			SharesIssued: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "filebay_shares_issued_total",
				Help: "Total share links issued",
			}),

			EventClients: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "filebay_event_clients",
				Help: "Currently connected event stream clients",
			}),
		}
	})
	return storeMetricsInstance
}
