// Package metrics provides Prometheus metrics for diskfs operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP gateway metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskfs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Filesystem operation metrics
	FSOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_fs_ops_total",
			Help: "Total number of filesystem operations",
		},
		[]string{"operation", "result"}, // result: "success", "failure"
	)

	FSOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskfs_fs_op_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ListedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diskfs_listed_entries_total",
			Help: "Total number of entries yielded by directory listings",
		},
	)

	// Remote drive API metrics
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_remote_requests_total",
			Help: "Total number of requests sent to the drive API",
		},
		[]string{"method", "status_code"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskfs_remote_request_duration_seconds",
			Help:    "Drive API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RemoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_remote_retries_total",
			Help: "Total number of retried drive API requests",
		},
		[]string{"method"},
	)

	// Download link metrics
	LinkGenerationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diskfs_link_generations_total",
			Help: "Total number of generated single-use download links",
		},
	)

	LinkConsumptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_link_consumptions_total",
			Help: "Total number of download link consumption attempts",
		},
		[]string{"result"}, // result: "success", "expired", "invalid", "used"
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)

// RegisterMetrics ensures all metrics are registered with Prometheus.
// This function is idempotent and safe to call multiple times.
func RegisterMetrics() {
	// All metrics are automatically registered via promauto.
}
