// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes recorded by the pipeline.
const (
	ResultSuccess       = "success"
	ResultNoFile        = "no_file"
	ResultTooLarge      = "too_large"
	ResultStagingFailed = "staging_failed"
	ResultRemoteFailed  = "remote_failed"
)

// Metrics groups every collector the relay records into.
type Metrics struct {
	registry *prometheus.Registry

	Uploads             *prometheus.CounterVec
	StagedBytes         prometheus.Counter
	RemoteDuration      prometheus.Histogram
	PurgeDeleted        prometheus.Counter
	PurgeFailed         prometheus.Counter
	PurgeSkipped        prometheus.Counter
	NotificationsFailed prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, so several instances can
// coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_uploads_total",
			Help: "Upload attempts by outcome.",
		}, []string{"result"}),
		StagedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_staged_bytes_total",
			Help: "Bytes written to the staging directory.",
		}),
		RemoteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_remote_persist_seconds",
			Help:    "Latency of remote persist calls, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		PurgeDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_purge_deleted_total",
			Help: "Staged files removed by the purge sweep.",
		}),
		PurgeFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_purge_failed_total",
			Help: "Staged files the purge sweep could not remove.",
		}),
		PurgeSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_purge_skipped_total",
			Help: "Staged files skipped because an upload still held them.",
		}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_notifications_failed_total",
			Help: "Upload announcements that could not be delivered.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
