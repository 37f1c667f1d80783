// Package metrics exposes Prometheus counters and histograms for the service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload results used as label values.
const (
	ResultSuccess     = "success"
	ResultClientError = "client_error"
	ResultServerError = "server_error"
)

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	uploadsTotal       *prometheus.CounterVec
	imagesReceived     prometheus.Counter
	imagesSkipped      *prometheus.CounterVec
	viewsProcessed     prometheus.Counter
	generationDuration prometheus.Histogram
	mirrorFailures     prometheus.Counter
}

// NewCollector registers every metric under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload requests by outcome",
		}, []string{"result"}),
		imagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_received_total",
			Help:      "Named image parts persisted from uploads",
		}),
		imagesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_skipped_total",
			Help:      "Uploaded files excluded during preprocessing",
		}, []string{"reason"}),
		viewsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_processed_total",
			Help:      "Views passed to the generator",
		}),
		generationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Mesh generation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		mirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_failures_total",
			Help:      "Meshes that could not be copied to object storage",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one completed request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	path = NormalizePath(path)
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordUpload records the outcome of an upload request.
func (c *Collector) RecordUpload(result string, received, processed int) {
	c.uploadsTotal.WithLabelValues(result).Inc()
	c.imagesReceived.Add(float64(received))
	c.viewsProcessed.Add(float64(processed))
}

// RecordSkip counts one file dropped during preprocessing.
func (c *Collector) RecordSkip(reason string) {
	c.imagesSkipped.WithLabelValues(reason).Inc()
}

// ObserveGeneration records how long mesh generation took.
func (c *Collector) ObserveGeneration(d time.Duration) {
	c.generationDuration.Observe(d.Seconds())
}

// RecordMirrorFailure counts a failed object storage copy.
func (c *Collector) RecordMirrorFailure() {
	c.mirrorFailures.Inc()
}

// NormalizePath collapses per-file download paths to keep label cardinality bounded.
func NormalizePath(path string) string {
	const download = "/api/download/"
	if strings.HasPrefix(path, download) && len(path) > len(download) {
		return download + ":file"
	}
	switch path {
	case "/api/health", "/api/live", "/api/upload", "/metrics", "/":
		return path
	}
	return "other"
}
