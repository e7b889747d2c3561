package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics
	captureAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_capture_attempts_total",
		Help: "Capture attempts by frame kind and outcome",
	}, []string{"kind", "outcome"})

	framesCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_frames_captured_total",
		Help: "Frames captured by kind",
	}, []string{"kind"})

	frameBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_frame_bytes_total",
		Help: "Payload bytes of captured frames by kind",
	}, []string{"kind"})

	captureTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_capture_timeouts_total",
		Help: "Capture retry loops that ran out of time",
	}, []string{"kind"})

	guardsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndi_guards_live",
		Help: "Captured frames not yet released back to the runtime",
	})

	// Send metrics
	asyncSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_async_sends_total",
		Help: "Asynchronous video sends by outcome",
	}, []string{"outcome"})

	asyncFlushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ndi_async_flush_seconds",
		Help:    "Time spent waiting for an async send to complete",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
	})

	// Runtime and discovery
	sourcesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndi_sources_discovered",
		Help: "Sources seen by the last discovery pass",
	})

	runtimeRefs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndi_runtime_refs",
		Help: "Live references to the NDI runtime",
	})

	directoryPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndi_directory_publishes_total",
		Help: "Source directory publishes by status",
	}, []string{"status"})

	// Snapshot API
	snapshotRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_requests_total",
		Help: "Snapshot requests by image format and status",
	}, []string{"format", "status"})

	snapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapshot_duration_seconds",
		Help:    "Snapshot capture and encode time",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

// SetSourcesDiscovered records the size of the latest discovery result.
func SetSourcesDiscovered(n int) {
	sourcesDiscovered.Set(float64(n))
}

// RecordDirectoryPublish counts a directory publish; status is "ok" or
// "error".
func RecordDirectoryPublish(status string) {
	directoryPublishesTotal.WithLabelValues(status).Inc()
}

// RecordSnapshot counts a snapshot request and its duration.
func RecordSnapshot(format, status string, d time.Duration) {
	snapshotRequestsTotal.WithLabelValues(format, status).Inc()
	if status == "ok" {
		snapshotDuration.WithLabelValues(format).Observe(d.Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// HTTPMiddleware records request counts and latency, labelled by the
// matched mux route template so source names never become labels.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
