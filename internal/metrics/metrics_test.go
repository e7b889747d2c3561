package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi"
	"github.com/zsiec/ndikit/pkg/ndi/native"
)

func TestObserver_Counters(t *testing.T) {
	o := NewObserver()

	tests := []struct {
		name   string
		record func()
		metric func() float64
		delta  float64
	}{
		{
			name:   "capture attempt",
			record: func() { o.CaptureAttempt("video", "none") },
			metric: func() float64 { return testutil.ToFloat64(captureAttemptsTotal.WithLabelValues("video", "none")) },
			delta:  1,
		},
		{
			name:   "frame captured counts frames",
			record: func() { o.FrameCaptured("audio", 4096) },
			metric: func() float64 { return testutil.ToFloat64(framesCapturedTotal.WithLabelValues("audio")) },
			delta:  1,
		},
		{
			name:   "frame captured counts bytes",
			record: func() { o.FrameCaptured("metadata", 128) },
			metric: func() float64 { return testutil.ToFloat64(frameBytesTotal.WithLabelValues("metadata")) },
			delta:  128,
		},
		{
			name:   "capture timeout",
			record: func() { o.CaptureTimeout("video") },
			metric: func() float64 { return testutil.ToFloat64(captureTimeoutsTotal.WithLabelValues("video")) },
			delta:  1,
		},
		{
			name:   "async send",
			record: func() { o.AsyncSend("busy") },
			metric: func() float64 { return testutil.ToFloat64(asyncSendsTotal.WithLabelValues("busy")) },
			delta:  1,
		},
		{
			name:   "guards live",
			record: func() { o.GuardsLive(2); o.GuardsLive(-1) },
			metric: func() float64 { return testutil.ToFloat64(guardsLive) },
			delta:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.metric()
			tt.record()
			assert.Equal(t, before+tt.delta, tt.metric())
		})
	}
}

func TestObserver_Gauges(t *testing.T) {
	o := NewObserver()

	o.RuntimeRefs(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(runtimeRefs))
	o.RuntimeRefs(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(runtimeRefs))

	SetSourcesDiscovered(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(sourcesDiscovered))
}

func histogramCount(t *testing.T, h interface{}) uint64 {
	t.Helper()
	metric, ok := h.(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestObserver_AsyncFlush(t *testing.T) {
	before := histogramCount(t, asyncFlushSeconds)
	NewObserver().AsyncFlush(3 * time.Millisecond)
	assert.Equal(t, before+1, histogramCount(t, asyncFlushSeconds))
}

func TestObserver_WiredIntoNDI(t *testing.T) {
	ndi.SetObserver(NewObserver())
	t.Cleanup(func() { ndi.SetObserver(nil) })

	lb := native.NewLoopback()
	rt, err := ndi.Acquire(lb)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	const source = "METRICS (1)"
	r, err := ndi.NewReceiver(rt, ndi.DefaultReceiverOptions(ndi.NewSource(source, "")))
	require.NoError(t, err)
	t.Cleanup(r.Close)

	attempts := testutil.ToFloat64(captureAttemptsTotal.WithLabelValues("video", "frame"))
	bytes := testutil.ToFloat64(frameBytesTotal.WithLabelValues("video"))
	live := testutil.ToFloat64(guardsLive)

	lb.Script(source, native.VideoStep(4, 2, native.FourCCBGRA, 16))
	f, err := r.CaptureVideo(context.Background(), time.Second)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, attempts+1, testutil.ToFloat64(captureAttemptsTotal.WithLabelValues("video", "frame")))
	assert.Equal(t, bytes+32, testutil.ToFloat64(frameBytesTotal.WithLabelValues("video")))
	assert.Equal(t, live, testutil.ToFloat64(guardsLive), "owned copies release their guard")
}

func TestRecordSnapshot(t *testing.T) {
	ok := testutil.ToFloat64(snapshotRequestsTotal.WithLabelValues("png", "ok"))
	failed := testutil.ToFloat64(snapshotRequestsTotal.WithLabelValues("jpeg", "error"))
	observed := histogramCount(t, snapshotDuration.WithLabelValues("png"))

	RecordSnapshot("png", "ok", 20*time.Millisecond)
	RecordSnapshot("jpeg", "error", time.Second)

	assert.Equal(t, ok+1, testutil.ToFloat64(snapshotRequestsTotal.WithLabelValues("png", "ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(snapshotRequestsTotal.WithLabelValues("jpeg", "error")))
	assert.Equal(t, observed+1,
		histogramCount(t, snapshotDuration.WithLabelValues("png")),
		"only successful snapshots are timed")
}

func TestRecordDirectoryPublish(t *testing.T) {
	before := testutil.ToFloat64(directoryPublishesTotal.WithLabelValues("error"))
	RecordDirectoryPublish("error")
	assert.Equal(t, before+1, testutil.ToFloat64(directoryPublishesTotal.WithLabelValues("error")))
}

func TestHTTPMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(HTTPMiddleware)
	router.HandleFunc("/api/v1/sources/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sources/{name}", "404")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"CAM%20(1)", "CAM%20(2)"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sources/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter), "requests share the route template label")
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}
