package metrics

import (
	"time"

	"github.com/zsiec/ndikit/pkg/ndi"
)

// Observer exports pkg/ndi counters to Prometheus. Install it with
// ndi.SetObserver.
type Observer struct{}

var _ ndi.Observer = Observer{}

func NewObserver() Observer { return Observer{} }

func (Observer) CaptureAttempt(kind, outcome string) {
	captureAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

func (Observer) FrameCaptured(kind string, bytes int) {
	framesCapturedTotal.WithLabelValues(kind).Inc()
	frameBytesTotal.WithLabelValues(kind).Add(float64(bytes))
}

func (Observer) CaptureTimeout(kind string) {
	captureTimeoutsTotal.WithLabelValues(kind).Inc()
}

func (Observer) GuardsLive(delta int)       { guardsLive.Add(float64(delta)) }
func (Observer) AsyncSend(outcome string)   { asyncSendsTotal.WithLabelValues(outcome).Inc() }
func (Observer) AsyncFlush(d time.Duration) { asyncFlushSeconds.Observe(d.Seconds()) }
func (Observer) RuntimeRefs(n int64)        { runtimeRefs.Set(float64(n)) }
