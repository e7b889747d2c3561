package ndi

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer receives counters from the capture and send paths.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	CaptureAttempt(kind, outcome string)
	FrameCaptured(kind string, bytes int)
	CaptureTimeout(kind string)
	GuardsLive(delta int)
	AsyncSend(outcome string)
	AsyncFlush(d time.Duration)
	RuntimeRefs(n int64)
}

type nopObserver struct{}

func (nopObserver) CaptureAttempt(string, string) {}
func (nopObserver) FrameCaptured(string, int)     {}
func (nopObserver) CaptureTimeout(string)         {}
func (nopObserver) GuardsLive(int)                {}
func (nopObserver) AsyncSend(string)              {}
func (nopObserver) AsyncFlush(time.Duration)      {}
func (nopObserver) RuntimeRefs(int64)             {}

type observerHolder struct{ Observer }

type loggerHolder struct{ logrus.FieldLogger }

var (
	pkgObserver atomic.Value
	pkgLogger   atomic.Value
)

func init() {
	pkgObserver.Store(observerHolder{nopObserver{}})
	pkgLogger.Store(loggerHolder{logrus.StandardLogger().WithField("component", "ndi")})
}

// SetObserver installs o for all subsequent operations. A nil o disables
// observation.
func SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	pkgObserver.Store(observerHolder{o})
}

// SetLogger installs the logger used for cleanup failures and warnings.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	pkgLogger.Store(loggerHolder{l.WithField("component", "ndi")})
}

func observe() Observer {
	return pkgObserver.Load().(observerHolder).Observer
}

func logger() logrus.FieldLogger {
	return pkgLogger.Load().(loggerHolder).FieldLogger
}
