package ndi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

const testSource = "CAM (1)"

func newTestRuntime(t *testing.T, opts ...native.LoopbackOption) (*native.Loopback, *Runtime) {
	t.Helper()
	lb := native.NewLoopback(opts...)
	rt, err := Acquire(lb)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return lb, rt
}

func newTestReceiver(t *testing.T, rt *Runtime, source string) *Receiver {
	t.Helper()
	r, err := NewReceiver(rt, DefaultReceiverOptions(NewSource(source, "")))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}
