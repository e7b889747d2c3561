package ndi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

func TestRuntime_RefCounting(t *testing.T) {
	lb := native.NewLoopback()

	a, err := Acquire(lb)
	require.NoError(t, err)
	b, err := Acquire(lb)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lb.Calls("Initialize"))
	assert.True(t, a.IsRunning())

	a.Close()
	a.Close()
	assert.True(t, b.IsRunning())
	assert.Zero(t, lb.Calls("Destroy"))

	b.Close()
	assert.Equal(t, int64(1), lb.Calls("Destroy"))
	assert.False(t, b.IsRunning())

	c, err := Acquire(lb)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int64(2), lb.Calls("Initialize"), "the library is initialized again after a full release")
}

func TestRuntime_ConcurrentAcquire(t *testing.T) {
	lb := native.NewLoopback()

	const n = 32
	var wg sync.WaitGroup
	rts := make([]*Runtime, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt, err := Acquire(lb)
			assert.NoError(t, err)
			rts[i] = rt
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), lb.Calls("Initialize"))
	assert.Equal(t, int64(1), lb.RuntimeRefs())
	for _, rt := range rts {
		rt.Close()
	}
	assert.Zero(t, lb.RuntimeRefs())
}

func TestRuntime_FailedInitIsSticky(t *testing.T) {
	lb := native.NewLoopback(native.WithFailingInitialize())

	_, err := Acquire(lb)
	assert.True(t, errors.Is(err, ErrInitializationFailed))
	_, err = Acquire(lb)
	assert.True(t, errors.Is(err, ErrInitializationFailed))
	assert.Equal(t, int64(1), lb.Calls("Initialize"))
}

func TestRuntime_Info(t *testing.T) {
	lb := native.NewLoopback(native.WithVersion("NDI SDK TEST 6.1"), native.WithUnsupportedCPU())
	rt, err := Acquire(lb)
	require.NoError(t, err)
	defer rt.Close()

	v, err := rt.Version()
	require.NoError(t, err)
	assert.Equal(t, "NDI SDK TEST 6.1", v)
	assert.False(t, rt.IsSupportedCPU())
	assert.Same(t, lb, rt.Library())

	_, rt2 := newTestRuntime(t, native.WithVersion(""))
	_, err = rt2.Version()
	assert.True(t, errors.Is(err, ErrNullPointer))
}

func TestRuntime_ClosedCannotCreate(t *testing.T) {
	lb := native.NewLoopback()
	rt, err := Acquire(lb)
	require.NoError(t, err)
	rt.Close()

	_, err = NewFinder(rt, DefaultFinderOptions())
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = NewSender(rt, DefaultSenderOptions("x"))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, int64(1), lb.Calls("Initialize"), "a closed runtime does not reinitialize the library")
}

func TestAcquire_NilLibrary(t *testing.T) {
	_, err := Acquire(nil)
	assert.True(t, errors.Is(err, ErrNullPointer))
}

func TestAcquireDefault_WithoutSDK(t *testing.T) {
	if _, err := native.SDK(); err == nil {
		t.Skip("built against the NDI SDK")
	}
	_, err := AcquireDefault()
	assert.True(t, errors.Is(err, ErrInitializationFailed))
	assert.True(t, errors.Is(err, native.ErrUnavailable))
}
