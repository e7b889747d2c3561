package ndi

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

func newTestFrameSync(t *testing.T, opts ...native.LoopbackOption) (*native.Loopback, *Receiver, *FrameSync) {
	t.Helper()
	lb, rt := newTestRuntime(t, opts...)
	r := newTestReceiver(t, rt, testSource)
	fs, err := NewFrameSync(r)
	require.NoError(t, err)
	t.Cleanup(fs.Close)
	return lb, r, fs
}

func TestFrameSync_NoVideoUntilFirstFrame(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)

	ref, ok := fs.CaptureVideo(ScanProgressive)
	assert.False(t, ok)
	assert.Nil(t, ref)
	assert.Zero(t, lb.Calls("FrameSyncFreeVideo"), "an empty frame is not freed")

	_, ok = fs.CaptureVideo(ScanType(9))
	assert.False(t, ok)
}

func TestFrameSync_RepeatsLastFrame(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)
	step := native.VideoStep(4, 2, native.FourCCBGRA, 16)
	lb.Script(testSource, step)

	first, ok := fs.CaptureVideo(ScanProgressive)
	require.True(t, ok)
	assert.Equal(t, 4, first.Width())
	assert.Equal(t, 2, first.Height())
	assert.Equal(t, PixelFormatBGRA, first.Format())
	assert.Equal(t, 32, first.Size())
	data, err := first.Data()
	require.NoError(t, err)
	assert.Equal(t, step.Payload, data)
	first.Release()
	first.Release()

	again, ok := fs.CaptureVideoOwned(ScanProgressive)
	require.True(t, ok)
	assert.Equal(t, step.Payload, again.Data())

	assert.Equal(t, int64(2), lb.Calls("FrameSyncFreeVideo"))
	assert.Zero(t, lb.Outstanding())
	assert.Zero(t, lb.Violations())

	_, err = first.Data()
	assert.True(t, errors.Is(err, ErrFrameReleased))
	assert.True(t, first.Released())
}

func TestFrameSync_InvalidVideoIsFreed(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)
	lb.Script(testSource, native.VideoStep(4, 2, 0x31637661, 16))

	_, ok := fs.CaptureVideo(ScanProgressive)
	assert.False(t, ok)
	assert.Equal(t, int64(1), lb.Calls("FrameSyncFreeVideo"))
	assert.Zero(t, lb.Outstanding())
}

func TestFrameSync_AudioSilence(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)

	ref, err := fs.CaptureAudio(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 48000, ref.SampleRate())
	assert.Equal(t, 2, ref.Channels())
	assert.Equal(t, 1024, ref.Samples())
	assert.Equal(t, 4096, ref.ChannelStride())

	samples, err := ref.Data()
	require.NoError(t, err)
	assert.Len(t, samples, 2048)
	for _, s := range samples {
		require.Zero(t, s)
	}
	right, ok := ref.ChannelData(1)
	require.True(t, ok)
	assert.Len(t, right, 1024)
	ref.Release()

	_, ok = ref.ChannelData(0)
	assert.False(t, ok)

	owned, err := fs.CaptureAudioOwned(44100, 1, 256)
	require.NoError(t, err)
	assert.Equal(t, 44100, owned.SampleRate)
	assert.Len(t, owned.Data(), 256)

	assert.Equal(t, int64(2), lb.Calls("FrameSyncFreeAudio"))
	assert.Zero(t, lb.Outstanding())
}

func TestFrameSync_RejectsNegativeAudioParameters(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)

	tests := []struct {
		name                      string
		rate, channels, samples int
	}{
		{"rate", -1, 2, 1024},
		{"channels", 48000, -2, 1024},
		{"samples", 48000, 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fs.CaptureAudio(tt.rate, tt.channels, tt.samples)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), "got %v", err)
		})
	}
	assert.Zero(t, lb.Calls("FrameSyncCaptureAudio"))
}

func TestFrameSync_AudioQueueDepth(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)
	lb.SetAudioQueueDepth(480)
	assert.Equal(t, 480, fs.AudioQueueDepth())

	fs.Close()
	assert.Zero(t, fs.AudioQueueDepth())
	_, err := fs.CaptureAudio(0, 0, 0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestFrameSync_CloseWithOutstandingFrames(t *testing.T) {
	lb, r, fs := newTestFrameSync(t)
	lb.SetIdle(testSource, native.VideoStep(4, 4, native.FourCCUYVY, 8))

	video, ok := fs.CaptureVideo(ScanProgressive)
	require.True(t, ok)
	audio, err := fs.CaptureAudio(0, 1, 16)
	require.NoError(t, err)

	fs.Close()
	r.Close()
	assert.Zero(t, lb.Calls("FrameSyncDestroy"), "outstanding frames keep the synchronizer alive")
	assert.Zero(t, lb.Calls("RecvDestroy"))

	_, ok = fs.CaptureVideo(ScanProgressive)
	assert.False(t, ok)

	video.Release()
	assert.Zero(t, lb.Calls("FrameSyncDestroy"))
	audio.Release()

	assert.Equal(t, int64(1), lb.Calls("FrameSyncDestroy"))
	assert.Equal(t, int64(1), lb.Calls("RecvDestroy"))
	assert.Zero(t, lb.LiveHandles())
	assert.Zero(t, lb.Violations())
}

func TestNewFrameSync_ClosedReceiver(t *testing.T) {
	lb, rt := newTestRuntime(t)
	r := newTestReceiver(t, rt, testSource)
	r.Close()

	_, err := NewFrameSync(r)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Zero(t, lb.Calls("FrameSyncCreate"))
}

func TestFrameSync_FinalizerLeaksExposedFrames(t *testing.T) {
	lb, _, fs := newTestFrameSync(t)
	lb.SetIdle(testSource, native.VideoStep(4, 2, native.FourCCBGRA, 16))

	held := func() []byte {
		ref, ok := fs.CaptureVideo(ScanProgressive)
		require.True(t, ok)
		data, err := ref.Data()
		require.NoError(t, err)
		return data
	}()
	func() {
		_, ok := fs.CaptureVideo(ScanProgressive)
		require.True(t, ok)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return lb.Calls("FrameSyncFreeVideo") == 1
	}, 2*time.Second, 10*time.Millisecond)
	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, int64(1), lb.Calls("FrameSyncFreeVideo"))
	assert.Len(t, held, 32)
	runtime.KeepAlive(held)
}
