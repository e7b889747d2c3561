package ndi

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// FrameSync turns a receiver's push stream into pull: video repeats the
// last frame and audio is resampled to the caller's clock. It holds a
// reference on the receiver, which stays alive until the FrameSync and
// every frame it produced are released.
type FrameSync struct {
	lib  native.Library
	h    *recvHandle
	inst native.FrameSyncInstance

	refs   atomic.Int64
	closed atomic.Bool
	once   sync.Once
}

// NewFrameSync attaches a frame synchronizer to r. The receiver should not
// be captured from directly while the synchronizer is in use.
func NewFrameSync(r *Receiver) (*FrameSync, error) {
	if !r.h.acquire() {
		return nil, closedError("receiver")
	}
	inst := r.h.lib.FrameSyncCreate(r.h.inst)
	if inst == nil {
		r.h.release()
		return nil, newError(ErrorTypeInitializationFailed, "failed to create frame sync for %s", r.source.Name)
	}
	fs := &FrameSync{lib: r.h.lib, h: r.h, inst: inst}
	fs.refs.Store(1)
	return fs, nil
}

func (fs *FrameSync) acquire() bool {
	if fs.closed.Load() {
		return false
	}
	for {
		n := fs.refs.Load()
		if n <= 0 {
			return false
		}
		if fs.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (fs *FrameSync) release() {
	if fs.refs.Add(-1) == 0 {
		fs.lib.FrameSyncDestroy(fs.inst)
		fs.h.release()
	}
}

// Close detaches the synchronizer. Frames still held keep it alive until
// they are released.
func (fs *FrameSync) Close() {
	fs.once.Do(func() {
		fs.closed.Store(true)
		fs.release()
	})
}

// CaptureVideo returns the current frame for the given field type. ok is
// false until the source has delivered a frame, and for frames this
// package cannot describe.
func (fs *FrameSync) CaptureVideo(scan ScanType) (ref *FrameSyncVideoRef, ok bool) {
	if !scan.Valid() || !fs.acquire() {
		return nil, false
	}
	var raw native.VideoFrame
	fs.lib.FrameSyncCaptureVideo(fs.inst, &raw, int32(scan))
	if raw.Data == nil {
		fs.release()
		return nil, false
	}
	size, err := videoPayloadSize(&raw)
	if err != nil {
		logger().WithError(err).Debug("Dropping frame sync video")
		fs.lib.FrameSyncFreeVideo(fs.inst, &raw)
		fs.release()
		return nil, false
	}

	ref = &FrameSyncVideoRef{fs: fs, raw: raw, size: size}
	runtime.SetFinalizer(ref, (*FrameSyncVideoRef).leaked)
	observe().FrameCaptured(kVideo.String(), size)
	return ref, true
}

// CaptureVideoOwned is CaptureVideo followed by a copy.
func (fs *FrameSync) CaptureVideoOwned(scan ScanType) (*VideoFrame, bool) {
	ref, ok := fs.CaptureVideo(scan)
	if !ok {
		return nil, false
	}
	defer ref.Release()
	f, err := ref.ToOwned()
	return f, err == nil
}

// CaptureAudio pulls samples at sampleRate for the requested channel
// count. Zero values take the source's own settings. Silence is returned
// when the source has nothing queued.
func (fs *FrameSync) CaptureAudio(sampleRate, channels, samples int) (*FrameSyncAudioRef, error) {
	if sampleRate < 0 || channels < 0 || samples < 0 {
		return nil, invalidConfig("frame sync audio parameters cannot be negative (rate %d, channels %d, samples %d)",
			sampleRate, channels, samples)
	}
	if !fs.acquire() {
		return nil, closedError("frame sync")
	}
	var raw native.AudioFrame
	fs.lib.FrameSyncCaptureAudio(fs.inst, &raw, int32(sampleRate), int32(channels), int32(samples))
	floats, err := audioPayloadSize(&raw)
	if err != nil {
		if raw.Data != nil {
			fs.lib.FrameSyncFreeAudio(fs.inst, &raw)
		}
		fs.release()
		return nil, err
	}

	ref := &FrameSyncAudioRef{fs: fs, raw: raw, floats: floats}
	runtime.SetFinalizer(ref, (*FrameSyncAudioRef).leaked)
	observe().FrameCaptured(kAudio.String(), floats*4)
	return ref, nil
}

// CaptureAudioOwned is CaptureAudio followed by a copy.
func (fs *FrameSync) CaptureAudioOwned(sampleRate, channels, samples int) (*AudioFrame, error) {
	ref, err := fs.CaptureAudio(sampleRate, channels, samples)
	if err != nil {
		return nil, err
	}
	defer ref.Release()
	return ref.ToOwned()
}

// AudioQueueDepth reports how many samples are buffered, or 0 once
// closed.
func (fs *FrameSync) AudioQueueDepth() int {
	if !fs.acquire() {
		return 0
	}
	defer fs.release()
	return fs.lib.FrameSyncAudioQueueDepth(fs.inst)
}

// FrameSyncVideoRef is a video frame borrowed from a FrameSync.
type FrameSyncVideoRef struct {
	fs       *FrameSync
	raw      native.VideoFrame
	size     int
	released atomic.Bool
	exposed  atomic.Bool
}

func (r *FrameSyncVideoRef) Width() int            { return int(r.raw.XRes) }
func (r *FrameSyncVideoRef) Height() int           { return int(r.raw.YRes) }
func (r *FrameSyncVideoRef) Format() PixelFormat   { return PixelFormat(r.raw.FourCC) }
func (r *FrameSyncVideoRef) FrameRate() (n, d int) { return int(r.raw.FrameRateN), int(r.raw.FrameRateD) }
func (r *FrameSyncVideoRef) Scan() ScanType        { return ScanType(r.raw.FrameFormatType) }
func (r *FrameSyncVideoRef) LineStride() int       { return int(r.raw.LineStrideOrSize) }
func (r *FrameSyncVideoRef) Timecode() int64       { return r.raw.Timecode }
func (r *FrameSyncVideoRef) Size() int             { return r.size }
func (r *FrameSyncVideoRef) Released() bool        { return r.released.Load() }

func (r *FrameSyncVideoRef) Data() ([]byte, error) {
	if r.released.Load() {
		return nil, ErrFrameReleased
	}
	r.exposed.Store(true)
	return native.View(r.raw.Data, r.size), nil
}

func (r *FrameSyncVideoRef) ToOwned() (*VideoFrame, error) {
	if r.released.Load() {
		return nil, ErrFrameReleased
	}
	return copyVideo(&r.raw)
}

// Release returns the frame to the synchronizer once.
func (r *FrameSyncVideoRef) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(r, nil)
	r.fs.lib.FrameSyncFreeVideo(r.fs.inst, &r.raw)
	r.fs.release()
}

func (r *FrameSyncVideoRef) leaked() {
	log := logger().WithField("kind", "video")
	if r.exposed.Load() {
		log.Warn("Frame sync frame was never released and its data was handed out; leaking it")
		return
	}
	log.Warn("Frame sync frame was never released; freeing it from the finalizer")
	r.Release()
}

// FrameSyncAudioRef is an audio frame borrowed from a FrameSync.
type FrameSyncAudioRef struct {
	fs       *FrameSync
	raw      native.AudioFrame
	floats   int
	released atomic.Bool
	exposed  atomic.Bool
}

func (r *FrameSyncAudioRef) SampleRate() int    { return int(r.raw.SampleRate) }
func (r *FrameSyncAudioRef) Channels() int      { return int(r.raw.NoChannels) }
func (r *FrameSyncAudioRef) Samples() int       { return int(r.raw.NoSamples) }
func (r *FrameSyncAudioRef) ChannelStride() int { return int(r.raw.ChannelStrideOrSize) }
func (r *FrameSyncAudioRef) Timecode() int64    { return r.raw.Timecode }
func (r *FrameSyncAudioRef) Released() bool     { return r.released.Load() }

func (r *FrameSyncAudioRef) Data() ([]float32, error) {
	if r.released.Load() {
		return nil, ErrFrameReleased
	}
	r.exposed.Store(true)
	return audioView(&r.raw, r.floats), nil
}

// ChannelData copies one channel's samples.
func (r *FrameSyncAudioRef) ChannelData(ch int) ([]float32, bool) {
	if r.released.Load() {
		return nil, false
	}
	return channelSamples(audioView(&r.raw, r.floats), ch, r.Channels(), r.Samples(), r.ChannelStride())
}

func (r *FrameSyncAudioRef) ToOwned() (*AudioFrame, error) {
	if r.released.Load() {
		return nil, ErrFrameReleased
	}
	return copyAudio(&r.raw)
}

func (r *FrameSyncAudioRef) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(r, nil)
	r.fs.lib.FrameSyncFreeAudio(r.fs.inst, &r.raw)
	r.fs.release()
}

func (r *FrameSyncAudioRef) leaked() {
	log := logger().WithField("kind", "audio")
	if r.exposed.Load() {
		log.Warn("Frame sync frame was never released and its data was handed out; leaking it")
		return
	}
	log.Warn("Frame sync frame was never released; freeing it from the finalizer")
	r.Release()
}
