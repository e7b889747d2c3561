package ndi

import (
	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// Borrowed views over captured frames. A view reads library memory in
// place. Data fails with ErrFrameReleased once the view is released, and a
// slice obtained from it must not be used after Release. A view dropped
// without Release after Data was called is leaked rather than freed. The
// usual pattern is
//
//	ref, err := recv.CaptureVideoRef(ctx, time.Second)
//	if err != nil || ref == nil { ... }
//	defer ref.Release()
//
// Views are not safe for concurrent Release and use.

// VideoFrameRef is a borrowed captured video frame.
type VideoFrameRef struct {
	g    *guard[native.VideoFrame]
	size int
}

func newVideoFrameRef(g *guard[native.VideoFrame]) (*VideoFrameRef, error) {
	size, err := videoPayloadSize(&g.raw)
	if err != nil {
		g.Release()
		return nil, err
	}
	observe().FrameCaptured(kVideo.String(), size)
	return &VideoFrameRef{g: g, size: size}, nil
}

func (r *VideoFrameRef) Width() int            { return int(r.g.raw.XRes) }
func (r *VideoFrameRef) Height() int           { return int(r.g.raw.YRes) }
func (r *VideoFrameRef) Format() PixelFormat   { return PixelFormat(r.g.raw.FourCC) }
func (r *VideoFrameRef) FrameRate() (n, d int) { return int(r.g.raw.FrameRateN), int(r.g.raw.FrameRateD) }
func (r *VideoFrameRef) AspectRatio() float32  { return r.g.raw.PictureAspectRatio }
func (r *VideoFrameRef) Scan() ScanType        { return ScanType(r.g.raw.FrameFormatType) }
func (r *VideoFrameRef) LineStride() int       { return int(r.g.raw.LineStrideOrSize) }
func (r *VideoFrameRef) Timecode() int64       { return r.g.raw.Timecode }
func (r *VideoFrameRef) Timestamp() int64      { return r.g.raw.Timestamp }
func (r *VideoFrameRef) Size() int             { return r.size }
func (r *VideoFrameRef) Released() bool        { return !r.g.live() }

// Metadata copies the frame's metadata text; it is empty after release.
func (r *VideoFrameRef) Metadata() string {
	if !r.g.live() {
		return ""
	}
	return native.GoString(r.g.raw.Metadata)
}

// Data returns the payload without copying.
func (r *VideoFrameRef) Data() ([]byte, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	r.g.expose()
	return native.View(r.g.raw.Data, r.size), nil
}

// ToOwned copies the frame into Go memory. The view stays valid.
func (r *VideoFrameRef) ToOwned() (*VideoFrame, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	return copyVideo(&r.g.raw)
}

// Adopt converts the view into an owned frame without copying. The view
// is consumed and the frame's Close returns the memory to the library.
func (r *VideoFrameRef) Adopt() (*VideoFrame, error) {
	raw, free, ok := r.g.detach()
	if !ok {
		return nil, ErrFrameReleased
	}
	return adoptVideo(&raw, r.size, free), nil
}

// Release returns the frame to the library. It is safe to call more than
// once.
func (r *VideoFrameRef) Release() { r.g.Release() }

// AudioFrameRef is a borrowed captured audio frame.
type AudioFrameRef struct {
	g      *guard[native.AudioFrame]
	floats int
}

func newAudioFrameRef(g *guard[native.AudioFrame]) (*AudioFrameRef, error) {
	floats, err := audioPayloadSize(&g.raw)
	if err != nil {
		g.Release()
		return nil, err
	}
	observe().FrameCaptured(kAudio.String(), floats*4)
	return &AudioFrameRef{g: g, floats: floats}, nil
}

func (r *AudioFrameRef) SampleRate() int     { return int(r.g.raw.SampleRate) }
func (r *AudioFrameRef) Channels() int       { return int(r.g.raw.NoChannels) }
func (r *AudioFrameRef) Samples() int        { return int(r.g.raw.NoSamples) }
func (r *AudioFrameRef) Format() AudioFormat { return AudioFormat(r.g.raw.FourCC) }
func (r *AudioFrameRef) ChannelStride() int  { return int(r.g.raw.ChannelStrideOrSize) }
func (r *AudioFrameRef) Timecode() int64     { return r.g.raw.Timecode }
func (r *AudioFrameRef) Timestamp() int64    { return r.g.raw.Timestamp }
func (r *AudioFrameRef) Released() bool      { return !r.g.live() }

func (r *AudioFrameRef) Metadata() string {
	if !r.g.live() {
		return ""
	}
	return native.GoString(r.g.raw.Metadata)
}

// Data returns the samples without copying.
func (r *AudioFrameRef) Data() ([]float32, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	r.g.expose()
	return audioView(&r.g.raw, r.floats), nil
}

// ChannelData copies one channel's samples.
func (r *AudioFrameRef) ChannelData(ch int) ([]float32, bool) {
	if !r.g.live() {
		return nil, false
	}
	return channelSamples(audioView(&r.g.raw, r.floats), ch, r.Channels(), r.Samples(), r.ChannelStride())
}

func (r *AudioFrameRef) ToOwned() (*AudioFrame, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	return copyAudio(&r.g.raw)
}

func (r *AudioFrameRef) Adopt() (*AudioFrame, error) {
	raw, free, ok := r.g.detach()
	if !ok {
		return nil, ErrFrameReleased
	}
	return adoptAudio(&raw, r.floats, free), nil
}

func (r *AudioFrameRef) Release() { r.g.Release() }

// MetadataFrameRef is a borrowed captured metadata frame.
type MetadataFrameRef struct {
	g *guard[native.MetadataFrame]
}

func newMetadataFrameRef(g *guard[native.MetadataFrame]) (*MetadataFrameRef, error) {
	if g.raw.Data == nil {
		g.Release()
		return nil, invalidFrame("metadata frame has null data")
	}
	observe().FrameCaptured(kMetadata.String(), native.StrLen(g.raw.Data))
	return &MetadataFrameRef{g: g}, nil
}

func (r *MetadataFrameRef) Timecode() int64 { return r.g.raw.Timecode }
func (r *MetadataFrameRef) Released() bool  { return !r.g.live() }

// Data returns the text bytes, without the terminator, without copying.
func (r *MetadataFrameRef) Data() ([]byte, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	r.g.expose()
	return native.View(r.g.raw.Data, native.StrLen(r.g.raw.Data)), nil
}

// String copies the text; it is empty after release.
func (r *MetadataFrameRef) String() string {
	if !r.g.live() {
		return ""
	}
	return native.GoString(r.g.raw.Data)
}

func (r *MetadataFrameRef) ToOwned() (*MetadataFrame, error) {
	if !r.g.live() {
		return nil, ErrFrameReleased
	}
	return copyMetadata(&r.g.raw)
}

func (r *MetadataFrameRef) Release() { r.g.Release() }
