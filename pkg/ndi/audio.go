package ndi

import (
	"runtime"
	"slices"
	"sync/atomic"
	"unsafe"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// AudioFrame is an owned audio frame of 32-bit float samples.
//
// ChannelStride is the distance between channel planes in bytes. Zero
// means the samples are interleaved.
type AudioFrame struct {
	SampleRate    int
	Channels      int
	Samples       int
	Format        AudioFormat
	ChannelStride int
	Timecode      int64
	Timestamp     int64
	Metadata      string

	data   []float32
	prov   Provenance
	free    func()
	closed  atomic.Bool
	exposed atomic.Bool
}

// Data returns the samples, or nil once the frame is closed.
func (f *AudioFrame) Data() []float32 {
	if f.closed.Load() {
		return nil
	}
	f.exposed.Store(true)
	return f.data
}

func (f *AudioFrame) Provenance() Provenance { return f.prov }

// Layout reports how channels are arranged in Data.
func (f *AudioFrame) Layout() AudioLayout {
	if f.ChannelStride == 0 {
		return Interleaved
	}
	return Planar
}

// ChannelData returns a copy of one channel's samples. It reports false
// when ch is out of range or the frame is closed.
func (f *AudioFrame) ChannelData(ch int) ([]float32, bool) {
	if f.closed.Load() {
		return nil, false
	}
	return channelSamples(f.data, ch, f.Channels, f.Samples, f.ChannelStride)
}

// Close releases the samples; see VideoFrame.Close.
func (f *AudioFrame) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	if f.prov == ProvenanceLibrary {
		runtime.SetFinalizer(f, nil)
		f.free()
	}
	f.data = nil
}

func channelSamples(data []float32, ch, channels, samples, stride int) ([]float32, bool) {
	if ch < 0 || ch >= channels || samples <= 0 || data == nil {
		return nil, false
	}
	out := make([]float32, 0, samples)
	if stride == 0 {
		for i := ch; i < len(data) && len(out) < samples; i += channels {
			out = append(out, data[i])
		}
		return out, true
	}
	start := ch * (stride / 4)
	end := start + samples
	if end > len(data) {
		return nil, false
	}
	return append(out, data[start:end]...), true
}

func audioHeader(raw *native.AudioFrame) *AudioFrame {
	return &AudioFrame{
		SampleRate:    int(raw.SampleRate),
		Channels:      int(raw.NoChannels),
		Samples:       int(raw.NoSamples),
		Format:        AudioFormat(raw.FourCC),
		ChannelStride: int(raw.ChannelStrideOrSize),
		Timecode:      raw.Timecode,
		Timestamp:     raw.Timestamp,
		Metadata:      native.GoString(raw.Metadata),
	}
}

func audioView(raw *native.AudioFrame, floats int) []float32 {
	return unsafe.Slice((*float32)(raw.Data), floats)
}

func copyAudio(raw *native.AudioFrame) (*AudioFrame, error) {
	floats, err := audioPayloadSize(raw)
	if err != nil {
		return nil, err
	}
	f := audioHeader(raw)
	f.data = slices.Clone(audioView(raw, floats))
	f.prov = ProvenanceLocal
	return f, nil
}

func adoptAudio(raw *native.AudioFrame, floats int, free func()) *AudioFrame {
	f := audioHeader(raw)
	f.data = audioView(raw, floats)
	f.prov = ProvenanceLibrary
	f.free = free
	runtime.SetFinalizer(f, func(f *AudioFrame) {
		if f.closed.Load() {
			return
		}
		log := logger().WithField("kind", "audio")
		if f.exposed.Load() {
			log.Warn("Adopted frame was never closed and its data was handed out; leaking it")
			return
		}
		log.Warn("Adopted frame was never closed; freeing it from the finalizer")
		f.Close()
	})
	return f
}

// AudioFrameBuilder builds local audio frames for sending.
type AudioFrameBuilder struct {
	sampleRate int
	channels   int
	samples    int
	layout     AudioLayout
	timecode   int64
	metadata   string
	data       []float32
}

// NewAudioFrameBuilder starts from 48 kHz stereo, 1024 planar samples.
func NewAudioFrameBuilder() *AudioFrameBuilder {
	return &AudioFrameBuilder{
		sampleRate: 48000,
		channels:   2,
		samples:    1024,
		layout:     Planar,
		timecode:   TimecodeSynthesize,
	}
}

func (b *AudioFrameBuilder) SampleRate(rate int) *AudioFrameBuilder {
	b.sampleRate = rate
	return b
}

func (b *AudioFrameBuilder) Channels(n int) *AudioFrameBuilder {
	b.channels = n
	return b
}

func (b *AudioFrameBuilder) Samples(n int) *AudioFrameBuilder {
	b.samples = n
	return b
}

func (b *AudioFrameBuilder) Layout(l AudioLayout) *AudioFrameBuilder {
	b.layout = l
	return b
}

func (b *AudioFrameBuilder) Timecode(tc int64) *AudioFrameBuilder {
	b.timecode = tc
	return b
}

func (b *AudioFrameBuilder) Metadata(m string) *AudioFrameBuilder {
	b.metadata = m
	return b
}

// Data supplies the samples in the builder's layout. It is used as is.
func (b *AudioFrameBuilder) Data(data []float32) *AudioFrameBuilder {
	b.data = data
	return b
}

// Build validates the configuration. Without Data the samples are silent.
func (b *AudioFrameBuilder) Build() (*AudioFrame, error) {
	if b.sampleRate <= 0 {
		return nil, invalidConfig("invalid sample rate %d", b.sampleRate)
	}
	if b.channels <= 0 {
		return nil, invalidConfig("invalid channel count %d", b.channels)
	}
	if b.samples <= 0 {
		return nil, invalidConfig("invalid sample count %d", b.samples)
	}
	n := int64(b.channels) * int64(b.samples)
	if n*4 > MaxAudioBytes {
		return nil, invalidConfig("audio frame size %d exceeds maximum %d", n*4, MaxAudioBytes)
	}

	data := b.data
	switch {
	case data == nil:
		data = make([]float32, n)
	case int64(len(data)) < n:
		return nil, invalidConfig("audio data has %d samples, %d channels of %d need %d", len(data), b.channels, b.samples, n)
	default:
		data = data[:n]
	}

	stride := 0
	if b.layout == Planar {
		stride = b.samples * 4
	}
	return &AudioFrame{
		SampleRate:    b.sampleRate,
		Channels:      b.channels,
		Samples:       b.samples,
		Format:        AudioFormatFLTP,
		ChannelStride: stride,
		Timecode:      b.timecode,
		Metadata:      b.metadata,
		data:          data,
		prov:          ProvenanceLocal,
	}, nil
}

func (f *AudioFrame) record() (native.AudioFrame, []byte, error) {
	data := f.Data()
	if len(data) == 0 {
		return native.AudioFrame{}, nil, invalidFrame("audio frame has null data")
	}
	rec := native.AudioFrame{
		SampleRate:          int32(f.SampleRate),
		NoChannels:          int32(f.Channels),
		NoSamples:           int32(f.Samples),
		Timecode:            f.Timecode,
		FourCC:              uint32(f.Format),
		Data:                unsafe.Pointer(&data[0]),
		ChannelStrideOrSize: int32(f.ChannelStride),
	}
	meta, err := cMetadata(f.Metadata)
	if err != nil {
		return native.AudioFrame{}, nil, err
	}
	if meta != nil {
		rec.Metadata = unsafe.Pointer(&meta[0])
	}
	return rec, meta, nil
}
