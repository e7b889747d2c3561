package ndi

import (
	"fmt"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// Payload sanity bounds.
const (
	MaxVideoBytes = 100 << 20
	MaxAudioBytes = 64 << 20
)

// PixelFormat is a video FourCC.
type PixelFormat uint32

const (
	PixelFormatUYVY PixelFormat = PixelFormat(native.FourCCUYVY)
	PixelFormatUYVA PixelFormat = PixelFormat(native.FourCCUYVA)
	PixelFormatP216 PixelFormat = PixelFormat(native.FourCCP216)
	PixelFormatPA16 PixelFormat = PixelFormat(native.FourCCPA16)
	PixelFormatYV12 PixelFormat = PixelFormat(native.FourCCYV12)
	PixelFormatI420 PixelFormat = PixelFormat(native.FourCCI420)
	PixelFormatNV12 PixelFormat = PixelFormat(native.FourCCNV12)
	PixelFormatBGRA PixelFormat = PixelFormat(native.FourCCBGRA)
	PixelFormatBGRX PixelFormat = PixelFormat(native.FourCCBGRX)
	PixelFormatRGBA PixelFormat = PixelFormat(native.FourCCRGBA)
	PixelFormatRGBX PixelFormat = PixelFormat(native.FourCCRGBX)
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUYVY: "UYVY",
	PixelFormatUYVA: "UYVA",
	PixelFormatP216: "P216",
	PixelFormatPA16: "PA16",
	PixelFormatYV12: "YV12",
	PixelFormatI420: "I420",
	PixelFormatNV12: "NV12",
	PixelFormatBGRA: "BGRA",
	PixelFormatBGRX: "BGRX",
	PixelFormatRGBA: "RGBA",
	PixelFormatRGBX: "RGBX",
}

// ParsePixelFormat looks a format up by name, e.g. "BGRA".
func ParsePixelFormat(name string) (PixelFormat, error) {
	for f, n := range pixelFormatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, invalidConfig("unknown pixel format %q", name)
}

func (f PixelFormat) Valid() bool {
	_, ok := pixelFormatNames[f]
	return ok
}

func (f PixelFormat) String() string {
	if n, ok := pixelFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FourCC(0x%08X)", uint32(f))
}

// LineStride returns the bytes per line for width pixels. Planar formats
// report the luma stride.
func (f PixelFormat) LineStride(width int) int {
	switch f {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatRGBA, PixelFormatRGBX, PixelFormatP216, PixelFormatPA16:
		return width * 4
	case PixelFormatUYVY:
		return width * 2
	case PixelFormatUYVA:
		return width * 3
	case PixelFormatYV12, PixelFormatI420, PixelFormatNV12:
		return width
	default:
		return 0
	}
}

// BufferSize returns the payload length for the given stride and height.
func (f PixelFormat) BufferSize(stride, height int) int64 {
	return native.VideoDataSize(uint32(f), int32(stride), int32(height))
}

// rgb32 reports whether every pixel is four bytes of 8-bit RGB(A).
func (f PixelFormat) rgb32() bool {
	switch f {
	case PixelFormatBGRA, PixelFormatBGRX, PixelFormatRGBA, PixelFormatRGBX:
		return true
	}
	return false
}

// AudioFormat is an audio FourCC.
type AudioFormat uint32

// AudioFormatFLTP is 32-bit float, planar or interleaved per channel stride.
const AudioFormatFLTP AudioFormat = AudioFormat(native.FourCCFLTP)

func (f AudioFormat) Valid() bool { return f == AudioFormatFLTP }

func (f AudioFormat) String() string {
	if f == AudioFormatFLTP {
		return "FLTP"
	}
	return fmt.Sprintf("FourCC(0x%08X)", uint32(f))
}

// ScanType is the frame format type.
type ScanType int32

const (
	ScanInterlaced  ScanType = 0
	ScanProgressive ScanType = 1
	ScanField0      ScanType = 2
	ScanField1      ScanType = 3
)

func (s ScanType) Valid() bool {
	return s >= ScanInterlaced && s <= ScanField1
}

func (s ScanType) String() string {
	switch s {
	case ScanInterlaced:
		return "interlaced"
	case ScanProgressive:
		return "progressive"
	case ScanField0:
		return "field0"
	case ScanField1:
		return "field1"
	default:
		return fmt.Sprintf("ScanType(%d)", int32(s))
	}
}

// AudioLayout selects planar or interleaved sample order.
type AudioLayout int

const (
	Planar AudioLayout = iota
	Interleaved
)

// videoPayloadSize validates a raw video record and returns its payload
// length.
func videoPayloadSize(raw *native.VideoFrame) (int, error) {
	if raw.Data == nil {
		return 0, invalidFrame("video frame has null data")
	}
	pf := PixelFormat(raw.FourCC)
	if !pf.Valid() {
		return 0, invalidFrame("unknown video FourCC 0x%08X", raw.FourCC)
	}
	if raw.XRes <= 0 || raw.YRes <= 0 || raw.LineStrideOrSize <= 0 {
		return 0, invalidFrame("video frame has no valid line stride or data size (%dx%d, stride %d)",
			raw.XRes, raw.YRes, raw.LineStrideOrSize)
	}
	size := pf.BufferSize(int(raw.LineStrideOrSize), int(raw.YRes))
	if size <= 0 {
		return 0, invalidFrame("video frame has zero size")
	}
	if size > MaxVideoBytes {
		return 0, invalidFrame("video frame size %d exceeds maximum %d", size, MaxVideoBytes)
	}
	if !ScanType(raw.FrameFormatType).Valid() {
		return 0, invalidFrame("unknown scan type %d", raw.FrameFormatType)
	}
	return int(size), nil
}

// audioPayloadSize validates a raw audio record and returns the number of
// float32 samples its payload spans.
func audioPayloadSize(raw *native.AudioFrame) (int, error) {
	if raw.Data == nil {
		return 0, invalidFrame("audio frame has null data")
	}
	if raw.SampleRate <= 0 || raw.NoChannels <= 0 || raw.NoSamples <= 0 {
		return 0, invalidFrame("audio frame has invalid shape (rate %d, channels %d, samples %d)",
			raw.SampleRate, raw.NoChannels, raw.NoSamples)
	}
	if !AudioFormat(raw.FourCC).Valid() {
		return 0, invalidFrame("unknown audio FourCC 0x%08X", raw.FourCC)
	}
	if raw.ChannelStrideOrSize < 0 {
		return 0, invalidFrame("audio frame has negative channel stride %d", raw.ChannelStrideOrSize)
	}

	channels, samples := int64(raw.NoChannels), int64(raw.NoSamples)
	floats := channels * samples
	if stride := int64(raw.ChannelStrideOrSize); stride > 0 {
		if stride < samples*4 {
			return 0, invalidFrame("audio channel stride %d is shorter than %d samples", stride, samples)
		}
		floats = (stride/4)*(channels-1) + samples
	}
	if floats <= 0 || floats > (1<<40) {
		return 0, invalidFrame("audio frame size overflows")
	}
	if floats*4 > MaxAudioBytes {
		return 0, invalidFrame("audio frame size %d exceeds maximum %d", floats*4, MaxAudioBytes)
	}
	return int(floats), nil
}
