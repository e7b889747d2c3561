package ndi

import (
	"bytes"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// TimecodeSynthesize asks the library to generate the timecode.
const TimecodeSynthesize int64 = math.MaxInt64

// Provenance records who owns a frame's payload.
type Provenance int

const (
	// ProvenanceLocal payloads are Go memory reclaimed by the collector.
	ProvenanceLocal Provenance = iota
	// ProvenanceLibrary payloads belong to the library and are returned
	// to it by Close.
	ProvenanceLibrary
)

func (p Provenance) String() string {
	if p == ProvenanceLibrary {
		return "library"
	}
	return "local"
}

// VideoFrame is an owned video frame.
type VideoFrame struct {
	Width       int
	Height      int
	Format      PixelFormat
	FrameRateN  int
	FrameRateD  int
	AspectRatio float32
	Scan        ScanType
	LineStride  int
	Timecode    int64
	Timestamp   int64
	Metadata    string

	data   []byte
	prov   Provenance
	free    func()
	closed  atomic.Bool
	exposed atomic.Bool
}

// Data returns the payload, or nil once the frame is closed.
func (f *VideoFrame) Data() []byte {
	if f.closed.Load() {
		return nil
	}
	f.exposed.Store(true)
	return f.data
}

// Size returns the payload length in bytes.
func (f *VideoFrame) Size() int { return len(f.data) }

func (f *VideoFrame) Provenance() Provenance { return f.prov }

// Close releases the payload. Library payloads are returned to the
// library exactly once; calling Close again is a no-op.
func (f *VideoFrame) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	if f.prov == ProvenanceLibrary {
		runtime.SetFinalizer(f, nil)
		f.free()
	}
	f.data = nil
}

// Borrow returns a send descriptor over the frame's payload.
func (f *VideoFrame) Borrow() BorrowedVideoFrame {
	return BorrowedVideoFrame{
		Width:       f.Width,
		Height:      f.Height,
		Format:      f.Format,
		FrameRateN:  f.FrameRateN,
		FrameRateD:  f.FrameRateD,
		AspectRatio: f.AspectRatio,
		Scan:        f.Scan,
		LineStride:  f.LineStride,
		Timecode:    f.Timecode,
		Metadata:    f.Metadata,
		data:        f.Data(),
	}
}

func videoHeader(raw *native.VideoFrame) *VideoFrame {
	return &VideoFrame{
		Width:       int(raw.XRes),
		Height:      int(raw.YRes),
		Format:      PixelFormat(raw.FourCC),
		FrameRateN:  int(raw.FrameRateN),
		FrameRateD:  int(raw.FrameRateD),
		AspectRatio: raw.PictureAspectRatio,
		Scan:        ScanType(raw.FrameFormatType),
		LineStride:  int(raw.LineStrideOrSize),
		Timecode:    raw.Timecode,
		Timestamp:   raw.Timestamp,
		Metadata:    native.GoString(raw.Metadata),
	}
}

// copyVideo copies a validated record into local memory.
func copyVideo(raw *native.VideoFrame) (*VideoFrame, error) {
	size, err := videoPayloadSize(raw)
	if err != nil {
		return nil, err
	}
	f := videoHeader(raw)
	f.data = bytes.Clone(native.View(raw.Data, size))
	f.prov = ProvenanceLocal
	return f, nil
}

// adoptVideo wraps library memory without copying; free returns it.
func adoptVideo(raw *native.VideoFrame, size int, free func()) *VideoFrame {
	f := videoHeader(raw)
	f.data = native.View(raw.Data, size)
	f.prov = ProvenanceLibrary
	f.free = free
	runtime.SetFinalizer(f, func(f *VideoFrame) {
		if f.closed.Load() {
			return
		}
		log := logger().WithField("kind", "video")
		if f.exposed.Load() {
			log.Warn("Adopted frame was never closed and its data was handed out; leaking it")
			return
		}
		log.Warn("Adopted frame was never closed; freeing it from the finalizer")
		f.Close()
	})
	return f
}

// VideoFrameBuilder builds local video frames for sending.
type VideoFrameBuilder struct {
	width, height int
	format        PixelFormat
	rateN, rateD  int
	aspect        float32
	scan          ScanType
	timecode      int64
	metadata      string
	data          []byte
}

// NewVideoFrameBuilder starts from 1920x1080 BGRA at 60 fps, 16:9,
// progressive.
func NewVideoFrameBuilder() *VideoFrameBuilder {
	return &VideoFrameBuilder{
		width:    1920,
		height:   1080,
		format:   PixelFormatBGRA,
		rateN:    60,
		rateD:    1,
		aspect:   16.0 / 9.0,
		scan:     ScanProgressive,
		timecode: TimecodeSynthesize,
	}
}

func (b *VideoFrameBuilder) Resolution(width, height int) *VideoFrameBuilder {
	b.width, b.height = width, height
	return b
}

func (b *VideoFrameBuilder) Format(f PixelFormat) *VideoFrameBuilder {
	b.format = f
	return b
}

func (b *VideoFrameBuilder) FrameRate(n, d int) *VideoFrameBuilder {
	b.rateN, b.rateD = n, d
	return b
}

func (b *VideoFrameBuilder) AspectRatio(a float32) *VideoFrameBuilder {
	b.aspect = a
	return b
}

func (b *VideoFrameBuilder) Scan(s ScanType) *VideoFrameBuilder {
	b.scan = s
	return b
}

func (b *VideoFrameBuilder) Timecode(tc int64) *VideoFrameBuilder {
	b.timecode = tc
	return b
}

func (b *VideoFrameBuilder) Metadata(m string) *VideoFrameBuilder {
	b.metadata = m
	return b
}

// Data supplies the payload. It is used as is, not copied.
func (b *VideoFrameBuilder) Data(data []byte) *VideoFrameBuilder {
	b.data = data
	return b
}

// Build validates the configuration. Without Data the payload is zeroed.
func (b *VideoFrameBuilder) Build() (*VideoFrame, error) {
	if b.width <= 0 || b.height <= 0 {
		return nil, invalidConfig("invalid resolution %dx%d", b.width, b.height)
	}
	if !b.format.Valid() {
		return nil, invalidConfig("unknown pixel format %s", b.format)
	}
	if b.rateN <= 0 || b.rateD <= 0 {
		return nil, invalidConfig("invalid frame rate %d/%d", b.rateN, b.rateD)
	}
	if !b.scan.Valid() {
		return nil, invalidConfig("unknown scan type %d", b.scan)
	}

	stride := b.format.LineStride(b.width)
	size := b.format.BufferSize(stride, b.height)
	if size <= 0 {
		return nil, invalidFrame("video frame has zero size")
	}
	if size > MaxVideoBytes {
		return nil, invalidFrame("video frame size %d exceeds maximum %d", size, MaxVideoBytes)
	}

	data := b.data
	switch {
	case data == nil:
		data = make([]byte, size)
	case int64(len(data)) < size:
		return nil, invalidConfig("video data is %d bytes, %s %dx%d needs %d", len(data), b.format, b.width, b.height, size)
	default:
		data = data[:size]
	}

	return &VideoFrame{
		Width:       b.width,
		Height:      b.height,
		Format:      b.format,
		FrameRateN:  b.rateN,
		FrameRateD:  b.rateD,
		AspectRatio: b.aspect,
		Scan:        b.scan,
		LineStride:  stride,
		Timecode:    b.timecode,
		Metadata:    b.metadata,
		data:        data,
		prov:        ProvenanceLocal,
	}, nil
}

// BorrowedVideoFrame describes a caller-owned buffer to send without
// copying. The buffer must not be modified while a send using it is in
// flight.
type BorrowedVideoFrame struct {
	Width       int
	Height      int
	Format      PixelFormat
	FrameRateN  int
	FrameRateD  int
	AspectRatio float32
	Scan        ScanType
	LineStride  int
	Timecode    int64
	Metadata    string

	data []byte
}

// BorrowVideoFrame describes data as a progressive 16:9 frame with the
// format's natural line stride.
func BorrowVideoFrame(data []byte, width, height int, format PixelFormat, rateN, rateD int) (BorrowedVideoFrame, error) {
	if !format.Valid() {
		return BorrowedVideoFrame{}, invalidConfig("unknown pixel format %s", format)
	}
	if width <= 0 || height <= 0 {
		return BorrowedVideoFrame{}, invalidConfig("invalid resolution %dx%d", width, height)
	}
	stride := format.LineStride(width)
	if size := format.BufferSize(stride, height); int64(len(data)) < size {
		return BorrowedVideoFrame{}, invalidConfig("video data is %d bytes, %s %dx%d needs %d", len(data), format, width, height, size)
	}
	return BorrowedVideoFrame{
		Width:       width,
		Height:      height,
		Format:      format,
		FrameRateN:  rateN,
		FrameRateD:  rateD,
		AspectRatio: 16.0 / 9.0,
		Scan:        ScanProgressive,
		LineStride:  stride,
		Timecode:    TimecodeSynthesize,
		data:        data,
	}, nil
}

// Data returns the described buffer.
func (f BorrowedVideoFrame) Data() []byte { return f.data }

// record builds the native descriptor. The returned metadata buffer backs
// the record's Metadata pointer and must stay reachable for the call.
func (f BorrowedVideoFrame) record() (native.VideoFrame, []byte, error) {
	if len(f.data) == 0 {
		return native.VideoFrame{}, nil, invalidFrame("video frame has null data")
	}
	rec := native.VideoFrame{
		XRes:               int32(f.Width),
		YRes:               int32(f.Height),
		FourCC:             uint32(f.Format),
		FrameRateN:         int32(f.FrameRateN),
		FrameRateD:         int32(f.FrameRateD),
		PictureAspectRatio: f.AspectRatio,
		FrameFormatType:    int32(f.Scan),
		Timecode:           f.Timecode,
		Data:               unsafe.Pointer(&f.data[0]),
		LineStrideOrSize:   int32(f.LineStride),
	}
	meta, err := cMetadata(f.Metadata)
	if err != nil {
		return native.VideoFrame{}, nil, err
	}
	if meta != nil {
		rec.Metadata = unsafe.Pointer(&meta[0])
	}
	return rec, meta, nil
}

// cMetadata converts optional text to a NUL terminated buffer.
func cMetadata(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, ok := native.NullTerminated(s)
	if !ok {
		return nil, newError(ErrorTypeInvalidCString, "metadata contains a NUL byte")
	}
	return b, nil
}
