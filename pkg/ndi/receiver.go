package ndi

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// ColorFormat selects the pixel formats a receiver asks for.
type ColorFormat int32

const (
	ColorBGRXBGRA ColorFormat = 0
	ColorUYVYBGRA ColorFormat = 1
	ColorRGBXRGBA ColorFormat = 2
	ColorUYVYRGBA ColorFormat = 3
	ColorFastest  ColorFormat = 100
	ColorBest     ColorFormat = 101
)

var colorFormatNames = map[ColorFormat]string{
	ColorBGRXBGRA: "bgrx_bgra",
	ColorUYVYBGRA: "uyvy_bgra",
	ColorRGBXRGBA: "rgbx_rgba",
	ColorUYVYRGBA: "uyvy_rgba",
	ColorFastest:  "fastest",
	ColorBest:     "best",
}

func (c ColorFormat) String() string {
	if n, ok := colorFormatNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ColorFormat(%d)", int32(c))
}

// ParseColorFormat accepts the names printed by String, case-insensitively.
func ParseColorFormat(s string) (ColorFormat, error) {
	for c, n := range colorFormatNames {
		if strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return 0, invalidConfig("unknown color format %q", s)
}

// Bandwidth selects how much of a source a receiver pulls.
type Bandwidth int32

const (
	BandwidthMetadataOnly Bandwidth = -10
	BandwidthAudioOnly    Bandwidth = 10
	BandwidthLowest       Bandwidth = 0
	BandwidthHighest      Bandwidth = 100
)

var bandwidthNames = map[Bandwidth]string{
	BandwidthMetadataOnly: "metadata_only",
	BandwidthAudioOnly:    "audio_only",
	BandwidthLowest:       "lowest",
	BandwidthHighest:      "highest",
}

func (b Bandwidth) String() string {
	if n, ok := bandwidthNames[b]; ok {
		return n
	}
	return fmt.Sprintf("Bandwidth(%d)", int32(b))
}

func ParseBandwidth(s string) (Bandwidth, error) {
	for b, n := range bandwidthNames {
		if strings.EqualFold(n, s) {
			return b, nil
		}
	}
	return 0, invalidConfig("unknown bandwidth %q", s)
}

// ReceiverOptions configures a receiver.
type ReceiverOptions struct {
	Source           Source
	Color            ColorFormat
	Bandwidth        Bandwidth
	AllowVideoFields bool
	// Name identifies this receiver to the source; optional.
	Name string
}

// DefaultReceiverOptions receives src in BGRX/BGRA at full bandwidth.
func DefaultReceiverOptions(src Source) ReceiverOptions {
	return ReceiverOptions{
		Source:           src,
		Color:            ColorBGRXBGRA,
		Bandwidth:        BandwidthHighest,
		AllowVideoFields: true,
	}
}

// SnapshotPreset asks for progressive RGBA frames, ready for encoding.
func SnapshotPreset(src Source) ReceiverOptions {
	return ReceiverOptions{
		Source:           src,
		Color:            ColorRGBXRGBA,
		Bandwidth:        BandwidthHighest,
		AllowVideoFields: false,
	}
}

func HighQualityPreset(src Source) ReceiverOptions {
	return ReceiverOptions{
		Source:           src,
		Color:            ColorBest,
		Bandwidth:        BandwidthHighest,
		AllowVideoFields: true,
	}
}

// MonitoringPreset trades quality for the lowest cost per frame.
func MonitoringPreset(src Source) ReceiverOptions {
	return ReceiverOptions{
		Source:           src,
		Color:            ColorFastest,
		Bandwidth:        BandwidthLowest,
		AllowVideoFields: true,
	}
}

func (o ReceiverOptions) Validate() error {
	if strings.TrimSpace(o.Source.Name) == "" {
		return invalidConfig("receiver source name is empty")
	}
	if err := o.Source.validate(); err != nil {
		return err
	}
	if strings.IndexByte(o.Name, 0) >= 0 {
		return newError(ErrorTypeInvalidCString, "receiver name contains a NUL byte")
	}
	if _, ok := colorFormatNames[o.Color]; !ok {
		return invalidConfig("unknown color format %d", o.Color)
	}
	if _, ok := bandwidthNames[o.Bandwidth]; !ok {
		return invalidConfig("unknown bandwidth %d", o.Bandwidth)
	}
	return nil
}

// Tally is the program/preview state of a source.
type Tally struct {
	OnProgram bool `json:"on_program"`
	OnPreview bool `json:"on_preview"`
}

// ReceiverStatus describes a status change. Fields are nil when the
// change did not concern them.
type ReceiverStatus struct {
	Tally       *Tally `json:"tally,omitempty"`
	Connections *int   `json:"connections,omitempty"`
	Other       bool   `json:"other"`
}

// Receiver connects to one source. Captured frames keep the underlying
// instance alive, so Close may be called while frames are outstanding;
// the instance is destroyed when the last of them is released.
type Receiver struct {
	id     uuid.UUID
	lib    native.Library
	h      *recvHandle
	source Source
	once   sync.Once
}

// NewReceiver connects to opts.Source.
func NewReceiver(rt *Runtime, opts ReceiverOptions) (*Receiver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m, err := rt.retain()
	if err != nil {
		return nil, err
	}
	inst := rt.lib.RecvCreate(native.RecvCreate{
		SourceName:       opts.Source.Name,
		SourceAddress:    opts.Source.Address.Value,
		ColorFormat:      int32(opts.Color),
		Bandwidth:        int32(opts.Bandwidth),
		AllowVideoFields: opts.AllowVideoFields,
		Name:             opts.Name,
	})
	if inst == nil {
		m.release()
		return nil, newError(ErrorTypeInitializationFailed, "failed to create receiver for %s", opts.Source.Name)
	}
	return &Receiver{
		id:     uuid.New(),
		lib:    rt.lib,
		h:      newRecvHandle(rt.lib, inst, m.release),
		source: opts.Source,
	}, nil
}

// ID distinguishes receivers in logs.
func (r *Receiver) ID() uuid.UUID  { return r.id }
func (r *Receiver) Source() Source { return r.source }

// Close disconnects. Later calls do nothing; operations after Close fail
// with ErrClosed.
func (r *Receiver) Close() {
	r.once.Do(r.h.close)
}

func (r *Receiver) use(fn func(inst native.RecvInstance)) error {
	if !r.h.acquire() {
		return closedError("receiver")
	}
	defer r.h.release()
	fn(r.h.inst)
	return nil
}

// CaptureVideo polls until a video frame arrives, timeout elapses or ctx
// ends. Timeouts return a *FrameTimeoutError.
func (r *Receiver) CaptureVideo(ctx context.Context, timeout time.Duration) (*VideoFrame, error) {
	return captureWithRetry(ctx, kVideo.String(), timeout, r.CaptureVideoTimeout)
}

// CaptureVideoTimeout makes one capture call. It returns nil, nil when no
// frame arrived.
func (r *Receiver) CaptureVideoTimeout(timeout time.Duration) (*VideoFrame, error) {
	ref, err := r.CaptureVideoRefTimeout(timeout)
	if err != nil || ref == nil {
		return nil, err
	}
	defer ref.Release()
	return ref.ToOwned()
}

// CaptureVideoRef is CaptureVideo without the copy.
func (r *Receiver) CaptureVideoRef(ctx context.Context, timeout time.Duration) (*VideoFrameRef, error) {
	return captureWithRetry(ctx, kVideo.String(), timeout, r.CaptureVideoRefTimeout)
}

func (r *Receiver) CaptureVideoRefTimeout(timeout time.Duration) (*VideoFrameRef, error) {
	g, err := captureOnce(r.h, kVideo, timeout)
	if err != nil || g == nil {
		return nil, err
	}
	return newVideoFrameRef(g)
}

func (r *Receiver) CaptureAudio(ctx context.Context, timeout time.Duration) (*AudioFrame, error) {
	return captureWithRetry(ctx, kAudio.String(), timeout, r.CaptureAudioTimeout)
}

func (r *Receiver) CaptureAudioTimeout(timeout time.Duration) (*AudioFrame, error) {
	ref, err := r.CaptureAudioRefTimeout(timeout)
	if err != nil || ref == nil {
		return nil, err
	}
	defer ref.Release()
	return ref.ToOwned()
}

func (r *Receiver) CaptureAudioRef(ctx context.Context, timeout time.Duration) (*AudioFrameRef, error) {
	return captureWithRetry(ctx, kAudio.String(), timeout, r.CaptureAudioRefTimeout)
}

func (r *Receiver) CaptureAudioRefTimeout(timeout time.Duration) (*AudioFrameRef, error) {
	g, err := captureOnce(r.h, kAudio, timeout)
	if err != nil || g == nil {
		return nil, err
	}
	return newAudioFrameRef(g)
}

func (r *Receiver) CaptureMetadata(ctx context.Context, timeout time.Duration) (*MetadataFrame, error) {
	return captureWithRetry(ctx, kMetadata.String(), timeout, r.CaptureMetadataTimeout)
}

func (r *Receiver) CaptureMetadataTimeout(timeout time.Duration) (*MetadataFrame, error) {
	ref, err := r.CaptureMetadataRefTimeout(timeout)
	if err != nil || ref == nil {
		return nil, err
	}
	defer ref.Release()
	return ref.ToOwned()
}

func (r *Receiver) CaptureMetadataRef(ctx context.Context, timeout time.Duration) (*MetadataFrameRef, error) {
	return captureWithRetry(ctx, kMetadata.String(), timeout, r.CaptureMetadataRefTimeout)
}

func (r *Receiver) CaptureMetadataRefTimeout(timeout time.Duration) (*MetadataFrameRef, error) {
	g, err := captureOnce(r.h, kMetadata, timeout)
	if err != nil || g == nil {
		return nil, err
	}
	return newMetadataFrameRef(g)
}

// PollStatusChange waits up to timeout for a status change. Frames are
// not consumed. It returns nil, nil when nothing changed.
func (r *Receiver) PollStatusChange(timeout time.Duration) (*ReceiverStatus, error) {
	ft, err := captureStatus(r.h, timeout)
	if err != nil {
		return nil, err
	}
	if ft != native.FrameTypeStatusChange {
		return nil, nil
	}
	n, err := r.Connections()
	if err != nil {
		return nil, err
	}
	return &ReceiverStatus{Connections: &n, Other: true}, nil
}

// SetTally tells the source whether it is on program or preview.
func (r *Receiver) SetTally(t Tally) error {
	ok := false
	if err := r.use(func(inst native.RecvInstance) {
		ok = r.lib.RecvSetTally(inst, native.Tally{OnProgram: t.OnProgram, OnPreview: t.OnPreview})
	}); err != nil {
		return err
	}
	if !ok {
		return newError(ErrorTypeCaptureFailed, "failed to set tally")
	}
	return nil
}

// Connections returns the number of connections to the source.
func (r *Receiver) Connections() (int, error) {
	n := 0
	err := r.use(func(inst native.RecvInstance) {
		n = r.lib.RecvGetNoConnections(inst)
	})
	return n, err
}

// SendMetadata sends a metadata frame upstream to the source.
func (r *Receiver) SendMetadata(f *MetadataFrame) error {
	rec, buf, err := f.record()
	if err != nil {
		return err
	}
	ok := false
	if err := r.use(func(inst native.RecvInstance) {
		ok = r.lib.RecvSendMetadata(inst, &rec)
	}); err != nil {
		return err
	}
	runtime.KeepAlive(buf)
	if !ok {
		return newError(ErrorTypeCaptureFailed, "failed to send metadata to %s", r.source.Name)
	}
	return nil
}
