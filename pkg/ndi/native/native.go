// Package native is the boundary between Go and the NDI C ABI.
//
// Every method on Library maps to exactly one SDK entry point. Records are
// plain Go mirrors of the SDK structs; pointers inside them refer to memory
// owned by whichever backend produced them and must be handed back to the
// matching free call. Nothing in this package enforces lifetimes. That is
// the job of package ndi.
package native

import (
	"errors"
	"unsafe"
)

// ErrUnavailable is returned by SDK when the binary was built without the
// ndi build tag or without cgo.
var ErrUnavailable = errors.New("ndi sdk not available: built without the ndi tag")

// FrameType is the discriminant returned by capture calls.
type FrameType int32

const (
	FrameTypeNone         FrameType = 0
	FrameTypeVideo        FrameType = 1
	FrameTypeAudio        FrameType = 2
	FrameTypeMetadata     FrameType = 3
	FrameTypeError        FrameType = 4
	FrameTypeStatusChange FrameType = 100
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeNone:
		return "none"
	case FrameTypeVideo:
		return "video"
	case FrameTypeAudio:
		return "audio"
	case FrameTypeMetadata:
		return "metadata"
	case FrameTypeError:
		return "error"
	case FrameTypeStatusChange:
		return "status_change"
	default:
		return "unknown"
	}
}

// Opaque instance handles.
type (
	FindInstance      unsafe.Pointer
	RecvInstance      unsafe.Pointer
	SendInstance      unsafe.Pointer
	FrameSyncInstance unsafe.Pointer
)

// VideoFrame mirrors NDIlib_video_frame_v2_t. LineStrideOrSize holds the
// line stride for uncompressed formats and the data size otherwise.
type VideoFrame struct {
	XRes               int32
	YRes               int32
	FourCC             uint32
	FrameRateN         int32
	FrameRateD         int32
	PictureAspectRatio float32
	FrameFormatType    int32
	Timecode           int64
	Data               unsafe.Pointer
	LineStrideOrSize   int32
	Metadata           unsafe.Pointer
	Timestamp          int64
}

// AudioFrame mirrors NDIlib_audio_frame_v3_t. ChannelStrideOrSize is the
// planar channel stride in bytes, zero for interleaved data.
type AudioFrame struct {
	SampleRate          int32
	NoChannels          int32
	NoSamples           int32
	Timecode            int64
	FourCC              uint32
	Data                unsafe.Pointer
	ChannelStrideOrSize int32
	Metadata            unsafe.Pointer
	Timestamp           int64
}

// MetadataFrame mirrors NDIlib_metadata_frame_t. Data is a NUL terminated
// UTF-8 string.
type MetadataFrame struct {
	Length   int32
	Timecode int64
	Data     unsafe.Pointer
}

// Source mirrors NDIlib_source_t. Both fields are NUL terminated strings;
// Address holds either a URL or an ip:port pair and may be nil.
type Source struct {
	Name    unsafe.Pointer
	Address unsafe.Pointer
}

// Tally mirrors NDIlib_tally_t.
type Tally struct {
	OnProgram bool
	OnPreview bool
}

// FindCreate holds finder creation settings.
type FindCreate struct {
	ShowLocalSources bool
	Groups           string
	ExtraIPs         string
}

// RecvCreate holds receiver creation settings.
type RecvCreate struct {
	SourceName       string
	SourceAddress    string
	ColorFormat      int32
	Bandwidth        int32
	AllowVideoFields bool
	Name             string
}

// SendCreate holds sender creation settings. Backends keep the strings
// alive until SendDestroy.
type SendCreate struct {
	Name       string
	Groups     string
	ClockVideo bool
	ClockAudio bool
}

// PTZOp selects a PTZ entry point.
type PTZOp int

const (
	PTZRecallPreset PTZOp = iota
	PTZZoom
	PTZZoomSpeed
	PTZPanTilt
	PTZPanTiltSpeed
	PTZStorePreset
	PTZAutoFocus
	PTZFocus
	PTZFocusSpeed
	PTZWhiteBalanceAuto
	PTZWhiteBalanceIndoor
	PTZWhiteBalanceOutdoor
	PTZWhiteBalanceOneshot
	PTZWhiteBalanceManual
	PTZExposureAuto
	PTZExposureManual
	PTZExposureManualV2
)

// PTZCommand is one PTZ call. Args are interpreted per Op in the order the
// SDK takes them.
type PTZCommand struct {
	Op     PTZOp
	Preset int32
	Args   [3]float32
}

// Runtime covers library lifetime.
type Runtime interface {
	Initialize() bool
	Destroy()
	// Version returns false when the library reports a null version.
	Version() (string, bool)
	IsSupportedCPU() bool
}

// Finding covers source discovery. Source slices returned here are only
// valid until the next call on the same instance.
type Finding interface {
	FindCreate(settings FindCreate) FindInstance
	FindDestroy(inst FindInstance)
	FindWaitForSources(inst FindInstance, timeoutMs uint32) bool
	FindGetCurrentSources(inst FindInstance) []Source
	FindGetSources(inst FindInstance, timeoutMs uint32) []Source
}

// Receiving covers receivers. RecvCapture only fills the non-nil slots.
type Receiving interface {
	RecvCreate(settings RecvCreate) RecvInstance
	RecvDestroy(inst RecvInstance)
	RecvCapture(inst RecvInstance, video *VideoFrame, audio *AudioFrame, meta *MetadataFrame, timeoutMs uint32) FrameType
	RecvFreeVideo(inst RecvInstance, frame *VideoFrame)
	RecvFreeAudio(inst RecvInstance, frame *AudioFrame)
	RecvFreeMetadata(inst RecvInstance, frame *MetadataFrame)
	RecvSendMetadata(inst RecvInstance, frame *MetadataFrame) bool
	RecvSetTally(inst RecvInstance, tally Tally) bool
	RecvGetNoConnections(inst RecvInstance) int
	RecvPTZIsSupported(inst RecvInstance) bool
	RecvPTZ(inst RecvInstance, cmd PTZCommand) bool
}

// Sending covers senders. SendVideoAsync with a nil frame flushes the
// pending asynchronous frame.
type Sending interface {
	SendCreate(settings SendCreate) SendInstance
	SendDestroy(inst SendInstance)
	SendVideo(inst SendInstance, frame *VideoFrame)
	SendVideoAsync(inst SendInstance, frame *VideoFrame)
	SendAudio(inst SendInstance, frame *AudioFrame)
	SendMetadata(inst SendInstance, frame *MetadataFrame)
	SendGetTally(inst SendInstance, tally *Tally, timeoutMs uint32) bool
	SendGetNoConnections(inst SendInstance, timeoutMs uint32) int
	SendClearConnectionMetadata(inst SendInstance)
	SendAddConnectionMetadata(inst SendInstance, frame *MetadataFrame)
	SendSetFailover(inst SendInstance, name, address string)
	SendGetSourceName(inst SendInstance) (Source, bool)
	// SendSetVideoAsyncCompletion registers fn to run when the library is
	// done with an asynchronous frame; a nil fn unregisters. It returns
	// false when the linked library has no completion support.
	SendSetVideoAsyncCompletion(inst SendInstance, fn func()) bool
}

// FrameSyncing covers the frame synchronizer.
type FrameSyncing interface {
	FrameSyncCreate(recv RecvInstance) FrameSyncInstance
	FrameSyncDestroy(inst FrameSyncInstance)
	FrameSyncCaptureVideo(inst FrameSyncInstance, frame *VideoFrame, fieldType int32)
	FrameSyncFreeVideo(inst FrameSyncInstance, frame *VideoFrame)
	FrameSyncCaptureAudio(inst FrameSyncInstance, frame *AudioFrame, sampleRate, channels, samples int32)
	FrameSyncFreeAudio(inst FrameSyncInstance, frame *AudioFrame)
	FrameSyncAudioQueueDepth(inst FrameSyncInstance) int
}

// Library is the complete NDI surface.
type Library interface {
	Runtime
	Finding
	Receiving
	Sending
	FrameSyncing
}
