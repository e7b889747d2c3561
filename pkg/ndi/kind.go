package ndi

import "github.com/zsiec/ndikit/pkg/ndi/native"

// Kind identifies a frame kind. The set is closed: Video, Audio and
// Metadata are the only implementations, each bound to one free function.
type Kind interface {
	FrameType() native.FrameType
	String() string
	sealed()
}

// kind binds a raw record type to its capture slot and free function.
type kind[R any] interface {
	Kind
	slots(raw *R) (*native.VideoFrame, *native.AudioFrame, *native.MetadataFrame)
	free(lib native.Receiving, inst native.RecvInstance, raw *R)
}

type videoKind struct{}

func (videoKind) FrameType() native.FrameType { return native.FrameTypeVideo }
func (videoKind) String() string              { return "video" }
func (videoKind) sealed()                     {}

func (videoKind) slots(raw *native.VideoFrame) (*native.VideoFrame, *native.AudioFrame, *native.MetadataFrame) {
	return raw, nil, nil
}

func (videoKind) free(lib native.Receiving, inst native.RecvInstance, raw *native.VideoFrame) {
	lib.RecvFreeVideo(inst, raw)
}

type audioKind struct{}

func (audioKind) FrameType() native.FrameType { return native.FrameTypeAudio }
func (audioKind) String() string              { return "audio" }
func (audioKind) sealed()                     {}

func (audioKind) slots(raw *native.AudioFrame) (*native.VideoFrame, *native.AudioFrame, *native.MetadataFrame) {
	return nil, raw, nil
}

func (audioKind) free(lib native.Receiving, inst native.RecvInstance, raw *native.AudioFrame) {
	lib.RecvFreeAudio(inst, raw)
}

type metadataKind struct{}

func (metadataKind) FrameType() native.FrameType { return native.FrameTypeMetadata }
func (metadataKind) String() string              { return "metadata" }
func (metadataKind) sealed()                     {}

func (metadataKind) slots(raw *native.MetadataFrame) (*native.VideoFrame, *native.AudioFrame, *native.MetadataFrame) {
	return nil, nil, raw
}

func (metadataKind) free(lib native.Receiving, inst native.RecvInstance, raw *native.MetadataFrame) {
	lib.RecvFreeMetadata(inst, raw)
}

// Frame kinds.
var (
	Video    Kind = videoKind{}
	Audio    Kind = audioKind{}
	Metadata Kind = metadataKind{}
)

var (
	kVideo    kind[native.VideoFrame]    = videoKind{}
	kAudio    kind[native.AudioFrame]    = audioKind{}
	kMetadata kind[native.MetadataFrame] = metadataKind{}
)
