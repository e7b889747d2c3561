package ndi

import (
	"unsafe"

	"github.com/zsiec/ndikit/pkg/ndi/native"
)

// MetadataFrame is an owned metadata frame, usually XML.
type MetadataFrame struct {
	Data     string
	Timecode int64
}

// NewMetadataFrame returns a frame with a synthesized timecode.
func NewMetadataFrame(data string) *MetadataFrame {
	return &MetadataFrame{Data: data, Timecode: TimecodeSynthesize}
}

func copyMetadata(raw *native.MetadataFrame) (*MetadataFrame, error) {
	if raw.Data == nil {
		return nil, invalidFrame("metadata frame has null data")
	}
	return &MetadataFrame{Data: native.GoString(raw.Data), Timecode: raw.Timecode}, nil
}

func (f *MetadataFrame) record() (native.MetadataFrame, []byte, error) {
	buf, ok := native.NullTerminated(f.Data)
	if !ok {
		return native.MetadataFrame{}, nil, newError(ErrorTypeInvalidCString, "metadata contains a NUL byte")
	}
	return native.MetadataFrame{
		Length:   int32(len(buf)),
		Timecode: f.Timecode,
		Data:     unsafe.Pointer(&buf[0]),
	}, buf, nil
}
