package native

// FourCC codes understood by the SDK.
const (
	FourCCUYVY uint32 = 0x59565955
	FourCCUYVA uint32 = 0x41565955
	FourCCP216 uint32 = 0x36313250
	FourCCPA16 uint32 = 0x36314150
	FourCCYV12 uint32 = 0x32315659
	FourCCI420 uint32 = 0x30323449
	FourCCNV12 uint32 = 0x3231564E
	FourCCBGRA uint32 = 0x41524742
	FourCCBGRX uint32 = 0x58524742
	FourCCRGBA uint32 = 0x41424752
	FourCCRGBX uint32 = 0x58424752

	FourCCFLTP uint32 = 0x70544C46
)

// VideoDataSize returns the byte length of a video buffer. Planar 4:2:0
// layouts carry chroma after the luma plane; everything else is packed.
// The result is computed in 64 bits so callers can bound it.
func VideoDataSize(fourcc uint32, stride, height int32) int64 {
	s, h := int64(stride), int64(height)
	luma := s * h
	half := (h + 1) / 2
	switch fourcc {
	case FourCCYV12, FourCCI420:
		return luma + 2*(s/2)*half
	case FourCCNV12:
		return luma + s*half
	default:
		return luma
	}
}
