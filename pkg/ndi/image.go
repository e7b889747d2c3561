package ndi

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
)

// ImageFormat selects a still image encoding.
type ImageFormat int

const (
	ImagePNG ImageFormat = iota
	ImageJPEG
)

// DefaultJPEGQuality is used by EncodeDataURL.
const DefaultJPEGQuality = 90

func (f ImageFormat) String() string {
	if f == ImageJPEG {
		return "jpeg"
	}
	return "png"
}

// MIMEType is the content type for the encoding.
func (f ImageFormat) MIMEType() string {
	if f == ImageJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ParseImageFormat accepts "png", "jpeg" and "jpg".
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return ImagePNG, nil
	case "jpeg", "jpg":
		return ImageJPEG, nil
	}
	return 0, invalidConfig("unknown image format %q", s)
}

// Image converts the frame to an NRGBA image. Only 8-bit RGB formats
// with tightly packed lines are supported; X formats become opaque.
func (f *VideoFrame) Image() (*image.NRGBA, error) {
	if !f.Format.rgb32() {
		return nil, invalidFrame("cannot encode %s frames as an image", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 || f.LineStride != f.Width*4 {
		return nil, invalidFrame("image encoding needs a line stride of %d, got %d", f.Width*4, f.LineStride)
	}
	data := f.Data()
	n := f.LineStride * f.Height
	if len(data) < n {
		return nil, invalidFrame("frame holds %d bytes, need %d", len(data), n)
	}

	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, data[:n])
	bgr := f.Format == PixelFormatBGRA || f.Format == PixelFormatBGRX
	opaque := f.Format == PixelFormatBGRX || f.Format == PixelFormatRGBX
	for i := 0; i < n; i += 4 {
		px := img.Pix[i : i+4 : i+4]
		if bgr {
			px[0], px[2] = px[2], px[0]
		}
		if opaque {
			px[3] = 0xff
		}
	}
	return img, nil
}

// EncodePNG encodes the frame as PNG.
func (f *VideoFrame) EncodePNG() ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, wrapError(ErrorTypeInvalidFrame, err, "png encoding failed")
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes the frame as JPEG. quality is clamped to 1..100.
func (f *VideoFrame) EncodeJPEG(quality int) ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	quality = min(max(quality, 1), 100)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, wrapError(ErrorTypeInvalidFrame, err, "jpeg encoding failed")
	}
	return buf.Bytes(), nil
}

// Encode encodes the frame in the given format.
func (f *VideoFrame) Encode(format ImageFormat, quality int) ([]byte, error) {
	if format == ImageJPEG {
		return f.EncodeJPEG(quality)
	}
	return f.EncodePNG()
}

// EncodeDataURL returns a base64 data URL suitable for an img tag.
func (f *VideoFrame) EncodeDataURL(format ImageFormat) (string, error) {
	b, err := f.Encode(format, DefaultJPEGQuality)
	if err != nil {
		return "", err
	}
	return "data:" + format.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
