package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// JPEGEncoder scales frames to a fixed size and compresses them as JPEG.
type JPEGEncoder struct {
	Width  int
	Height int
}

// NewJPEGEncoder returns an encoder for FrameWidth x FrameHeight frames.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{Width: FrameWidth, Height: FrameHeight}
}

// Encode scales img when needed and encodes it at quality (0-1).
func (e *JPEGEncoder) Encode(img image.Image, quality float64) ([]byte, error) {
	if img == nil {
		return nil, errors.New("capture: nil image")
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("capture: empty image")
	}

	src := img
	if bounds.Dx() != e.Width || bounds.Dy() != e.Height {
		dst := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToPortableText returns data as standard base64.
func (e *JPEGEncoder) ToPortableText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("capture: nothing to encode")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
