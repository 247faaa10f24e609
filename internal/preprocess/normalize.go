// Package preprocess turns uploaded label photos into bounded JPEGs for extraction.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnprocessableImage marks input that cannot be decoded or is unsafe to decode.
var ErrUnprocessableImage = errors.New("unprocessable image")

const (
	DefaultMaxDimension = 1600
	DefaultJPEGQuality  = 85
	// DefaultContrast is a percentage for imaging.AdjustContrast, roughly a 1.2x boost.
	DefaultContrast = 20
	// DefaultMaxPixels matches the common decompression-bomb ceiling of ~179 megapixels.
	DefaultMaxPixels = 178_956_970
)

// Normalizer is a pure transform: safe decode, auto-rotate, flatten to RGB,
// fit within MaxDimension, contrast boost, JPEG encode.
type Normalizer struct {
	MaxDimension int
	JPEGQuality  int
	Contrast     float64
	MaxPixels    int
}

// NewNormalizer returns a Normalizer with the default settings.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		MaxDimension: DefaultMaxDimension,
		JPEGQuality:  DefaultJPEGQuality,
		Contrast:     DefaultContrast,
		MaxPixels:    DefaultMaxPixels,
	}
}

// Normalize returns JPEG bytes whose longest edge is at most MaxDimension.
func (n *Normalizer) Normalize(raw []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open image: %v", ErrUnprocessableImage, err)
	}
	if n.MaxPixels > 0 && cfg.Width*cfg.Height > n.MaxPixels {
		return nil, fmt.Errorf("%w: %s image of %dx%d exceeds pixel limit", ErrUnprocessableImage, format, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s image: %v", ErrUnprocessableImage, format, err)
	}

	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	out := imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	if n.MaxDimension > 0 && max(b.Dx(), b.Dy()) > n.MaxDimension {
		out = imaging.Fit(out, n.MaxDimension, n.MaxDimension, imaging.Lanczos)
	}
	if n.Contrast != 0 {
		out = imaging.AdjustContrast(out, n.Contrast)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(n.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
