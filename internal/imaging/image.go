// Package imaging handles the pixel work around a capture: decoding,
// cropping and upscaling refinement regions, and drawing grounding markers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/xkilldash9x/waypoint/internal/geometry"
)

// MaxZoom bounds crop upscaling so a tiny crop cannot balloon into a huge
// request payload.
const MaxZoom = 4.0

var ErrEmptyImage = errors.New("imaging: empty image data")

// Decode reads a PNG, JPEG or TIFF image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: failed to decode image: %w", err)
	}
	return img, nil
}

// Size returns the pixel dimensions of an encoded image without decoding
// its pixels.
func Size(data []byte) (width, height int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imaging: failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop cuts the normalized crop out of img and scales it by zoom with a
// Catmull-Rom filter. A zoom of 1 or less copies the region unscaled.
func Crop(img image.Image, crop geometry.CropRect, zoom float64) (*image.RGBA, error) {
	if err := crop.Validate(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	src := crop.PixelBounds(b.Dx(), b.Dy()).Add(b.Min)

	if math.IsNaN(zoom) || zoom < 1 {
		zoom = 1
	}
	zoom = math.Min(zoom, MaxZoom)

	dw := max(1, int(math.Round(float64(src.Dx())*zoom)))
	dh := max(1, int(math.Round(float64(src.Dy())*zoom)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	if zoom == 1 {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst, nil
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst, nil
}

// CropPNG is Crop over encoded bytes, returning PNG bytes.
func CropPNG(data []byte, crop geometry.CropRect, zoom float64) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out, err := Crop(img, crop, zoom)
	if err != nil {
		return nil, err
	}
	return EncodePNG(out)
}
