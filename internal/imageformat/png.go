// Package imageformat converts between raw RGBA pixel buffers and PNG
// bytes for the session loop's image transfer path (§4.5, §8).
package imageformat

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// EncodeRGBA encodes raw RGBA pixel data (4 bytes per pixel, row-major) as
// PNG bytes.
func EncodeRGBA(rgba []byte, width, height uint32) ([]byte, error) {
	want := int(width) * int(height) * 4
	if len(rgba) != want {
		return nil, fmt.Errorf("imageformat: rgba buffer has %d bytes, want %d for %dx%d", len(rgba), want, width, height)
	}

	img := &image.NRGBA{
		Pix:    rgba,
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imageformat: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeToRGBA decodes PNG bytes to (rgba, width, height).
func DecodeToRGBA(pngBytes []byte) (rgba []byte, width, height uint32, err error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("imageformat: decode png: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, 0, w*h*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			nc := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, nc.R, nc.G, nc.B, nc.A)
		}
	}
	return out, uint32(w), uint32(h), nil
}

// Dimensions reads just the width/height header of pngBytes without
// decoding the full pixel data.
func Dimensions(pngBytes []byte) (width, height uint32, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(pngBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("imageformat: read png dimensions: %w", err)
	}
	return uint32(cfg.Width), uint32(cfg.Height), nil
}
