// Package imageio converts between PNG images and uint8 arrays.
package imageio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/ports"
)

// ErrImageTooLarge is returned for images with more pixels than allowed.
var ErrImageTooLarge = errors.New("image too large")

// PNG implements ports.ImageCodec for PNG files.
type PNG struct {
	// MaxPixels bounds width*height of decoded images. Zero means no limit.
	MaxPixels int
}

var _ ports.ImageCodec = PNG{}

// Decode reads a PNG image. Gray images decode to (h, w); everything else
// decodes to (h, w, 3) RGB with any alpha channel dropped. The header is
// checked against MaxPixels before any pixel data is read.
func (c PNG) Decode(data []byte) (*ndarray.Dense[uint8], error) {
	if c.MaxPixels > 0 {
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		// Compare per axis so width*height cannot overflow.
		if cfg.Width > 0 && cfg.Height > c.MaxPixels/cfg.Width {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, c.MaxPixels)
		}
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return FromImage(img), nil
}

// Encode writes an (h, w) array as an 8-bit gray PNG and an (h, w, 3)
// array as an opaque RGBA PNG.
func (PNG) Encode(a *ndarray.Dense[uint8]) ([]byte, error) {
	img, err := ToImage(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadFile decodes the PNG at path.
func (c PNG) ReadFile(path string) (*ndarray.Dense[uint8], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	a, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// WriteFile encodes a to path.
func (c PNG) WriteFile(path string, a *ndarray.Dense[uint8]) error {
	data, err := c.Encode(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// DecodeBase64 decodes a base64 (standard encoding) PNG.
func (c PNG) DecodeBase64(s string) (*ndarray.Dense[uint8], error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return c.Decode(data)
}

// EncodeBase64 encodes a as a base64 PNG.
func (c PNG) EncodeBase64(a *ndarray.Dense[uint8]) (string, error) {
	data, err := c.Encode(a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// FromImage converts an image to an array.
func FromImage(img image.Image) *ndarray.Dense[uint8] {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		a := ndarray.New[uint8](h, w)
		dst := a.Data()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				dst[y*w+x] = g.Y
			}
		}
		return a
	}

	a := ndarray.New[uint8](h, w, 3)
	dst := a.Data()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			dst[i], dst[i+1], dst[i+2] = c.R, c.G, c.B
		}
	}
	return a
}

// ToImage converts an (h, w), (h, w, 1) or (h, w, 3) array to an image.
func ToImage(a *ndarray.Dense[uint8]) (image.Image, error) {
	if a == nil {
		return nil, fmt.Errorf("encode image: nil array")
	}
	shape := a.Shape()
	src := a.Data()

	switch {
	case len(shape) == 2, len(shape) == 3 && shape[2] == 1:
		h, w := shape[0], shape[1]
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], src[y*w:(y+1)*w])
		}
		return img, nil

	case len(shape) == 3 && shape[2] == 3:
		h, w := shape[0], shape[1]
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s := (y*w + x) * 3
				d := y*img.Stride + x*4
				img.Pix[d], img.Pix[d+1], img.Pix[d+2], img.Pix[d+3] = src[s], src[s+1], src[s+2], 0xff
			}
		}
		return img, nil
	}

	return nil, fmt.Errorf("encode image: unsupported shape %s", ndarray.FormatShape(shape))
}
