// Package codec converts raw captured frames to transport-safe JPEG blobs
// and back. Oversized frames are downscaled before encoding so blobs stay
// well under broker message-size limits.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/c360/robobridge/errors"
)

const (
	// DefaultQuality is the JPEG quality used when none is configured.
	DefaultQuality = 85

	// DefaultMaxSide bounds the longer frame dimension before encoding.
	// Frames above it are downscaled; encoded blobs must stay under the
	// 1 MB default NATS message limit.
	DefaultMaxSide = 1280

	bytesPerPixel = 4 // RGBA
)

// Frame is a raw pixel buffer in canonical RGBA channel order,
// 4 bytes per pixel, row-major, no padding between rows.
type Frame struct {
	Pix []byte
	W   int
	H   int
}

// NewFrame allocates a zeroed frame with the given dimensions.
func NewFrame(w, h int) Frame {
	return Frame{
		Pix: make([]byte, w*h*bytesPerPixel),
		W:   w,
		H:   h,
	}
}

// validate checks the frame invariants shared by Encode callers.
func (f Frame) validate() error {
	if f.W <= 0 || f.H <= 0 {
		return fmt.Errorf("%w: zero-area frame %dx%d", errors.ErrBadImage, f.W, f.H)
	}
	if want := f.W * f.H * bytesPerPixel; len(f.Pix) != want {
		return fmt.Errorf("%w: pixel buffer is %d bytes, want %d for %dx%d RGBA",
			errors.ErrBadImage, len(f.Pix), want, f.W, f.H)
	}
	return nil
}

// Codec encodes and decodes frames. It carries only configuration and is
// safe for concurrent use.
type Codec struct {
	quality int
	maxSide int
}

// Option is a functional option for configuring the Codec
type Option func(*Codec) error

// WithQuality sets the JPEG quality (1-100)
func WithQuality(q int) Option {
	return func(c *Codec) error {
		if q < 1 || q > 100 {
			return fmt.Errorf("%w: jpeg quality %d out of range [1,100]", errors.ErrInvalidConfig, q)
		}
		c.quality = q
		return nil
	}
}

// WithMaxSide sets the bound on the longer frame dimension. Frames whose
// longer side exceeds it are downscaled before JPEG encoding.
func WithMaxSide(px int) Option {
	return func(c *Codec) error {
		if px <= 0 {
			return fmt.Errorf("%w: max side %d must be positive", errors.ErrInvalidConfig, px)
		}
		c.maxSide = px
		return nil
	}
}

// New creates a Codec with the given options applied over defaults.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{
		quality: DefaultQuality,
		maxSide: DefaultMaxSide,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Codec", "New", "apply option")
		}
	}
	return c, nil
}

// Encode converts a frame to a JPEG blob, downscaling first when the frame
// exceeds the configured max side.
func (c *Codec) Encode(f Frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "Encode", "validate frame")
	}

	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: f.W * bytesPerPixel,
		Rect:   image.Rect(0, 0, f.W, f.H),
	}

	var src image.Image = img
	if f.W > c.maxSide || f.H > c.maxSide {
		src = downscale(img, c.maxSide)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrBadImage, err),
			"Codec", "Encode", "encode jpeg")
	}
	return buf.Bytes(), nil
}

// Decode converts a JPEG blob back to an RGBA frame. Corrupt, truncated,
// or non-JPEG data is rejected.
func (c *Codec) Decode(blob []byte) (Frame, error) {
	if len(blob) == 0 {
		return Frame{}, errors.WrapInvalid(fmt.Errorf("%w: empty blob", errors.ErrBadImage),
			"Codec", "Decode", "validate blob")
	}

	src, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		return Frame{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrBadImage, err),
			"Codec", "Decode", "decode jpeg")
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	return Frame{Pix: dst.Pix, W: b.Dx(), H: b.Dy()}, nil
}

// downscale resizes img so its longer side equals maxSide, preserving
// aspect ratio.
func downscale(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSide
		newHeight = int(float64(height) * float64(maxSide) / float64(width))
	} else {
		newHeight = maxSide
		newWidth = int(float64(width) * float64(maxSide) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
