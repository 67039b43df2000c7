package codec

import (
	"bytes"
	stderrors "errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robobridge/errors"
)

// solidFrame builds a frame filled with one RGBA color.
func solidFrame(w, h int, r, g, b, a byte) Frame {
	f := NewFrame(w, h)
	for i := 0; i < len(f.Pix); i += bytesPerPixel {
		f.Pix[i] = r
		f.Pix[i+1] = g
		f.Pix[i+2] = b
		f.Pix[i+3] = a
	}
	return f
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, DefaultQuality, c.quality)
	assert.Equal(t, DefaultMaxSide, c.maxSide)
}

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name: "valid quality and max side",
			opts: []Option{WithQuality(90), WithMaxSide(640)},
		},
		{
			name:    "quality too low",
			opts:    []Option{WithQuality(0)},
			wantErr: true,
		},
		{
			name:    "quality too high",
			opts:    []Option{WithQuality(101)},
			wantErr: true,
		},
		{
			name:    "zero max side",
			opts:    []Option{WithMaxSide(0)},
			wantErr: true,
		},
		{
			name:    "negative max side",
			opts:    []Option{WithMaxSide(-100)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestCodec_RoundTrip_SolidColors(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	tests := []struct {
		name    string
		r, g, b byte
	}{
		{name: "red", r: 255, g: 0, b: 0},
		{name: "green", r: 0, g: 255, b: 0},
		{name: "blue", r: 0, g: 0, b: 255},
		{name: "gray", r: 128, g: 128, b: 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := solidFrame(10, 10, tt.r, tt.g, tt.b, 255)

			blob, err := c.Encode(original)
			require.NoError(t, err)
			require.NotEmpty(t, blob)

			decoded, err := c.Decode(blob)
			require.NoError(t, err)

			assert.Equal(t, original.W, decoded.W, "width must survive the round trip")
			assert.Equal(t, original.H, decoded.H, "height must survive the round trip")
			require.Len(t, decoded.Pix, len(original.Pix))

			// Solid colors have no compression ringing; only the color
			// space conversion introduces error.
			const tolerance = 8
			for i := 0; i < len(decoded.Pix); i += bytesPerPixel {
				assert.LessOrEqual(t, absDiff(decoded.Pix[i], tt.r), tolerance, "red channel at %d", i)
				assert.LessOrEqual(t, absDiff(decoded.Pix[i+1], tt.g), tolerance, "green channel at %d", i)
				assert.LessOrEqual(t, absDiff(decoded.Pix[i+2], tt.b), tolerance, "blue channel at %d", i)
				assert.Equal(t, byte(255), decoded.Pix[i+3], "alpha must stay opaque at %d", i)
			}
		})
	}
}

func TestCodec_RoundTrip_ChannelOrder(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	// A red frame that came back blue would mean the channel order was
	// swapped somewhere in the pipeline.
	red := solidFrame(16, 16, 220, 30, 30, 255)

	blob, err := c.Encode(red)
	require.NoError(t, err)

	decoded, err := c.Decode(blob)
	require.NoError(t, err)

	assert.Greater(t, decoded.Pix[0], byte(180), "first channel should still be the dominant red")
	assert.Less(t, decoded.Pix[2], byte(90), "third channel should still be the weak blue")
}

func TestCodec_Encode_Downscales(t *testing.T) {
	c, err := New(WithMaxSide(64))
	require.NoError(t, err)

	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "wide frame", w: 200, h: 100, wantW: 64, wantH: 32},
		{name: "tall frame", w: 100, h: 200, wantW: 32, wantH: 64},
		{name: "square frame", w: 128, h: 128, wantW: 64, wantH: 64},
		{name: "under the bound", w: 40, h: 30, wantW: 40, wantH: 30},
		{name: "exactly at the bound", w: 64, h: 64, wantW: 64, wantH: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encode(solidFrame(tt.w, tt.h, 90, 120, 200, 255))
			require.NoError(t, err)

			decoded, err := c.Decode(blob)
			require.NoError(t, err)

			assert.Equal(t, tt.wantW, decoded.W)
			assert.Equal(t, tt.wantH, decoded.H)
		})
	}
}

func TestCodec_Encode_Errors(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "zero area",
			frame: Frame{},
		},
		{
			name:  "zero width",
			frame: Frame{Pix: make([]byte, 40), W: 0, H: 10},
		},
		{
			name:  "negative height",
			frame: Frame{Pix: make([]byte, 40), W: 10, H: -1},
		},
		{
			name:  "short pixel buffer",
			frame: Frame{Pix: make([]byte, 10), W: 10, H: 10},
		},
		{
			name:  "oversized pixel buffer",
			frame: Frame{Pix: make([]byte, 500), W: 10, H: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encode(tt.frame)
			require.Error(t, err)
			assert.Nil(t, blob)
			assert.True(t, stderrors.Is(err, errors.ErrBadImage), "expected bad image error, got: %v", err)
			assert.Equal(t, errors.ErrorInvalid, errors.Classify(err))
		})
	}
}

func TestCodec_Decode_Errors(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	// A valid blob to truncate.
	valid, err := c.Encode(solidFrame(10, 10, 255, 0, 0, 255))
	require.NoError(t, err)

	// A valid image in the wrong container.
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty blob", blob: nil},
		{name: "garbage bytes", blob: []byte("definitely not a jpeg")},
		{name: "truncated jpeg", blob: valid[:len(valid)/2]},
		{name: "png container", blob: pngBuf.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.blob)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrBadImage), "expected bad image error, got: %v", err)
		})
	}
}

func TestCodec_Encode_Stateless(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	frame := solidFrame(12, 8, 10, 200, 60, 255)

	first, err := c.Encode(frame)
	require.NoError(t, err)
	second, err := c.Encode(frame)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical input must produce identical output")
}

func BenchmarkCodec_Encode(b *testing.B) {
	c, _ := New()
	frame := solidFrame(640, 480, 120, 90, 45, 255)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Encode(frame); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodec_Decode(b *testing.B) {
	c, _ := New()
	blob, _ := c.Encode(solidFrame(640, 480, 120, 90, 45, 255))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Decode(blob); err != nil {
			b.Fatal(err)
		}
	}
}
