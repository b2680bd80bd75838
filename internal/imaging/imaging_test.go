package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/karat/internal/model"
)

func fill(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testJPEG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fill(w, h, color.RGBA{212, 175, 55, 255}), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, fill(w, h, color.RGBA{192, 192, 192, 255})))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return img
}

func TestProcessJPEG(t *testing.T) {
	out, err := Process(bytes.NewReader(testJPEG(t, 100, 100)), Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	decode(t, out)
}

func TestProcessPNGBecomesJPEG(t *testing.T) {
	out, err := Process(bytes.NewReader(testPNG(t, 100, 60)), Options{})
	require.NoError(t, err)
	img := decode(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestProcessDownscalePreservesAspect(t *testing.T) {
	out, err := Process(bytes.NewReader(testJPEG(t, 400, 200)), Options{MaxDimension: 100})
	require.NoError(t, err)

	b := decode(t, out).Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 50, b.Dy())
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	out, err := Process(bytes.NewReader(testJPEG(t, 50, 50)), Options{})
	require.NoError(t, err)

	b := decode(t, out).Bounds()
	assert.Equal(t, 50, b.Dx())
	assert.Equal(t, 50, b.Dy())
}

func TestProcessRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts Options
	}{
		{"not an image", []byte("not an image"), Options{}},
		{"gif", []byte("GIF89a..."), Options{}},
		{"too large", testPNG(t, 64, 64), Options{MaxBytes: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Process(bytes.NewReader(tt.data), tt.opts)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}
