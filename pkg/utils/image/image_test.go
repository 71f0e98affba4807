package image

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGBRoundTrip(t *testing.T) {
	const w, h = 8, 4
	raw := make([]byte, w*h*3)
	for i := 0; i < len(raw); i += 3 {
		raw[i], raw[i+1], raw[i+2] = 200, 100, 50
	}

	img, err := WrapRGB(raw, w, h)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, w, h), img.Bounds())

	r, g, b, a := img.At(3, 2).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(100), g>>8)
	assert.Equal(t, uint32(50), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)

	rgba := DecodeRGB(raw, w, h).(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 0xff}, rgba.RGBAAt(7, 3))
}

func TestWrapRGBShortFrame(t *testing.T) {
	_, err := WrapRGB(make([]byte, 10), 8, 4)
	assert.Error(t, err)

	_, err = WrapRGB(nil, 8, 4)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestJPEGRoundTrip(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	data, err := EncodeJPEGBytes(src, DefaultQuality)
	require.NoError(t, err)

	img, err := DecodeJPEG(data)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())

	_, err = DecodeJPEG(data[:len(data)/3])
	assert.Error(t, err)
}
