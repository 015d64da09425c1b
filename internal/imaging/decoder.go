// Package imaging turns uploaded bytes into the fixed-size RGB tensor the
// classifier expects.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	Height   = 240
	Width    = 240
	Channels = 3
)

// ErrInvalidImage is returned when the input cannot be decoded as a raster image.
var ErrInvalidImage = errors.New("invalid image")

// Interpolation is the resampling policy applied to every upload.
var Interpolation = resize.Bilinear

// MaxPixels caps the width×height an image header may declare. Decoders
// allocate the full pixel buffer up front, so larger images are refused
// before decoding.
var MaxPixels int64 = 89_478_485

// PixelTensor holds an image as height×width×channel bytes (HWC, RGB).
type PixelTensor struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

// At returns the value of channel ch at row y, column x.
func (t PixelTensor) At(y, x, ch int) uint8 {
	return t.Pix[(y*t.Width+x)*t.Channels+ch]
}

// Decode reads data in any registered raster format, drops alpha, expands
// grayscale and resamples to Height×Width.
func Decode(data []byte) (PixelTensor, error) {
	if len(data) == 0 {
		return PixelTensor{}, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return PixelTensor{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return PixelTensor{}, fmt.Errorf("%w: %s image has no pixels", ErrInvalidImage, format)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return PixelTensor{}, fmt.Errorf("%w: %s image is %dx%d, above the %d pixel limit",
			ErrInvalidImage, format, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return PixelTensor{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return PixelTensor{}, fmt.Errorf("%w: %s image has no pixels", ErrInvalidImage, format)
	}

	resized := resize.Resize(Width, Height, toRGB(img), Interpolation)
	return tensorFrom(resized), nil
}

// toRGB returns an opaque image resize can work on directly. Alpha is
// dropped using straight (non-premultiplied) colour values, so transparent
// pixels keep their colour rather than turning black. Images without alpha
// are passed through untouched.
func toRGB(img image.Image) image.Image {
	switch src := img.(type) {
	case *image.YCbCr, *image.Gray:
		return src
	case *image.RGBA:
		if src.Opaque() {
			return src
		}
	case *image.NRGBA:
		return fromNRGBA(src)
	}
	return convertRGB(img)
}

func fromNRGBA(src *image.NRGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		d := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := x * 4
			d[i+0] = s[i+0]
			d[i+1] = s[i+1]
			d[i+2] = s[i+2]
			d[i+3] = 0xff
		}
	}
	return dst
}

// convertRGB is the slow path for every other colour model.
func convertRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func tensorFrom(img image.Image) PixelTensor {
	b := img.Bounds()
	t := PixelTensor{
		Height:   Height,
		Width:    Width,
		Channels: Channels,
		Pix:      make([]uint8, Height*Width*Channels),
	}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*Width + x) * Channels
			t.Pix[i+0] = uint8(r >> 8)
			t.Pix[i+1] = uint8(g >> 8)
			t.Pix[i+2] = uint8(bl >> 8)
		}
	}
	return t
}
