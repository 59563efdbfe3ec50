// Package display turns 8-bit frame buffers into images and writes them in
// common interchange formats.
package display

import (
	"fmt"
	"image"
	"image/color"

	"github.com/mrjoshuak/go-fbutil/fb"
)

// RGBImage is an opaque image with 3 bytes per pixel, laid out like an
// RGB888 buffer.
type RGBImage struct {
	// Pix holds the pixels in R, G, B order. The pixel at (x, y) starts at
	// Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*3].
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func (p *RGBImage) ColorModel() color.Model { return color.RGBAModel }

func (p *RGBImage) Bounds() image.Rectangle { return p.Rect }

func (p *RGBImage) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

// RGBAAt returns the pixel at (x, y) with alpha 255.
func (p *RGBImage) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{s[0], s[1], s[2], 0xff}
}

// PixOffset returns the index of the first byte of pixel (x, y) in Pix.
func (p *RGBImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// Opaque reports whether the image is fully opaque, which it always is.
func (p *RGBImage) Opaque() bool { return true }

// Image wraps an 8-bit buffer as an image.Image without copying.
// RGBA8888 buffers become *image.NRGBA, RGB888 buffers *RGBImage. The image
// aliases the buffer's storage and is invalidated by Init and CleanUp.
// Float buffers must be quantized first.
func Image(b *fb.Buffer) (image.Image, error) {
	rect := b.Bounds()
	switch b.Format() {
	case fb.RGBA8888:
		return &image.NRGBA{Pix: b.Data(), Stride: b.Stride(), Rect: rect}, nil
	case fb.RGB888:
		return &RGBImage{Pix: b.Data(), Stride: b.Stride(), Rect: rect}, nil
	default:
		return nil, fmt.Errorf("display: %v buffer is not displayable: %w", b.Format(), fb.ErrFormatMismatch)
	}
}

// Quantize converts a Float4 buffer into a new 8-bit buffer, RGBA8888 when
// alpha is set and RGB888 otherwise. See fb.Buffer.GammaAndQuantizeTo8bit.
func Quantize(src *fb.Buffer, alpha bool, opts fb.QuantizeOptions, exposure, gamma float32) (*fb.Buffer, error) {
	format := fb.RGB888
	if alpha {
		format = fb.RGBA8888
	}
	dst, err := fb.NewBuffer(format, src.Width(), src.Height())
	if err != nil {
		return nil, err
	}
	if err := dst.GammaAndQuantizeTo8bit(src, opts, exposure, gamma); err != nil {
		dst.CleanUp()
		return nil, err
	}
	return dst, nil
}
