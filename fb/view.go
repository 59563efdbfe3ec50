package fb

import (
	"fmt"

	"honnef.co/go/safeish"
)

// RGB is one pixel of an RGB888 buffer.
type RGB struct {
	R, G, B uint8
}

// RGBA is one pixel of an RGBA8888 buffer.
type RGBA struct {
	R, G, B, A uint8
}

// Vec2 is one pixel of a Float2 buffer.
type Vec2 [2]float32

// Vec3 is one pixel of a Float3 buffer.
type Vec3 [3]float32

// Vec4 is one pixel of a Float4 buffer, conventionally RGBA.
type Vec4 [4]float32

// mustBe panics with ErrFormatMismatch when the buffer is not in format f.
// Builds tagged fbutil_unchecked skip the check; see check_off.go.
func (b *Buffer) mustBe(f PixelFormat) {
	if checkViews && b.Format() != f {
		panic(fmt.Errorf("fb: %v view of %v buffer: %w", f, b.Format(), ErrFormatMismatch))
	}
}

func floatsOf(data []byte) []float32 {
	return safeish.SliceCast[[]float32](data)
}

// RGB888s returns the pixels of an RGB888 buffer in row-major order.
func (b *Buffer) RGB888s() []RGB {
	b.mustBe(RGB888)
	return safeish.SliceCast[[]RGB](b.data)
}

// RGBA8888s returns the pixels of an RGBA8888 buffer in row-major order.
func (b *Buffer) RGBA8888s() []RGBA {
	b.mustBe(RGBA8888)
	return safeish.SliceCast[[]RGBA](b.data)
}

// Floats returns the pixels of a Float buffer in row-major order.
func (b *Buffer) Floats() []float32 {
	b.mustBe(Float)
	return floatsOf(b.data)
}

// Float2s returns the pixels of a Float2 buffer in row-major order.
func (b *Buffer) Float2s() []Vec2 {
	b.mustBe(Float2)
	return safeish.SliceCast[[]Vec2](b.data)
}

// Float3s returns the pixels of a Float3 buffer in row-major order.
func (b *Buffer) Float3s() []Vec3 {
	b.mustBe(Float3)
	return safeish.SliceCast[[]Vec3](b.data)
}

// Float4s returns the pixels of a Float4 buffer in row-major order.
func (b *Buffer) Float4s() []Vec4 {
	b.mustBe(Float4)
	return safeish.SliceCast[[]Vec4](b.data)
}

// Channels returns the raw float32 channel values of any float buffer,
// Channels() values per pixel.
func (b *Buffer) Channels() []float32 {
	if checkViews && !b.Format().IsFloat() {
		panic(fmt.Errorf("fb: channel view of %v buffer: %w", b.Format(), ErrFormatMismatch))
	}
	return floatsOf(b.data)
}
