package fb

import (
	"fmt"

	"github.com/chewxy/math32"
)

// QuantizeOptions is a bit set of toggles for GammaAndQuantizeTo8bit.
// Unknown bits are ignored.
type QuantizeOptions uint32

const (
	// QuantizeSkipAlpha ignores the source alpha and writes 255.
	QuantizeSkipAlpha QuantizeOptions = 1 << iota

	// QuantizeDither applies a 4x4 ordered dither to color channels before
	// rounding, trading banding for fine noise.
	QuantizeDither

	// QuantizeParallel spreads rows over ParallelFor.
	QuantizeParallel
)

// Has reports whether all bits of o2 are set in o.
func (o QuantizeOptions) Has(o2 QuantizeOptions) bool {
	return o&o2 == o2
}

// bayer4 is the 4x4 ordered dither matrix.
var bayer4 = [4][4]float32{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// GammaAndQuantizeTo8bit converts the Float4 buffer src into b, which must
// be RGB888 or RGBA8888 with the same dimensions.
//
// Color channels become round(max(v*2^exposure, 0)^(1/gamma) * 255),
// clamped to [0, 255]. Alpha becomes round(a*255) clamped to [0, 255],
// without exposure or gamma. NaN maps to 0.
//
// On error b is left unchanged.
func (b *Buffer) GammaAndQuantizeTo8bit(src *Buffer, opts QuantizeOptions, exposure, gamma float32) error {
	if src.Format() != Float4 {
		return fmt.Errorf("fb: quantize source is %v, want float4: %w", src.Format(), ErrFormatMismatch)
	}
	dstFormat := b.Format()
	if dstFormat != RGB888 && dstFormat != RGBA8888 {
		return fmt.Errorf("fb: quantize destination is %v: %w", dstFormat, ErrFormatMismatch)
	}
	if src.width != b.width || src.height != b.height {
		return fmt.Errorf("fb: quantize %dx%d into %dx%d: %w",
			src.width, src.height, b.width, b.height, ErrInvalidConfiguration)
	}
	if !(gamma > 0) || math32.IsInf(gamma, 0) {
		return fmt.Errorf("fb: gamma %v: %w", gamma, ErrInvalidConfiguration)
	}
	if math32.IsNaN(exposure) || math32.IsInf(exposure, 0) {
		return fmt.Errorf("fb: exposure %v: %w", exposure, ErrInvalidConfiguration)
	}

	q := quantizer{
		scale:    exposureScale(exposure),
		invGamma: 1 / gamma,
		dither:   opts.Has(QuantizeDither),
	}
	pixels := src.Float4s()
	width := b.width

	var row func(y int)
	if dstFormat == RGBA8888 {
		out := b.RGBA8888s()
		skipAlpha := opts.Has(QuantizeSkipAlpha)
		row = func(y int) {
			base := y * width
			for x := 0; x < width; x++ {
				p := &pixels[base+x]
				o := &out[base+x]
				o.R = q.color(p[0], x, y)
				o.G = q.color(p[1], x, y)
				o.B = q.color(p[2], x, y)
				if skipAlpha {
					o.A = 255
				} else {
					o.A = q.alpha(p[3])
				}
			}
		}
	} else {
		out := b.RGB888s()
		row = func(y int) {
			base := y * width
			for x := 0; x < width; x++ {
				p := &pixels[base+x]
				o := &out[base+x]
				o.R = q.color(p[0], x, y)
				o.G = q.color(p[1], x, y)
				o.B = q.color(p[2], x, y)
			}
		}
	}

	if opts.Has(QuantizeParallel) {
		ParallelFor(b.height, row)
	} else {
		for y := 0; y < b.height; y++ {
			row(y)
		}
	}
	return nil
}

// exposureScale returns 2^exposure, exact for exposure 0.
func exposureScale(exposure float32) float32 {
	if exposure == 0 {
		return 1
	}
	return math32.Exp2(exposure)
}

type quantizer struct {
	scale    float32
	invGamma float32
	dither   bool
}

func (q *quantizer) color(v float32, x, y int) uint8 {
	v *= q.scale
	if !(v > 0) {
		return 0
	}
	if q.invGamma != 1 {
		v = math32.Pow(v, q.invGamma)
	}
	v *= 255
	if q.dither {
		v = math32.Floor(v + (bayer4[y&3][x&3]+0.5)/16)
	} else {
		v = math32.Round(v)
	}
	return clampByte(v)
}

func (q *quantizer) alpha(a float32) uint8 {
	return clampByte(math32.Round(a * 255))
}

// clampByte converts an integral float to a byte, clamping to [0, 255].
// NaN maps to 0.
func clampByte(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
