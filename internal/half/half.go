// Package half converts between float32 and IEEE 754 binary16 values.
//
// Checkpoints use it to store float payloads at half precision:
//   - 1 bit sign
//   - 5 bits exponent (bias of 15)
//   - 10 bits mantissa (implicit leading 1 for normalized values)
package half

import (
	"encoding/binary"
	"math"
)

// Half is an IEEE 754 binary16 value.
type Half uint16

const (
	signBit      = 0x8000
	exponentMask = 0x7C00
	mantissaMask = 0x03FF

	exponentBias = 15
	maxExponent  = 31
)

// Max is the largest finite half value (65504).
const Max = Half(0x7BFF)

// FromBits returns the Half with the given bit pattern.
func FromBits(bits uint16) Half { return Half(bits) }

// Bits returns the bit pattern of h.
func (h Half) Bits() uint16 { return uint16(h) }

// IsNaN reports whether h is a NaN.
func (h Half) IsNaN() bool {
	return h&exponentMask == exponentMask && h&mantissaMask != 0
}

// IsInf reports whether h is an infinity.
func (h Half) IsInf() bool {
	return h&^signBit == exponentMask
}

// FromFloat32 converts f to a Half using round-to-nearest-even. Values
// beyond the half range become infinities; NaN stays NaN.
func FromFloat32(f float32) Half {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & signBit
	exp := int(bits>>23) & 0xFF
	mantissa := bits & 0x007FFFFF

	switch {
	case exp == 0xFF:
		if mantissa == 0 {
			return Half(sign | exponentMask)
		}
		// Keep the payload's top bits and force a quiet NaN.
		return Half(sign | exponentMask | 0x0200 | uint16(mantissa>>13))
	case exp == 0:
		// float32 subnormals are far below the half range.
		return Half(sign)
	}

	exp = exp - 127 + exponentBias
	if exp >= maxExponent {
		return Half(sign | exponentMask)
	}
	if exp < -10 {
		return Half(sign)
	}

	if exp <= 0 {
		// Half subnormal: make the implicit bit explicit and shift it down.
		mantissa |= 0x00800000
		shift := uint(14 - exp)
		m := mantissa >> shift
		round := mantissa >> (shift - 1) & 1
		sticky := mantissa & (1<<(shift-1) - 1)
		if round != 0 && (sticky != 0 || m&1 != 0) {
			m++
		}
		// A carry into bit 10 correctly yields the smallest normal.
		return Half(sign | uint16(m))
	}

	m := mantissa >> 13
	round := mantissa >> 12 & 1
	sticky := mantissa & 0x0FFF
	if round != 0 && (sticky != 0 || m&1 != 0) {
		m++
		if m > mantissaMask {
			m = 0
			exp++
			if exp >= maxExponent {
				return Half(sign | exponentMask)
			}
		}
	}
	return Half(sign | uint16(exp)<<10 | uint16(m))
}

// Float32 converts h to float32 exactly.
func (h Half) Float32() float32 {
	sign := uint32(h&signBit) << 16
	exp := int(h>>10) & 0x1F
	mantissa := uint32(h & mantissaMask)

	switch exp {
	case 0:
		if mantissa == 0 {
			return math.Float32frombits(sign)
		}
		// Normalize the subnormal.
		for mantissa&0x0400 == 0 {
			mantissa <<= 1
			exp--
		}
		exp++
		mantissa &= mantissaMask
	case maxExponent:
		if mantissa == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000 | mantissa<<13)
	}
	return math.Float32frombits(sign | uint32(exp-exponentBias+127)<<23 | mantissa<<13)
}

// Narrow converts little-endian float32 values in src to little-endian
// half values in dst. dst must hold len(src)/2 bytes; a trailing partial
// value in src is ignored.
func Narrow(dst, src []byte) {
	n := len(src) / 4
	if len(dst) < n*2 {
		panic("half: destination slice too small")
	}
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		binary.LittleEndian.PutUint16(dst[i*2:], FromFloat32(f).Bits())
	}
}

// Widen is the inverse of Narrow. dst must hold len(src)*2 bytes.
func Widen(dst, src []byte) {
	n := len(src) / 2
	if len(dst) < n*4 {
		panic("half: destination slice too small")
	}
	for i := 0; i < n; i++ {
		h := FromBits(binary.LittleEndian.Uint16(src[i*2:]))
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(h.Float32()))
	}
}
