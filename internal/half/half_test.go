package half

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFromFloat32Exact(t *testing.T) {
	tests := []struct {
		input float32
		bits  uint16
	}{
		{0, 0x0000},
		{1, 0x3C00},
		{-1, 0xBC00},
		{0.5, 0x3800},
		{2, 0x4000},
		{65504, 0x7BFF},
		{6.103515625e-5, 0x0400}, // smallest normal
		{5.960464477539063e-8, 0x0001},
	}

	for _, tt := range tests {
		h := FromFloat32(tt.input)
		if h.Bits() != tt.bits {
			t.Errorf("FromFloat32(%v) = %#04x, want %#04x", tt.input, h.Bits(), tt.bits)
		}
		if got := h.Float32(); got != tt.input {
			t.Errorf("FromBits(%#04x).Float32() = %v, want %v", tt.bits, got, tt.input)
		}
	}
}

func TestRoundTripPrecision(t *testing.T) {
	for _, v := range []float32{0.18, 100, -3.7, 1e-3, 1234.5} {
		got := FromFloat32(v).Float32()
		if rel := math.Abs(float64(got-v)) / math.Abs(float64(v)); rel > 0.001 {
			t.Errorf("FromFloat32(%v).Float32() = %v, relative error %v", v, got, rel)
		}
	}
}

func TestSpecialValues(t *testing.T) {
	if h := FromFloat32(float32(math.Inf(1))); !h.IsInf() || h.Float32() != float32(math.Inf(1)) {
		t.Errorf("+Inf converted to %#04x", h.Bits())
	}
	if h := FromFloat32(float32(math.Inf(-1))); !h.IsInf() || !math.IsInf(float64(h.Float32()), -1) {
		t.Errorf("-Inf converted to %#04x", h.Bits())
	}
	if h := FromFloat32(float32(math.NaN())); !h.IsNaN() || !math.IsNaN(float64(h.Float32())) {
		t.Errorf("NaN converted to %#04x", h.Bits())
	}
	if h := FromFloat32(1e6); !h.IsInf() {
		t.Errorf("FromFloat32(1e6) = %#04x, want overflow to infinity", h.Bits())
	}
	if h := FromFloat32(1e-10); h.Bits() != 0 {
		t.Errorf("FromFloat32(1e-10) = %#04x, want underflow to zero", h.Bits())
	}
	negZero := float32(math.Copysign(0, -1))
	if h := FromFloat32(negZero); h.Bits() != 0x8000 || !math.Signbit(float64(h.Float32())) {
		t.Errorf("-0 converted to %#04x", h.Bits())
	}
}

func TestRoundToNearestEven(t *testing.T) {
	// 1 + 2^-11 lies halfway between 1 and the next half; ties go to even.
	if h := FromFloat32(1 + 1.0/2048); h.Bits() != 0x3C00 {
		t.Errorf("tie rounded to %#04x, want 0x3c00", h.Bits())
	}
	// 1 + 3*2^-11 lies halfway between odd and even neighbours.
	if h := FromFloat32(1 + 3.0/2048); h.Bits() != 0x3C02 {
		t.Errorf("tie rounded to %#04x, want 0x3c02", h.Bits())
	}
	// 2 - 2^-11 ties between 0x3fff and 2; rounding carries into the exponent.
	if h := FromFloat32(1.99951171875); h.Bits() != 0x4000 {
		t.Errorf("carry rounded to %#04x, want 0x4000", h.Bits())
	}
}

func TestNarrowWiden(t *testing.T) {
	values := []float32{0, 1, -2.5, 0.25, 65504}
	src := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(v))
	}

	narrow := make([]byte, len(src)/2)
	Narrow(narrow, src)
	if got := binary.LittleEndian.Uint16(narrow[2:]); got != 0x3C00 {
		t.Errorf("narrowed 1.0 = %#04x, want 0x3c00", got)
	}

	wide := make([]byte, len(src))
	Widen(wide, narrow)
	for i, v := range values {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(wide[i*4:])); got != v {
			t.Errorf("value %d = %v, want %v", i, got, v)
		}
	}
}

func TestNarrowPanicsOnShortDestination(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Narrow with short destination did not panic")
		}
	}()
	Narrow(make([]byte, 1), make([]byte, 8))
}
