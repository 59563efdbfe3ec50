// Package fb provides frame buffers whose pixel format is chosen at runtime.
//
// A Buffer stores pixels for one of a fixed set of formats (packed 8-bit
// color or 1 to 4 float32 channels) in a single byte arena. Typed views
// reinterpret the arena for the format the buffer was initialized with.
//
// The package also maps 8x8 tiles to pixel rectangles (Tiler), extracts and
// injects arbitrary tile subsets as a headerless byte stream (PackSparseTiles,
// UnpackSparseTiles), converts tile-ordered storage to raster order (Untile)
// and quantizes float HDR pixels to 8-bit display pixels.
//
// A Buffer is not safe for concurrent mutation. Callers serialize access.
package fb

import (
	"fmt"
	"strings"
)

// PixelFormat identifies the layout of a single pixel.
type PixelFormat uint8

// Supported pixel formats.
const (
	RGB888 PixelFormat = iota
	RGBA8888
	Float
	Float2
	Float3
	Float4

	numFormats

	// Uninitialized is the format of a Buffer with no storage.
	Uninitialized PixelFormat = 0xff
)

type formatInfo struct {
	name     string
	size     int
	channels int
	float    bool
}

// formatTable is indexed by PixelFormat and never modified.
var formatTable = [numFormats]formatInfo{
	RGB888:   {"rgb888", 3, 3, false},
	RGBA8888: {"rgba8888", 4, 4, false},
	Float:    {"float", 4, 1, true},
	Float2:   {"float2", 8, 2, true},
	Float3:   {"float3", 12, 3, true},
	Float4:   {"float4", 16, 4, true},
}

// BytesPerPixel returns the size in bytes of one pixel of format f.
// Calling it with Uninitialized or an unknown tag is a programming error and panics.
func BytesPerPixel(f PixelFormat) int {
	if !f.Valid() {
		panic(fmt.Sprintf("fb: BytesPerPixel called with %v", f))
	}
	return formatTable[f].size
}

// Valid reports whether f names a storage format.
func (f PixelFormat) Valid() bool {
	return f < numFormats
}

// Channels returns the number of channels per pixel, or 0 for invalid formats.
func (f PixelFormat) Channels() int {
	if !f.Valid() {
		return 0
	}
	return formatTable[f].channels
}

// IsFloat reports whether the format stores float32 channels.
func (f PixelFormat) IsFloat() bool {
	return f.Valid() && formatTable[f].float
}

// ChannelSize returns the byte size of one channel value (1 or 4).
func (f PixelFormat) ChannelSize() int {
	if !f.Valid() {
		return 0
	}
	return formatTable[f].size / formatTable[f].channels
}

func (f PixelFormat) String() string {
	if f.Valid() {
		return formatTable[f].name
	}
	if f == Uninitialized {
		return "uninitialized"
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

// Formats returns every storage format in tag order.
func Formats() []PixelFormat {
	out := make([]PixelFormat, 0, numFormats)
	for f := PixelFormat(0); f < numFormats; f++ {
		out = append(out, f)
	}
	return out
}

// ParsePixelFormat parses a format name as printed by String. Case is ignored.
func ParsePixelFormat(s string) (PixelFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f := PixelFormat(0); f < numFormats; f++ {
		if formatTable[f].name == s {
			return f, nil
		}
	}
	return Uninitialized, fmt.Errorf("fb: unknown pixel format %q: %w", s, ErrInvalidConfiguration)
}
