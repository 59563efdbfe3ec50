package fb

import (
	"errors"
	"fmt"
	"image"
	"math"
	"unsafe"
)

// Buffer errors
var (
	ErrInvalidConfiguration = errors.New("fb: invalid buffer configuration")
	ErrFormatMismatch       = errors.New("fb: pixel format mismatch")
	ErrOutOfBounds          = errors.New("fb: tile outside buffer bounds")
	ErrInvalidOperation     = errors.New("fb: operation not valid for pixel format")
	ErrShortBuffer          = errors.New("fb: byte buffer too short")
)

// CacheLineSize is the alignment unit for the Buffer header.
const CacheLineSize = 64

type header struct {
	format PixelFormat
	width  int
	height int
	arena  *Arena
	data   []byte
}

// Buffer is pixel storage whose format is selected at runtime.
//
// The zero value is an Uninitialized buffer. Init allocates storage,
// CleanUp releases it. The header has the same size for every format and is
// padded to a multiple of CacheLineSize so arrays of buffers do not share
// cache lines between elements.
type Buffer struct {
	header
	_ [CacheLineSize - unsafe.Sizeof(header{})%CacheLineSize]byte
}

// NewBuffer returns a buffer initialized with Init.
func NewBuffer(format PixelFormat, width, height int) (*Buffer, error) {
	b := &Buffer{}
	b.format = Uninitialized
	if err := b.Init(format, width, height); err != nil {
		return nil, err
	}
	return b, nil
}

// arenaSize validates a configuration and returns the storage size it needs.
func arenaSize(format PixelFormat, width, height int) (int, error) {
	if !format.Valid() {
		return 0, fmt.Errorf("fb: format %v: %w", format, ErrInvalidConfiguration)
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("fb: dimensions %dx%d: %w", width, height, ErrInvalidConfiguration)
	}
	bpp := BytesPerPixel(format)
	if width > math.MaxInt/height || width*height > math.MaxInt/bpp {
		return 0, fmt.Errorf("fb: dimensions %dx%d overflow arena size: %w", width, height, ErrInvalidConfiguration)
	}
	return width * height * bpp, nil
}

// Init releases any existing storage and allocates a zeroed arena of
// width*height*BytesPerPixel(format) bytes from the default arena pool.
//
// An invalid format or zero/overflowing dimensions return
// ErrInvalidConfiguration and leave the buffer unchanged. If the pool's
// memory limit refuses the allocation a *MemoryLimitExceededError is
// returned and the buffer is left Uninitialized.
func (b *Buffer) Init(format PixelFormat, width, height int) error {
	return b.InitFromPool(defaultArenaPool, format, width, height)
}

// InitFromPool is Init with an explicit arena pool.
func (b *Buffer) InitFromPool(pool *ArenaPool, format PixelFormat, width, height int) error {
	size, err := arenaSize(format, width, height)
	if err != nil {
		return err
	}

	b.CleanUp()

	arena, err := pool.NewArena(size)
	if err != nil {
		Logger().Debug("fb: arena allocation refused",
			"format", format, "width", width, "height", height, "bytes", size, "err", err)
		return err
	}
	b.format = format
	b.width = width
	b.height = height
	b.arena = arena
	b.data = arena.Bytes()
	return nil
}

// CleanUp releases the buffer's storage and returns it to Uninitialized.
// Shared handles obtained earlier stay valid until they are released.
func (b *Buffer) CleanUp() {
	if b.arena != nil {
		b.arena.Release()
	}
	b.header = header{format: Uninitialized}
}

// Initialized reports whether the buffer has storage.
func (b *Buffer) Initialized() bool {
	return b.arena != nil && b.format.Valid()
}

// Format returns the buffer's pixel format.
func (b *Buffer) Format() PixelFormat {
	if b.arena == nil {
		return Uninitialized
	}
	return b.format
}

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.height }

// Area returns width*height.
func (b *Buffer) Area() int { return b.width * b.height }

// Bounds returns the pixel rectangle covered by the buffer.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

// BytesPerPixel returns the pixel size of the buffer's format.
// The buffer must be initialized.
func (b *Buffer) BytesPerPixel() int {
	return BytesPerPixel(b.Format())
}

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int {
	if !b.Initialized() {
		return 0
	}
	return b.width * BytesPerPixel(b.format)
}

// Data returns the backing bytes. The slice is owned by the buffer and is
// invalidated by Init and CleanUp.
func (b *Buffer) Data() []byte {
	return b.data
}

// Shared returns an additional reference to the backing arena for zero-copy
// handoff. The caller must Release it; the storage outlives CleanUp until then.
// It returns nil for an Uninitialized buffer.
func (b *Buffer) Shared() *Arena {
	if b.arena == nil {
		return nil
	}
	return b.arena.Retain()
}

// PixelOffset returns the byte offset of pixel (x, y).
func (b *Buffer) PixelOffset(x, y int) int {
	return (y*b.width + x) * BytesPerPixel(b.Format())
}

// Clear zero-fills the storage. It does nothing on an Uninitialized buffer.
func (b *Buffer) Clear() {
	clear(b.data)
}

// Fill writes v into every channel of every pixel. Only float formats
// support it; integer formats return ErrInvalidOperation.
func (b *Buffer) Fill(v float32) error {
	if !b.Initialized() {
		return fmt.Errorf("fb: fill of uninitialized buffer: %w", ErrInvalidOperation)
	}
	if !b.format.IsFloat() {
		return fmt.Errorf("fb: fill of %v buffer: %w", b.format, ErrInvalidOperation)
	}
	vals := floatsOf(b.data)
	if len(vals) == 0 {
		return nil
	}
	vals[0] = v
	// Doubling copy: each pass duplicates the filled prefix.
	for n := 1; n < len(vals); n *= 2 {
		copy(vals[n:], vals[:n])
	}
	return nil
}

// sameShape reports whether two buffers have identical format and dimensions.
func (b *Buffer) sameShape(o *Buffer) bool {
	return b.Format() == o.Format() && b.width == o.width && b.height == o.height
}

// Equal reports whether two buffers have the same format, dimensions and bytes.
func (b *Buffer) Equal(o *Buffer) bool {
	if !b.sameShape(o) {
		return false
	}
	return string(b.data) == string(o.data)
}

// Clone returns a deep copy of b backed by a new arena.
func (b *Buffer) Clone() (*Buffer, error) {
	if !b.Initialized() {
		return &Buffer{header: header{format: Uninitialized}}, nil
	}
	c, err := NewBuffer(b.format, b.width, b.height)
	if err != nil {
		return nil, err
	}
	copy(c.data, b.data)
	return c, nil
}
