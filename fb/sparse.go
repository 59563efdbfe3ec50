package fb

import (
	"fmt"
	"image"
)

// validateTiles checks that b is initialized and every tile lies inside it.
// It returns the number of packed bytes the list occupies.
func (b *Buffer) validateTiles(tiles TileList) (int, error) {
	if !b.Initialized() {
		return 0, fmt.Errorf("fb: sparse tiles on uninitialized buffer: %w", ErrFormatMismatch)
	}
	bounds := b.Bounds()
	for i, t := range tiles {
		if !rectInside(t.Rect, bounds) {
			return 0, fmt.Errorf("fb: tile %d (entry %d) rect %v not inside %v: %w",
				t.Index, i, t.Rect, bounds, ErrOutOfBounds)
		}
	}
	return tiles.PackedSize(b.format), nil
}

// rectInside reports whether r is well formed and contained in bounds.
// Empty rectangles on the boundary count as inside.
func rectInside(r, bounds image.Rectangle) bool {
	return r.Min.X <= r.Max.X && r.Min.Y <= r.Max.Y &&
		r.Min.X >= bounds.Min.X && r.Min.Y >= bounds.Min.Y &&
		r.Max.X <= bounds.Max.X && r.Max.Y <= bounds.Max.Y
}

// PackSparseTiles copies the pixels of each tile, in list order and
// row-major within the tile, into dst with no headers or padding.
// dst must hold at least tiles.PackedSize(b.Format()) bytes.
//
// The stream is not self-describing: the format, the buffer dimensions and
// the tile list must travel out of band. Overlapping entries are emitted
// independently.
//
// Nothing is written unless every tile lies inside the buffer and dst is
// large enough.
func (b *Buffer) PackSparseTiles(dst []byte, tiles TileList) error {
	need, err := b.validateTiles(tiles)
	if err != nil {
		return err
	}
	if len(dst) < need {
		return fmt.Errorf("fb: pack needs %d bytes, have %d: %w", need, len(dst), ErrShortBuffer)
	}

	bpp := BytesPerPixel(b.format)
	stride := b.width * bpp
	pos := 0
	for _, t := range tiles {
		rowBytes := t.Rect.Dx() * bpp
		if rowBytes == 0 {
			continue
		}
		off := t.Rect.Min.Y*stride + t.Rect.Min.X*bpp
		for y := t.Rect.Min.Y; y < t.Rect.Max.Y; y++ {
			copy(dst[pos:pos+rowBytes], b.data[off:off+rowBytes])
			pos += rowBytes
			off += stride
		}
	}
	return nil
}

// AppendSparseTiles appends the packed tiles to dst and returns the
// extended slice.
func (b *Buffer) AppendSparseTiles(dst []byte, tiles TileList) ([]byte, error) {
	need, err := b.validateTiles(tiles)
	if err != nil {
		return dst, err
	}
	n := len(dst)
	dst = append(dst, make([]byte, need)...)
	if err := b.PackSparseTiles(dst[n:], tiles); err != nil {
		return dst[:n], err
	}
	return dst, nil
}

// UnpackSparseTiles is the inverse of PackSparseTiles: it reads the packed
// layout from src and writes each tile's pixels at its rectangle, in list
// order, so the last entry covering a pixel wins.
//
// The list must match the one used to pack; mismatched lists silently
// misplace data. b must already be initialized in the packing format with
// dimensions containing every tile. All tiles and the length of src are
// validated before any pixel is written.
func (b *Buffer) UnpackSparseTiles(src []byte, tiles TileList) error {
	need, err := b.validateTiles(tiles)
	if err != nil {
		return err
	}
	if len(src) < need {
		return fmt.Errorf("fb: unpack needs %d bytes, have %d: %w", need, len(src), ErrShortBuffer)
	}

	bpp := BytesPerPixel(b.format)
	stride := b.width * bpp
	pos := 0
	for _, t := range tiles {
		rowBytes := t.Rect.Dx() * bpp
		if rowBytes == 0 {
			continue
		}
		off := t.Rect.Min.Y*stride + t.Rect.Min.X*bpp
		for y := t.Rect.Min.Y; y < t.Rect.Max.Y; y++ {
			copy(b.data[off:off+rowBytes], src[pos:pos+rowBytes])
			pos += rowBytes
			off += stride
		}
	}
	return nil
}
