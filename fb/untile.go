package fb

import "fmt"

// Tile-ordered layout
//
// A tiled buffer stores tile i as a TileSize x TileSize row-major block
// starting at pixel i*TilePixels of its arena, regardless of the tiled
// buffer's own width and height. For a clipped edge tile only the top-left
// Dx x Dy part of the block holds image pixels. Initializing the tiled buffer
// at AlignedWidth x AlignedHeight gives exactly TileCount()*TilePixels pixels.

// checkTiledPair validates a raster buffer and a tiled buffer against t.
func checkTiledPair(raster, tiled *Buffer, t Tiler) error {
	if !raster.Initialized() || !tiled.Initialized() {
		return fmt.Errorf("fb: untile with uninitialized buffer: %w", ErrFormatMismatch)
	}
	if raster == tiled || raster.arena == tiled.arena {
		return fmt.Errorf("fb: raster and tiled buffers share storage: %w", ErrInvalidConfiguration)
	}
	if raster.format != tiled.format {
		return fmt.Errorf("fb: raster %v vs tiled %v: %w", raster.format, tiled.format, ErrFormatMismatch)
	}
	if raster.width != t.Width() || raster.height != t.Height() {
		return fmt.Errorf("fb: raster %dx%d does not match tiler %dx%d: %w",
			raster.width, raster.height, t.Width(), t.Height(), ErrInvalidConfiguration)
	}
	if need := t.TileCount() * TilePixels; tiled.Area() < need {
		return fmt.Errorf("fb: tiled buffer has %d pixels, need %d: %w",
			tiled.Area(), need, ErrInvalidConfiguration)
	}
	return nil
}

// Untile writes into b the raster reconstruction of tiled, whose pixels are
// in t's tile order. b must be t.Width() x t.Height() and share tiled's
// format.
//
// With parallel set, tiles are copied concurrently; every task reads one
// source block and writes one destination rectangle, and the rectangles are
// disjoint, so no locking is needed. The call returns after all copies
// finish. The result is identical in both modes.
func (b *Buffer) Untile(tiled *Buffer, t Tiler, parallel bool) error {
	if err := checkTiledPair(b, tiled, t); err != nil {
		return err
	}

	bpp := BytesPerPixel(b.format)
	stride := b.width * bpp
	blockRow := TileSize * bpp
	blockBytes := TilePixels * bpp

	copyTile := func(tile Tile) {
		r := tile.Rect
		rowBytes := r.Dx() * bpp
		src := tile.Index * blockBytes
		dst := r.Min.Y*stride + r.Min.X*bpp
		for y := r.Min.Y; y < r.Max.Y; y++ {
			copy(b.data[dst:dst+rowBytes], tiled.data[src:src+rowBytes])
			src += blockRow
			dst += stride
		}
	}

	ForEachTile(t, parallel, copyTile)
	return nil
}

// TileFrom is the inverse of Untile: it writes raster's pixels into b in
// t's tile order. Padding pixels of clipped edge tiles are zeroed.
func (b *Buffer) TileFrom(raster *Buffer, t Tiler, parallel bool) error {
	if err := checkTiledPair(raster, b, t); err != nil {
		return err
	}

	bpp := BytesPerPixel(b.format)
	stride := raster.width * bpp
	blockRow := TileSize * bpp
	blockBytes := TilePixels * bpp

	copyTile := func(tile Tile) {
		r := tile.Rect
		rowBytes := r.Dx() * bpp
		dst := tile.Index * blockBytes
		if r.Dx() < TileSize || r.Dy() < TileSize {
			clear(b.data[dst : dst+blockBytes])
		}
		src := r.Min.Y*stride + r.Min.X*bpp
		for y := r.Min.Y; y < r.Max.Y; y++ {
			copy(b.data[dst:dst+rowBytes], raster.data[src:src+rowBytes])
			src += stride
			dst += blockRow
		}
	}

	ForEachTile(t, parallel, copyTile)
	return nil
}
