package fb

import (
	"fmt"
	"image"
)

// TileSize is the width and height of a tile in pixels.
const TileSize = 8

// TilePixels is the number of pixels in an unclipped tile.
const TilePixels = TileSize * TileSize

// Tile is a rectangle of an image identified by its index in a Tiler.
type Tile struct {
	Index int
	Rect  image.Rectangle
}

// Area returns the number of pixels in the tile.
func (t Tile) Area() int {
	if t.Rect.Empty() {
		return 0
	}
	return t.Rect.Dx() * t.Rect.Dy()
}

// TileList is an ordered selection of tiles. Order is significant for the
// sparse codec. Entries may repeat or overlap.
type TileList []Tile

// PixelCount returns the summed area of all entries.
func (l TileList) PixelCount() int {
	n := 0
	for _, t := range l {
		n += t.Area()
	}
	return n
}

// PackedSize returns the number of bytes PackSparseTiles writes for l in format f.
func (l TileList) PackedSize(f PixelFormat) int {
	return l.PixelCount() * BytesPerPixel(f)
}

// Indices returns the tile indices in list order.
func (l TileList) Indices() []int {
	out := make([]int, len(l))
	for i, t := range l {
		out[i] = t.Index
	}
	return out
}

// Tiler maps tile indices to pixel rectangles for an image. Tiles are
// TileSize x TileSize, numbered row-major; tiles on the right and bottom
// edges are clipped to the image. The rectangles of all indices partition
// the image with no gaps or overlaps.
type Tiler struct {
	width  int
	height int
	tilesX int
	tilesY int
}

// NewTiler creates a tiler for a width x height image. Non-positive
// dimensions give a tiler with no tiles.
func NewTiler(width, height int) Tiler {
	if width <= 0 || height <= 0 {
		return Tiler{}
	}
	return Tiler{
		width:  width,
		height: height,
		tilesX: (width + TileSize - 1) / TileSize,
		tilesY: (height + TileSize - 1) / TileSize,
	}
}

// Width returns the image width.
func (t Tiler) Width() int { return t.width }

// Height returns the image height.
func (t Tiler) Height() int { return t.height }

// NumTilesX returns the number of tile columns.
func (t Tiler) NumTilesX() int { return t.tilesX }

// NumTilesY returns the number of tile rows.
func (t Tiler) NumTilesY() int { return t.tilesY }

// TileCount returns the number of tiles.
func (t Tiler) TileCount() int { return t.tilesX * t.tilesY }

// AlignedWidth returns the width rounded up to a whole number of tiles.
func (t Tiler) AlignedWidth() int { return t.tilesX * TileSize }

// AlignedHeight returns the height rounded up to a whole number of tiles.
func (t Tiler) AlignedHeight() int { return t.tilesY * TileSize }

// Rect returns the pixel rectangle of tile i. It panics if i is out of range.
func (t Tiler) Rect(i int) image.Rectangle {
	if i < 0 || i >= t.TileCount() {
		panic(fmt.Sprintf("fb: tile index %d out of range [0,%d)", i, t.TileCount()))
	}
	x0 := (i % t.tilesX) * TileSize
	y0 := (i / t.tilesX) * TileSize
	return image.Rect(x0, y0, min(x0+TileSize, t.width), min(y0+TileSize, t.height))
}

// Tile returns tile i.
func (t Tiler) Tile(i int) Tile {
	return Tile{Index: i, Rect: t.Rect(i)}
}

// Tiles returns the tiles for the given indices, in the given order.
func (t Tiler) Tiles(indices ...int) TileList {
	out := make(TileList, len(indices))
	for i, idx := range indices {
		out[i] = t.Tile(idx)
	}
	return out
}

// All returns every tile in index order.
func (t Tiler) All() TileList {
	out := make(TileList, t.TileCount())
	for i := range out {
		out[i] = t.Tile(i)
	}
	return out
}

// IndexAt returns the index of the tile containing pixel (x, y), or -1.
func (t Tiler) IndexAt(x, y int) int {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return -1
	}
	return (y/TileSize)*t.tilesX + x/TileSize
}
