// Package checkpoint stores sparse tile streams in a self-describing
// envelope.
//
// A packed sparse tile stream carries only pixel bytes; the pixel format,
// image dimensions and tile list travel out of band. A checkpoint bundles
// all of them with an optionally compressed payload so partial renders can
// be saved, shipped between processes and merged.
//
// Envelope layout (little-endian):
//
//	magic   "FBCK"
//	version u8 (1)
//	codec   u8 (compression.Codec)
//	format  u8 (fb.PixelFormat)
//	flags   u8 (FlagHalf)
//	width   u32
//	height  u32
//	ntiles  u32
//	tiles   ntiles x {index, x0, y0, x1, y1 u32}
//	rawLen  u64
//	dataLen u64
//	data    dataLen bytes
package checkpoint

import (
	"errors"
	"fmt"
	"image"

	"github.com/mrjoshuak/go-fbutil/fb"
)

// Checkpoint errors
var (
	ErrBadMagic           = errors.New("checkpoint: not a checkpoint envelope")
	ErrUnsupportedVersion = errors.New("checkpoint: unsupported envelope version")
	ErrCorrupt            = errors.New("checkpoint: corrupt envelope")
	ErrIncompatible       = errors.New("checkpoint: incompatible buffer")
)

// Snapshot is a packed sparse tile stream together with the metadata needed
// to unpack it.
type Snapshot struct {
	Format fb.PixelFormat
	Width  int
	Height int
	Tiles  fb.TileList
	Packed []byte
}

// Capture packs tiles of b into a new snapshot.
func Capture(b *fb.Buffer, tiles fb.TileList) (*Snapshot, error) {
	packed, err := b.AppendSparseTiles(nil, tiles)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Format: b.Format(),
		Width:  b.Width(),
		Height: b.Height(),
		Tiles:  append(fb.TileList(nil), tiles...),
		Packed: packed,
	}, nil
}

// Bounds returns the image rectangle the snapshot belongs to.
func (s *Snapshot) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// Compatible reports whether b has the snapshot's format and dimensions.
func (s *Snapshot) Compatible(b *fb.Buffer) bool {
	return b.Format() == s.Format && b.Width() == s.Width && b.Height() == s.Height
}

// ApplyTo unpacks the snapshot's tiles into b, which must have the
// snapshot's format and dimensions.
func (s *Snapshot) ApplyTo(b *fb.Buffer) error {
	if !s.Compatible(b) {
		return fmt.Errorf("%w: snapshot %v %dx%d, buffer %v %dx%d", ErrIncompatible,
			s.Format, s.Width, s.Height, b.Format(), b.Width(), b.Height())
	}
	return b.UnpackSparseTiles(s.Packed, s.Tiles)
}

// NewBuffer allocates a zeroed buffer of the snapshot's shape and applies the
// snapshot to it.
func (s *Snapshot) NewBuffer() (*fb.Buffer, error) {
	b, err := fb.NewBuffer(s.Format, s.Width, s.Height)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyTo(b); err != nil {
		b.CleanUp()
		return nil, err
	}
	return b, nil
}

// Coverage returns the fraction of image pixels covered by at least one tile.
func (s *Snapshot) Coverage() float64 {
	area := s.Width * s.Height
	if area <= 0 {
		return 0
	}
	bounds := s.Bounds()
	covered := make([]bool, area)
	n := 0
	for _, t := range s.Tiles {
		r := t.Rect.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := covered[y*s.Width : (y+1)*s.Width]
			for x := r.Min.X; x < r.Max.X; x++ {
				if !row[x] {
					row[x] = true
					n++
				}
			}
		}
	}
	return float64(n) / float64(area)
}

// validate checks the snapshot's internal consistency.
func (s *Snapshot) validate() error {
	if !s.Format.Valid() {
		return fmt.Errorf("%w: pixel format %v", ErrCorrupt, s.Format)
	}
	if s.Width <= 0 || s.Height <= 0 || uint64(s.Width) > maxUint32 || uint64(s.Height) > maxUint32 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, s.Width, s.Height)
	}
	bounds := s.Bounds()
	for i, t := range s.Tiles {
		if t.Index < 0 || uint64(t.Index) > maxUint32 {
			return fmt.Errorf("%w: tile entry %d index %d", ErrCorrupt, i, t.Index)
		}
		r := t.Rect
		if r.Min.X > r.Max.X || r.Min.Y > r.Max.Y || r.Min.X < 0 || r.Min.Y < 0 ||
			r.Max.X > bounds.Max.X || r.Max.Y > bounds.Max.Y {
			return fmt.Errorf("%w: tile %d rect %v outside %v", ErrCorrupt, t.Index, t.Rect, bounds)
		}
	}
	if need := s.Tiles.PackedSize(s.Format); len(s.Packed) != need {
		return fmt.Errorf("%w: packed stream has %d bytes, tiles need %d", ErrCorrupt, len(s.Packed), need)
	}
	return nil
}

// Merge applies snapshots in order to a new buffer, so the last snapshot
// covering a pixel wins. All snapshots must share format and dimensions.
// The returned list holds each distinct tile once, in first-seen order;
// capturing it from the merged buffer yields a snapshot equivalent to the
// sequence.
func Merge(snaps ...*Snapshot) (*fb.Buffer, fb.TileList, error) {
	if len(snaps) == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to merge", ErrIncompatible)
	}
	first := snaps[0]
	for i, s := range snaps[1:] {
		if s.Format != first.Format || s.Width != first.Width || s.Height != first.Height {
			return nil, nil, fmt.Errorf("%w: snapshot %d is %v %dx%d, want %v %dx%d", ErrIncompatible,
				i+1, s.Format, s.Width, s.Height, first.Format, first.Width, first.Height)
		}
	}

	b, err := fb.NewBuffer(first.Format, first.Width, first.Height)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[fb.Tile]struct{})
	var tiles fb.TileList
	for i, s := range snaps {
		if err := s.ApplyTo(b); err != nil {
			b.CleanUp()
			return nil, nil, fmt.Errorf("checkpoint: merge snapshot %d: %w", i, err)
		}
		for _, t := range s.Tiles {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tiles = append(tiles, t)
		}
	}
	fb.Logger().Debug("checkpoint: merged snapshots", "count", len(snaps), "tiles", len(tiles))
	return b, tiles, nil
}
