package checkpoint

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/mrjoshuak/go-fbutil/compression"
	"github.com/mrjoshuak/go-fbutil/fb"
	"github.com/mrjoshuak/go-fbutil/internal/half"
	"github.com/mrjoshuak/go-fbutil/internal/xdr"
)

// Magic identifies a checkpoint envelope.
const Magic = "FBCK"

// Version is the envelope version written by Write.
const Version = 1

const (
	fixedHeaderSize = 4 + 4 + 3*4 // magic, version/codec/format/flags, width/height/ntiles
	tileRecordSize  = 5 * 4
	lengthsSize     = 2 * 8

	maxUint32 = 1<<32 - 1

	// maxTiles bounds the tile table of an envelope being read.
	maxTiles = 1 << 24
	// MaxPayload is the raw payload limit Read applies.
	MaxPayload = 1 << 36

	// tileChunk is the number of tile records read per call.
	tileChunk = 1024
)

// Envelope flags
const (
	// FlagHalf marks a float payload stored at half precision. rawLen is
	// then the size of the half stream, half the unpacked size.
	FlagHalf uint8 = 1 << 0

	knownFlags = FlagHalf
)

// Options control how Write encodes the payload.
type Options struct {
	Codec compression.Codec
	Level compression.Level

	// Half stores float payloads at half precision. Values lose precision
	// and saturate beyond 65504. Ignored for 8-bit formats.
	Half bool
}

// DefaultOptions returns zstd at its default level.
func DefaultOptions() Options {
	return Options{Codec: compression.ZSTD}
}

// stride is the shuffle element size for a format's stored payload.
func stride(f fb.PixelFormat, flags uint8) int {
	if flags&FlagHalf != 0 {
		return 2
	}
	return f.ChannelSize()
}

// Write encodes s as an envelope.
func Write(w io.Writer, s *Snapshot, opts Options) error {
	if err := s.validate(); err != nil {
		return err
	}
	var flags uint8
	stored := s.Packed
	if opts.Half && s.Format.IsFloat() {
		flags |= FlagHalf
		stored = make([]byte, len(s.Packed)/2)
		half.Narrow(stored, s.Packed)
	}
	data, err := compression.Compress(opts.Codec, stored, opts.Level, stride(s.Format, flags))
	if err != nil {
		return fmt.Errorf("checkpoint: compress payload: %w", err)
	}

	hw := xdr.NewBufferWriter(fixedHeaderSize + len(s.Tiles)*tileRecordSize + lengthsSize)
	hw.WriteBytes([]byte(Magic))
	hw.WriteUint8(Version)
	hw.WriteUint8(uint8(opts.Codec))
	hw.WriteUint8(uint8(s.Format))
	hw.WriteUint8(flags)
	hw.WriteUint32(uint32(s.Width))
	hw.WriteUint32(uint32(s.Height))
	hw.WriteUint32(uint32(len(s.Tiles)))
	for _, t := range s.Tiles {
		hw.WriteUint32(uint32(t.Index))
		hw.WriteUint32(uint32(t.Rect.Min.X))
		hw.WriteUint32(uint32(t.Rect.Min.Y))
		hw.WriteUint32(uint32(t.Rect.Max.X))
		hw.WriteUint32(uint32(t.Rect.Max.Y))
	}
	hw.WriteUint64(uint64(len(stored)))
	hw.WriteUint64(uint64(len(data)))

	if _, err := w.Write(hw.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	fb.Logger().Debug("checkpoint: wrote envelope",
		"format", s.Format, "tiles", len(s.Tiles), "codec", opts.Codec, "flags", flags,
		"raw", len(stored), "data", len(data))
	return nil
}

// readExact reads n bytes from r, mapping a short read to ErrCorrupt.
func readExact(r io.Reader, n int, what string) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated %s", ErrCorrupt, what)
		}
		return nil, err
	}
	return buf, nil
}

// Info describes an envelope without its payload.
type Info struct {
	Codec   compression.Codec
	Flags   uint8
	Format  fb.PixelFormat
	Width   int
	Height  int
	Tiles   fb.TileList
	RawLen  uint64
	DataLen uint64
}

// readInfo decodes and validates everything up to the payload. The tile
// table is read in chunks so memory grows with the bytes actually present.
// limit bounds both the raw payload and the frame the envelope describes.
func readInfo(r io.Reader, limit uint64) (*Info, error) {
	head, err := readExact(r, fixedHeaderSize, "header")
	if err != nil {
		return nil, err
	}
	hr := xdr.NewReader(head)
	magic, _ := hr.ReadBytes(len(Magic))
	if string(magic) != Magic {
		return nil, ErrBadMagic
	}
	version, _ := hr.ReadUint8()
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	codecTag, _ := hr.ReadUint8()
	formatTag, _ := hr.ReadUint8()
	flags, _ := hr.ReadUint8()
	width, _ := hr.ReadUint32()
	height, _ := hr.ReadUint32()
	ntiles, _ := hr.ReadUint32()

	codec := compression.Codec(codecTag)
	if !codec.Valid() {
		return nil, fmt.Errorf("%w: codec %d", ErrCorrupt, codecTag)
	}
	format := fb.PixelFormat(formatTag)
	if !format.Valid() {
		return nil, fmt.Errorf("%w: pixel format %d", ErrCorrupt, formatTag)
	}
	if flags&^knownFlags != 0 {
		return nil, fmt.Errorf("%w: flags %#x", ErrCorrupt, flags)
	}
	if flags&FlagHalf != 0 && !format.IsFloat() {
		return nil, fmt.Errorf("%w: half flag on %v payload", ErrCorrupt, format)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, width, height)
	}
	if ntiles > maxTiles {
		return nil, fmt.Errorf("%w: %d tiles", ErrCorrupt, ntiles)
	}
	bpp := uint64(fb.BytesPerPixel(format))
	if uint64(width)*uint64(height) > limit/bpp {
		return nil, fmt.Errorf("%w: %dx%d %v frame exceeds %d bytes", ErrCorrupt, width, height, format, limit)
	}

	tiles := make(fb.TileList, 0, min(int(ntiles), tileChunk))
	var rawBytes uint64
	for remaining := int(ntiles); remaining > 0; {
		n := min(remaining, tileChunk)
		chunk, err := readExact(r, n*tileRecordSize, "tile table")
		if err != nil {
			return nil, err
		}
		remaining -= n
		tr := xdr.NewReader(chunk)
		for range n {
			var v [5]uint32
			for j := range v {
				v[j], _ = tr.ReadUint32()
			}
			x0, y0, x1, y1 := v[1], v[2], v[3], v[4]
			if x0 > x1 || y0 > y1 || x1 > width || y1 > height {
				return nil, fmt.Errorf("%w: tile %d rect (%d,%d)-(%d,%d) outside %dx%d",
					ErrCorrupt, v[0], x0, y0, x1, y1, width, height)
			}
			tiles = append(tiles, fb.Tile{
				Index: int(v[0]),
				Rect:  image.Rect(int(x0), int(y0), int(x1), int(y1)),
			})
			rawBytes += uint64(x1-x0) * uint64(y1-y0) * bpp
			if rawBytes > limit {
				return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrCorrupt, limit)
			}
		}
	}
	if flags&FlagHalf != 0 {
		rawBytes /= 2
	}
	lengths, err := readExact(r, lengthsSize, "tile table")
	if err != nil {
		return nil, err
	}
	lr := xdr.NewReader(lengths)
	rawLen, _ := lr.ReadUint64()
	dataLen, _ := lr.ReadUint64()
	if rawLen != rawBytes {
		return nil, fmt.Errorf("%w: raw length %d, tiles need %d", ErrCorrupt, rawLen, rawBytes)
	}
	if codec == compression.None && dataLen != rawLen {
		return nil, fmt.Errorf("%w: stored length %d, raw length %d", ErrCorrupt, dataLen, rawLen)
	}
	if dataLen > rawLen+rawLen/8+1<<16 {
		return nil, fmt.Errorf("%w: data length %d for raw length %d", ErrCorrupt, dataLen, rawLen)
	}

	return &Info{
		Codec:   codec,
		Flags:   flags,
		Format:  format,
		Width:   int(width),
		Height:  int(height),
		Tiles:   tiles,
		RawLen:  rawLen,
		DataLen: dataLen,
	}, nil
}

// Read decodes one envelope from r. It reads exactly the envelope's bytes.
// Envelopes whose payload or frame exceeds MaxPayload bytes are rejected.
func Read(r io.Reader) (*Snapshot, error) {
	return ReadLimit(r, MaxPayload)
}

// ReadLimit is Read with a caller-supplied limit on the raw payload and
// frame size in bytes.
func ReadLimit(r io.Reader, limit uint64) (*Snapshot, error) {
	info, err := readInfo(r, limit)
	if err != nil {
		return nil, err
	}
	data, err := readPayload(r, info.DataLen)
	if err != nil {
		return nil, err
	}
	packed, err := compression.Decompress(info.Codec, data, int(info.RawLen), stride(info.Format, info.Flags))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if info.Flags&FlagHalf != 0 {
		wide := make([]byte, len(packed)*2)
		half.Widen(wide, packed)
		packed = wide
	}

	fb.Logger().Debug("checkpoint: read envelope",
		"format", info.Format, "width", info.Width, "height", info.Height,
		"tiles", len(info.Tiles), "codec", info.Codec, "flags", info.Flags,
		"raw", info.RawLen, "data", info.DataLen)
	return &Snapshot{
		Format: info.Format,
		Width:  info.Width,
		Height: info.Height,
		Tiles:  info.Tiles,
		Packed: packed,
	}, nil
}

// ReadInfo decodes an envelope's header and tile table from r, leaving the
// payload unread.
func ReadInfo(r io.Reader) (*Info, error) {
	return readInfo(r, MaxPayload)
}

// readPayload reads n bytes from r. The buffer grows with the data that
// arrives, so a header claiming a large payload over a short stream fails
// without allocating the claimed size.
func readPayload(r io.Reader, n uint64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != n {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	return data, nil
}

// WriteFile writes s to path. The file is written under a temporary name in
// the same directory and renamed into place.
func WriteFile(path string, s *Snapshot, opts Options) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	bw := bufio.NewWriter(f)
	if err = Write(bw, s, opts); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile reads one envelope from path.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %s: %w", path, err)
	}
	return s, nil
}

// ReadInfoFile reads the header and tile table of the envelope at path.
func ReadInfoFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := ReadInfo(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %s: %w", path, err)
	}
	return info, nil
}

// ReadFiles reads several envelopes concurrently. Results are in path order.
func ReadFiles(paths ...string) ([]*Snapshot, error) {
	snaps := make([]*Snapshot, len(paths))
	err := fb.ParallelForWithError(len(paths), func(i int) error {
		s, err := ReadFile(paths[i])
		if err != nil {
			return err
		}
		snaps[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
