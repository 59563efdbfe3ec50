package checkpoint

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-fbutil/compression"
	"github.com/mrjoshuak/go-fbutil/fb"
)

// gradient returns a Float4 buffer with a distinct value in every channel.
func gradient(t *testing.T, w, h int) *fb.Buffer {
	t.Helper()
	b, err := fb.NewBuffer(fb.Float4, w, h)
	require.NoError(t, err)
	px := b.Float4s()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px[y*w+x] = fb.Vec4{float32(x) / float32(w), float32(y) / float32(h), 0.25, 1}
		}
	}
	return b
}

func TestCaptureApply(t *testing.T) {
	src := gradient(t, 16, 16)
	tiler := fb.NewTiler(16, 16)

	s, err := Capture(src, tiler.Tiles(0, 2))
	require.NoError(t, err)
	assert.Len(t, s.Packed, 2048)
	assert.InDelta(t, 0.5, s.Coverage(), 1e-9)

	dst, err := s.NewBuffer()
	require.NoError(t, err)
	defer dst.CleanUp()

	want := src.Float4s()
	got := dst.Float4s()
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			i := y*16 + x
			if x < 8 {
				assert.Equal(t, want[i], got[i], "pixel (%d,%d)", x, y)
			} else {
				assert.Equal(t, fb.Vec4{}, got[i], "pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestApplyIncompatible(t *testing.T) {
	src := gradient(t, 16, 16)
	s, err := Capture(src, fb.NewTiler(16, 16).All())
	require.NoError(t, err)

	other, err := fb.NewBuffer(fb.Float4, 16, 8)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ApplyTo(other), ErrIncompatible)

	rgba, err := fb.NewBuffer(fb.RGBA8888, 16, 16)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ApplyTo(rgba), ErrIncompatible)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	formats := []fb.PixelFormat{fb.RGB888, fb.RGBA8888, fb.Float, fb.Float2, fb.Float3, fb.Float4}
	codecs := []compression.Codec{compression.None, compression.ZIP, compression.ZSTD, compression.RLE}

	for _, f := range formats {
		b, err := fb.NewBuffer(f, 21, 13)
		require.NoError(t, err)
		for i := range b.Data() {
			b.Data()[i] = byte(i * 7)
		}
		tiler := fb.NewTiler(21, 13)
		s, err := Capture(b, tiler.Tiles(5, 0, 4, 5))
		require.NoError(t, err)

		for _, c := range codecs {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, s, Options{Codec: c}), "%v/%v", f, c)

			got, err := Read(&buf)
			require.NoError(t, err, "%v/%v", f, c)
			assert.Equal(t, s, got, "%v/%v", f, c)
			assert.Zero(t, buf.Len(), "%v/%v: trailing bytes", f, c)
		}
	}
}

func TestEnvelopeLayout(t *testing.T) {
	b := gradient(t, 16, 16)
	s, err := Capture(b, fb.NewTiler(16, 16).Tiles(3))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, Options{Codec: compression.None}))
	data := buf.Bytes()

	require.Len(t, data, fixedHeaderSize+tileRecordSize+lengthsSize+1024)
	assert.Equal(t, "FBCK", string(data[:4]))
	assert.Equal(t, []byte{Version, byte(compression.None), byte(fb.Float4), 0}, data[4:8])
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(data[12:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[16:]))
	// tile 3: index 3, rect (8,8)-(16,16)
	for i, v := range []uint32{3, 8, 8, 16, 16} {
		assert.Equal(t, v, binary.LittleEndian.Uint32(data[20+4*i:]))
	}
	assert.Equal(t, uint64(1024), binary.LittleEndian.Uint64(data[40:]))
	assert.Equal(t, uint64(1024), binary.LittleEndian.Uint64(data[48:]))
	assert.Equal(t, s.Packed, data[56:])
}

func TestReadErrors(t *testing.T) {
	b := gradient(t, 8, 8)
	s, err := Capture(b, fb.NewTiler(8, 8).All())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, Options{Codec: compression.ZIP}))
	good := buf.Bytes()

	mutate := func(fn func(d []byte)) []byte {
		d := bytes.Clone(good)
		fn(d)
		return d
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrCorrupt},
		{"magic", mutate(func(d []byte) { d[0] = 'X' }), ErrBadMagic},
		{"version", mutate(func(d []byte) { d[4] = 9 }), ErrUnsupportedVersion},
		{"codec", mutate(func(d []byte) { d[5] = 200 }), ErrCorrupt},
		{"format", mutate(func(d []byte) { d[6] = 0xff }), ErrCorrupt},
		{"flags", mutate(func(d []byte) { d[7] = 0x80 }), ErrCorrupt},
		{"width", mutate(func(d []byte) { binary.LittleEndian.PutUint32(d[8:], 0) }), ErrCorrupt},
		{"tile outside", mutate(func(d []byte) { binary.LittleEndian.PutUint32(d[32:], 9) }), ErrCorrupt},
		{"raw length", mutate(func(d []byte) { binary.LittleEndian.PutUint64(d[40:], 12) }), ErrCorrupt},
		{"truncated payload", good[:len(good)-3], ErrCorrupt},
		{"payload", mutate(func(d []byte) { d[len(d)-5] ^= 0xff }), ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEnvelopeHalf(t *testing.T) {
	// Multiples of 1/16 are exact at half precision.
	b := gradient(t, 16, 16)
	s, err := Capture(b, fb.NewTiler(16, 16).Tiles(0, 3))
	require.NoError(t, err)

	for _, c := range []compression.Codec{compression.None, compression.ZIP, compression.ZSTD, compression.RLE} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, s, Options{Codec: c, Half: true}), "%v", c)
		data := bytes.Clone(buf.Bytes())

		got, err := Read(&buf)
		require.NoError(t, err, "%v", c)
		assert.Equal(t, s, got, "%v", c)

		info, err := ReadInfo(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, FlagHalf, info.Flags)
		assert.Equal(t, uint64(len(s.Packed)/2), info.RawLen)
	}

	lossy, err := fb.NewBuffer(fb.Float, 8, 8)
	require.NoError(t, err)
	require.NoError(t, lossy.Fill(1.0/3))
	s, err = Capture(lossy, fb.NewTiler(8, 8).All())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, Options{Codec: compression.ZSTD, Half: true}))
	got, err := Read(&buf)
	require.NoError(t, err)
	dst, err := got.NewBuffer()
	require.NoError(t, err)
	defer dst.CleanUp()
	for _, v := range dst.Floats() {
		assert.InDelta(t, 1.0/3, v, 1e-3)
	}
}

func TestEnvelopeHalfIgnoredForBytes(t *testing.T) {
	b, err := fb.NewBuffer(fb.RGBA8888, 8, 8)
	require.NoError(t, err)
	s, err := Capture(b, fb.NewTiler(8, 8).All())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, Options{Codec: compression.None, Half: true}))
	assert.Equal(t, byte(0), buf.Bytes()[7])

	d := bytes.Clone(buf.Bytes())
	d[7] = FlagHalf
	_, err = Read(bytes.NewReader(d))
	assert.ErrorIs(t, err, ErrCorrupt)
}

// envelopeHeader builds an envelope header and tile table with no payload.
func envelopeHeader(w, h uint32, ntiles uint32, tiles [][5]uint32, rawLen, dataLen uint64) []byte {
	d := []byte(Magic)
	d = append(d, Version, byte(compression.ZSTD), byte(fb.Float4), 0)
	d = binary.LittleEndian.AppendUint32(d, w)
	d = binary.LittleEndian.AppendUint32(d, h)
	d = binary.LittleEndian.AppendUint32(d, ntiles)
	for _, t := range tiles {
		for _, v := range t {
			d = binary.LittleEndian.AppendUint32(d, v)
		}
	}
	if rawLen > 0 || dataLen > 0 {
		d = binary.LittleEndian.AppendUint64(d, rawLen)
		d = binary.LittleEndian.AppendUint64(d, dataLen)
	}
	return d
}

// allocatedBy returns the bytes allocated while fn runs.
func allocatedBy(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestReadLargeClaimsOnShortStream(t *testing.T) {
	const side = 8192
	raw := uint64(side * side * 16)

	tests := []struct {
		name string
		data []byte
	}{
		{"payload", envelopeHeader(side, side, 1, [][5]uint32{{0, 0, 0, side, side}}, raw, raw+raw/8)},
		{"tile table", envelopeHeader(side, side, 1<<24, nil, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			n := allocatedBy(func() {
				_, err = Read(bytes.NewReader(tt.data))
			})
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Less(t, n, uint64(16<<20), "allocated %d bytes", n)

			n = allocatedBy(func() {
				_, err = ReadInfo(bytes.NewReader(tt.data))
			})
			if tt.name == "payload" {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrCorrupt)
			}
			assert.Less(t, n, uint64(16<<20), "allocated %d bytes", n)
		})
	}
}

func TestReadLimit(t *testing.T) {
	b := gradient(t, 16, 16)
	s, err := Capture(b, fb.NewTiler(16, 16).Tiles(0))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, DefaultOptions()))

	_, err = ReadLimit(bytes.NewReader(buf.Bytes()), 16*16*16-1)
	assert.ErrorIs(t, err, ErrCorrupt, "frame over limit")

	got, err := ReadLimit(bytes.NewReader(buf.Bytes()), 16*16*16)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestWriteRejectsInconsistentSnapshot(t *testing.T) {
	b := gradient(t, 8, 8)
	s, err := Capture(b, fb.NewTiler(8, 8).All())
	require.NoError(t, err)

	s.Packed = s.Packed[:10]
	assert.ErrorIs(t, Write(&bytes.Buffer{}, s, DefaultOptions()), ErrCorrupt)
}

func TestMergeLastWriterWins(t *testing.T) {
	tiler := fb.NewTiler(16, 8)

	a, err := fb.NewBuffer(fb.Float, 16, 8)
	require.NoError(t, err)
	require.NoError(t, a.Fill(1))
	b, err := fb.NewBuffer(fb.Float, 16, 8)
	require.NoError(t, err)
	require.NoError(t, b.Fill(2))

	sa, err := Capture(a, tiler.Tiles(0, 1))
	require.NoError(t, err)
	sb, err := Capture(b, tiler.Tiles(1))
	require.NoError(t, err)

	merged, tiles, err := Merge(sa, sb)
	require.NoError(t, err)
	defer merged.CleanUp()

	assert.Equal(t, []int{0, 1}, tiles.Indices())
	px := merged.Floats()
	assert.Equal(t, float32(1), px[0])
	assert.Equal(t, float32(2), px[8])
	assert.Equal(t, float32(2), px[7*16+15])

	_, _, err = Merge()
	assert.ErrorIs(t, err, ErrIncompatible)

	c, err := fb.NewBuffer(fb.Float, 8, 8)
	require.NoError(t, err)
	sc, err := Capture(c, fb.NewTiler(8, 8).All())
	require.NoError(t, err)
	_, _, err = Merge(sa, sc)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	b := gradient(t, 24, 16)
	tiler := fb.NewTiler(24, 16)

	var paths []string
	for part := 0; part < 3; part++ {
		var idx []int
		for i := part; i < tiler.TileCount(); i += 3 {
			idx = append(idx, i)
		}
		s, err := Capture(b, tiler.Tiles(idx...))
		require.NoError(t, err)
		p := filepath.Join(dir, "part"+string(rune('0'+part))+".fbck")
		require.NoError(t, WriteFile(p, s, DefaultOptions()))
		paths = append(paths, p)
	}

	snaps, err := ReadFiles(paths...)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	merged, tiles, err := Merge(snaps...)
	require.NoError(t, err)
	defer merged.CleanUp()
	assert.Len(t, tiles, tiler.TileCount())
	assert.True(t, merged.Equal(b))

	_, err = ReadFiles(append(paths, filepath.Join(dir, "missing.fbck"))...)
	assert.Error(t, err)
}

func TestReadInfo(t *testing.T) {
	b := gradient(t, 16, 16)
	s, err := Capture(b, fb.NewTiler(16, 16).Tiles(1, 2))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.fbck")
	require.NoError(t, WriteFile(path, s, Options{Codec: compression.ZIP, Level: 9}))

	info, err := ReadInfoFile(path)
	require.NoError(t, err)
	assert.Equal(t, compression.ZIP, info.Codec)
	assert.Equal(t, fb.Float4, info.Format)
	assert.Equal(t, 16, info.Width)
	assert.Equal(t, []int{1, 2}, info.Tiles.Indices())
	assert.Equal(t, uint64(2048), info.RawLen)
	assert.Less(t, info.DataLen, info.RawLen)
}
