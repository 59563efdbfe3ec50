package compression

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// floatPayload returns n float32 values of a smooth ramp, the kind of data
// checkpoint payloads carry.
func floatPayload(n int) []byte {
	data := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i%97)/97))
	}
	return data
}

func TestParseCodec(t *testing.T) {
	for _, c := range []Codec{None, ZIP, ZSTD, RLE} {
		got, err := ParseCodec(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCodec(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, ZSTD, got)

	_, err = ParseCodec("lz4")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	assert.Equal(t, "Codec(9)", Codec(9).String())
	assert.False(t, Codec(9).Valid())
}

func TestCompressRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"single":  {42},
		"odd":     {1, 2, 3, 4, 5},
		"floats":  floatPayload(4096),
		"ragged":  floatPayload(33)[:131],
		"uniform": make([]byte, 10000),
	}

	for _, codec := range []Codec{None, ZIP, ZSTD, RLE} {
		for name, src := range payloads {
			for _, stride := range []int{1, 4} {
				orig := append([]byte(nil), src...)

				enc, err := Compress(codec, src, DefaultLevel, stride)
				require.NoError(t, err, "%v/%s", codec, name)
				assert.Equal(t, orig, src, "%v/%s: source modified", codec, name)

				dec, err := Decompress(codec, enc, len(src), stride)
				require.NoError(t, err, "%v/%s", codec, name)
				assert.Equal(t, src, dec, "%v/%s stride %d", codec, name, stride)
			}
		}
	}
}

func TestCompressLevels(t *testing.T) {
	src := floatPayload(2048)
	for _, tc := range []struct {
		codec Codec
		level Level
	}{
		{ZIP, 1},
		{ZIP, 9},
		{ZIP, -2},
		{ZSTD, 1},
		{ZSTD, 19},
	} {
		enc, err := Compress(tc.codec, src, tc.level, 4)
		require.NoError(t, err, "%v level %d", tc.codec, tc.level)
		assert.Less(t, len(enc), len(src))

		dec, err := Decompress(tc.codec, enc, len(src), 4)
		require.NoError(t, err)
		assert.Equal(t, src, dec)
	}
}

func TestCompressEmpty(t *testing.T) {
	for _, codec := range []Codec{None, ZIP, ZSTD, RLE} {
		enc, err := Compress(codec, nil, DefaultLevel, 4)
		require.NoError(t, err)
		assert.Empty(t, enc)

		dec, err := Decompress(codec, enc, 0, 4)
		require.NoError(t, err)
		assert.Empty(t, dec)
	}
}

func TestDecompressErrors(t *testing.T) {
	src := floatPayload(256)

	for _, codec := range []Codec{ZIP, ZSTD, RLE} {
		enc, err := Compress(codec, src, DefaultLevel, 4)
		require.NoError(t, err)

		_, err = Decompress(codec, enc, len(src)+4, 4)
		assert.Error(t, err, "%v: larger expected size", codec)

		_, err = Decompress(codec, enc, len(src)-4, 4)
		assert.ErrorIs(t, err, ErrSizeMismatch, "%v: smaller expected size", codec)

		_, err = Decompress(codec, nil, 10, 4)
		assert.ErrorIs(t, err, ErrCorrupted, "%v: empty stream", codec)

		_, err = Decompress(codec, []byte{0x78, 0x9c, 0xff, 0xff}, len(src), 4)
		assert.Error(t, err, "%v: garbage", codec)
	}

	_, err := Decompress(None, src, len(src)-1, 4)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Compress(Codec(7), src, DefaultLevel, 4)
	assert.ErrorIs(t, err, ErrUnknownCodec)
	_, err = Decompress(Codec(7), src, len(src), 4)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func BenchmarkCompressZIP(b *testing.B) {
	src := floatPayload(64 * 1024)
	b.SetBytes(int64(len(src)))
	for i := 0; i < b.N; i++ {
		_, _ = Compress(ZIP, src, DefaultLevel, 4)
	}
}

func BenchmarkCompressZSTD(b *testing.B) {
	src := floatPayload(64 * 1024)
	b.SetBytes(int64(len(src)))
	for i := 0; i < b.N; i++ {
		_, _ = Compress(ZSTD, src, DefaultLevel, 4)
	}
}
