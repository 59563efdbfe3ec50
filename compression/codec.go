package compression

import (
	"errors"
	"fmt"
	"strings"
)

// Compression errors
var (
	ErrCorrupted    = errors.New("compression: corrupted data")
	ErrSizeMismatch = errors.New("compression: decompressed size mismatch")
	ErrUnknownCodec = errors.New("compression: unknown codec")
)

// Codec identifies a payload compression method. The numeric values are
// stored in checkpoint envelopes and must not change.
type Codec uint8

const (
	// None stores the payload unfiltered.
	None Codec = 0
	// ZIP shuffles, delta-encodes and deflates the payload (zlib framing).
	ZIP Codec = 1
	// ZSTD shuffles, delta-encodes and zstd-compresses the payload.
	ZSTD Codec = 2
	// RLE shuffles, delta-encodes and run-length codes the payload. It
	// ignores the level.
	RLE Codec = 3
)

var codecNames = [...]string{
	None: "none",
	ZIP:  "zip",
	ZSTD: "zstd",
	RLE:  "rle",
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	return int(c) < len(codecNames)
}

func (c Codec) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
	return codecNames[c]
}

// ParseCodec returns the codec with the given case-insensitive name.
func ParseCodec(s string) (Codec, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range codecNames {
		if n == name {
			return Codec(c), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Compress encodes src with codec. stride is the size of one channel value
// in bytes and drives the byte shuffle; values below 2 disable it. src is
// not modified.
func Compress(codec Codec, src []byte, level Level, stride int) ([]byte, error) {
	switch codec {
	case None:
		return append([]byte(nil), src...), nil
	case ZIP, ZSTD, RLE:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
	if len(src) == 0 {
		return nil, nil
	}

	filtered := Shuffle(src, stride, nil)
	DeltaEncode(filtered)

	switch codec {
	case ZIP:
		return zipCompress(filtered, level)
	case RLE:
		return rleCompress(filtered), nil
	}
	return zstdCompress(filtered, level)
}

// Decompress reverses Compress. expectedSize is the exact size of the
// original payload; a stream that inflates to any other size fails with
// ErrSizeMismatch.
func Decompress(codec Codec, src []byte, expectedSize int, stride int) ([]byte, error) {
	if expectedSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, expectedSize)
	}

	filtered := make([]byte, expectedSize)
	switch codec {
	case None:
		if len(src) != expectedSize {
			return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, len(src), expectedSize)
		}
		copy(filtered, src)
		return filtered, nil
	case ZIP:
		if err := zipDecompressTo(filtered, src); err != nil {
			return nil, err
		}
	case ZSTD:
		if err := zstdDecompressTo(filtered, src); err != nil {
			return nil, err
		}
	case RLE:
		if err := rleDecompressTo(filtered, src); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	DeltaDecode(filtered)
	return Unshuffle(filtered, stride, nil), nil
}
