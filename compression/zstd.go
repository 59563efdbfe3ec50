package compression

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoders   = map[zstd.EncoderLevel]*zstd.Encoder{}
	zstdEncodersMu sync.Mutex

	zstdDecoder     *zstd.Decoder
	zstdDecoderOnce sync.Once
	zstdDecoderErr  error
)

// zstdEncoder returns the shared encoder for level. Encoders are safe for
// concurrent EncodeAll calls.
func zstdEncoder(level Level) (*zstd.Encoder, error) {
	el := zstd.SpeedDefault
	if level > 0 {
		el = zstd.EncoderLevelFromZstd(int(level))
	}

	zstdEncodersMu.Lock()
	defer zstdEncodersMu.Unlock()
	if enc, ok := zstdEncoders[el]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(el))
	if err != nil {
		return nil, err
	}
	zstdEncoders[el] = enc
	return enc, nil
}

func zstdCompress(src []byte, level Level) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	enc, err := zstdEncoder(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func zstdDecompressTo(dst, src []byte) error {
	if len(src) == 0 {
		if len(dst) != 0 {
			return ErrCorrupted
		}
		return nil
	}
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	if zstdDecoderErr != nil {
		return zstdDecoderErr
	}

	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return ErrCorrupted
	}
	if len(out) != len(dst) {
		return ErrSizeMismatch
	}
	// DecodeAll reallocates when the frame is larger than dst's capacity.
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
