// Package compression provides the payload codecs used by checkpoint
// envelopes.
package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Level is a codec-specific compression level. 0 selects the codec default.
//
// For ZIP valid values are -2 to 9:
//   - -2: Huffman-only compression (klauspost extension)
//   - -1: Default compression (level 6)
//   - 1: Best speed
//   - 9: Best compression
//
// For ZSTD valid values are 1 to 22 and are mapped to the nearest
// encoder speed.
type Level int

// DefaultLevel selects the codec default.
const DefaultLevel Level = 0

// Pool for zlib writers at the default level.
// Each pooled item contains both the writer and its destination buffer.
type zlibWriterPoolItem struct {
	writer *zlib.Writer
	buf    *bytes.Buffer
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		buf := new(bytes.Buffer)
		w, _ := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
		return &zlibWriterPoolItem{writer: w, buf: buf}
	},
}

// zipCompress deflates src into a zlib stream.
func zipCompress(src []byte, level Level) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}

	if level == DefaultLevel || level == zlib.DefaultCompression {
		item := zlibWriterPool.Get().(*zlibWriterPoolItem)
		defer zlibWriterPool.Put(item)
		item.buf.Reset()
		item.writer.Reset(item.buf)

		if _, err := item.writer.Write(src); err != nil {
			item.writer.Close()
			return nil, err
		}
		if err := item.writer.Close(); err != nil {
			return nil, err
		}
		return bytes.Clone(item.buf.Bytes()), nil
	}

	buf := new(bytes.Buffer)
	w, err := zlib.NewWriterLevel(buf, int(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zlibReaderPoolItem wraps a zlib reader for pooling
type zlibReaderPoolItem struct {
	reader io.ReadCloser
	srcBuf *bytes.Reader
}

var zlibReaderPool = sync.Pool{
	New: func() any {
		return &zlibReaderPoolItem{
			srcBuf: bytes.NewReader(nil),
		}
	},
}

// zipDecompressTo inflates src into dst, which must be exactly the size of
// the decompressed data.
func zipDecompressTo(dst, src []byte) error {
	if len(src) == 0 {
		if len(dst) != 0 {
			return ErrCorrupted
		}
		return nil
	}

	item := zlibReaderPool.Get().(*zlibReaderPoolItem)
	defer zlibReaderPool.Put(item)
	item.srcBuf.Reset(src)

	var err error
	if r, ok := item.reader.(zlib.Resetter); ok {
		err = r.Reset(item.srcBuf, nil)
	} else {
		item.reader, err = zlib.NewReader(item.srcBuf)
	}
	if err != nil {
		item.reader = nil
		return ErrCorrupted
	}

	n, err := io.ReadFull(item.reader, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ErrCorrupted
	}
	if n != len(dst) {
		return ErrSizeMismatch
	}
	// The stream must end here; reading to EOF also verifies the checksum.
	var extra [1]byte
	m, err := item.reader.Read(extra[:])
	if m != 0 {
		return ErrSizeMismatch
	}
	if err != io.EOF {
		return ErrCorrupted
	}
	return nil
}
