package compression

// Run-length coding for the RLE codec. Each block starts with a signed
// count byte c:
//
//	c < 0:  the next byte repeats 1-c times
//	c >= 0: the next c+1 bytes are literals
//
// After the shuffle and delta filters, flat regions of a payload become
// long runs of zero bytes, which this coding collapses.
const (
	rleMinRun = 3
	rleMaxRun = 127
)

// rleCompress encodes src. The output is at most len(src)+len(src)/127+1
// bytes.
func rleCompress(src []byte) []byte {
	dst := make([]byte, 0, len(src)/2+16)
	for i := 0; i < len(src); {
		v := src[i]
		end := i + 1
		for end < len(src) && src[end] == v && end-i < rleMaxRun {
			end++
		}
		if n := end - i; n >= rleMinRun {
			dst = append(dst, byte(-(n - 1)), v)
			i = end
			continue
		}

		start := i
		for i < len(src) && i-start < rleMaxRun {
			if i+rleMinRun <= len(src) && src[i+1] == src[i] && src[i+2] == src[i] {
				break
			}
			i++
		}
		dst = append(dst, byte(i-start-1))
		dst = append(dst, src[start:i]...)
	}
	return dst
}

// rleDecompressTo decodes src into dst, which must be exactly the decoded
// size.
func rleDecompressTo(dst, src []byte) error {
	if len(src) == 0 && len(dst) > 0 {
		return ErrCorrupted
	}
	pos := 0
	for i := 0; i < len(src); {
		c := int(int8(src[i]))
		i++
		if c < 0 {
			n := 1 - c
			if i >= len(src) {
				return ErrCorrupted
			}
			if pos+n > len(dst) {
				return ErrSizeMismatch
			}
			v := src[i]
			i++
			for end := pos + n; pos < end; pos++ {
				dst[pos] = v
			}
			continue
		}
		n := c + 1
		if i+n > len(src) {
			return ErrCorrupted
		}
		if pos+n > len(dst) {
			return ErrSizeMismatch
		}
		pos += copy(dst[pos:], src[i:i+n])
		i += n
	}
	if pos != len(dst) {
		return ErrSizeMismatch
	}
	return nil
}
