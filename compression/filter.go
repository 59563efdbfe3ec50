package compression

// Shuffle reorders data so that bytes at the same offset within each
// stride-byte element are grouped together:
//
//	stride=4: [a0,a1,a2,a3, b0,b1,b2,b3] -> [a0,b0, a1,b1, a2,b2, a3,b3]
//
// For float channels this puts the slowly varying exponent bytes next to
// each other. Trailing bytes that do not fill an element are copied as is.
// out must be len(data) bytes; if out is nil a new buffer is allocated.
func Shuffle(data []byte, stride int, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	if len(data) == 0 || stride <= 1 {
		copy(out, data)
		return out
	}

	numElements := len(data) / stride
	for offset := 0; offset < stride; offset++ {
		dstBase := offset * numElements
		for elem := 0; elem < numElements; elem++ {
			out[dstBase+elem] = data[elem*stride+offset]
		}
	}
	copy(out[stride*numElements:], data[stride*numElements:])
	return out
}

// Unshuffle reverses Shuffle.
func Unshuffle(data []byte, stride int, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	if len(data) == 0 || stride <= 1 {
		copy(out, data)
		return out
	}

	numElements := len(data) / stride
	for offset := 0; offset < stride; offset++ {
		srcBase := offset * numElements
		for elem := 0; elem < numElements; elem++ {
			out[elem*stride+offset] = data[srcBase+elem]
		}
	}
	copy(out[stride*numElements:], data[stride*numElements:])
	return out
}

// DeltaEncode replaces every byte but the first with its difference from
// the previous byte, in place.
func DeltaEncode(data []byte) {
	n := len(data)
	if n < 2 {
		return
	}

	// Work backwards to preserve values we need
	i := n - 1
	for ; i >= 8; i -= 8 {
		data[i] = data[i] - data[i-1]
		data[i-1] = data[i-1] - data[i-2]
		data[i-2] = data[i-2] - data[i-3]
		data[i-3] = data[i-3] - data[i-4]
		data[i-4] = data[i-4] - data[i-5]
		data[i-5] = data[i-5] - data[i-6]
		data[i-6] = data[i-6] - data[i-7]
		data[i-7] = data[i-7] - data[i-8]
	}
	for ; i >= 1; i-- {
		data[i] = data[i] - data[i-1]
	}
}

// DeltaDecode reverses DeltaEncode in place.
func DeltaDecode(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] += data[i-1]
	}
}
