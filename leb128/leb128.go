// Package leb128 decodes the variable-length integer encodings used
// throughout DWARF expressions and headers.
package leb128

// DecodeULEB128 decodes an unsigned little-endian base-128 value from the
// start of encoded. It returns the decoded value and the number of bytes
// consumed.
//
// Algorithm taken from the DWARF standard, "Variable Length Data:
// LEB128", figure showing the ULEB128 decode loop.
func DecodeULEB128(encoded []uint8) (uint64, int) {
	var result uint64
	var shift uint64

	var n int
	for _, v := range encoded {
		n++
		result |= uint64(v&0x7f) << shift
		if v&0x80 == 0x00 {
			break
		}
		shift += 7
	}

	return result, n
}

// DecodeSLEB128 decodes a signed little-endian base-128 value from the
// start of encoded. It returns the decoded value and the number of bytes
// consumed.
func DecodeSLEB128(encoded []uint8) (int64, int) {
	const size = 64

	var result int64
	var shift uint64

	var v uint8
	var n int
	for _, v = range encoded {
		n++
		result |= int64(v&0x7f) << shift
		shift += 7
		if v&0x80 == 0x00 {
			break
		}
	}

	// sign extend from the last byte consumed
	if shift < size && v&0x40 > 0 {
		result |= -(1 << shift)
	}

	return result, n
}
