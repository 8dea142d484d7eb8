package pager

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Varint codec
// ───────────────────────────────────────────────────────────────────────────
//
// Unsigned LEB128: seven payload bits per byte, high bit set on every byte
// except the last. Used to encode key and value sizes inline in cells so
// that short keys/values cost as little directory overhead as possible.

const (
	// maxVarintBytes is the longest encoding we ever need to emit: a
	// 64-bit unsigned integer takes at most 10 LEB128 bytes.
	maxVarintBytes = 10
)

// PutUvarint appends the LEB128 encoding of v to dst and returns the
// extended slice.
func PutUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// SizeUvarint returns the number of bytes PutUvarint would emit for v.
func SizeUvarint(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// GetUvarint decodes a LEB128-encoded unsigned integer from the front of
// buf. It returns the decoded value and the number of bytes consumed, or
// an error if the stream ends before a terminator byte or the value
// exceeds max.
func GetUvarint(buf []byte, max uint64) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i >= maxVarintBytes {
			return 0, 0, fmt.Errorf("varint: too long (> %d bytes)", maxVarintBytes)
		}
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			if v > max {
				return 0, 0, fmt.Errorf("varint: value %d exceeds max %d", v, max)
			}
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("varint: truncated stream")
}
