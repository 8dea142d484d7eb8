package pager

import (
	"math"
	"testing"
)

func TestVarint_RoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 2, 63, 64, 127, 128, 129, 16383, 16384,
		1 << 20, 1 << 32, math.MaxUint32, math.MaxUint64}
	for _, v := range vals {
		buf := PutUvarint(nil, v)
		if len(buf) != SizeUvarint(v) {
			t.Fatalf("SizeUvarint(%d) = %d, encoded length = %d", v, SizeUvarint(v), len(buf))
		}
		got, n, err := GetUvarint(buf, math.MaxUint64)
		if err != nil {
			t.Fatalf("GetUvarint(%d): %v", v, err)
		}
		if n != len(buf) {
			t.Fatalf("GetUvarint(%d) consumed %d bytes, want %d", v, n, len(buf))
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %d, want %d", got, v)
		}
	}
}

func TestVarint_TruncatedStream(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80}
	if _, _, err := GetUvarint(buf, math.MaxUint64); err == nil {
		t.Fatalf("expected error on truncated varint stream")
	}
}

func TestVarint_ExceedsMax(t *testing.T) {
	buf := PutUvarint(nil, 1000)
	if _, _, err := GetUvarint(buf, 100); err == nil {
		t.Fatalf("expected error when decoded value exceeds max")
	}
}

func TestVarint_AppendsInPlace(t *testing.T) {
	dst := []byte{0xAA}
	dst = PutUvarint(dst, 300)
	if dst[0] != 0xAA {
		t.Fatalf("PutUvarint must not clobber existing prefix")
	}
	got, n, err := GetUvarint(dst[1:], math.MaxUint64)
	if err != nil || n != 2 || got != 300 {
		t.Fatalf("got=%d n=%d err=%v, want 300,2,nil", got, n, err)
	}
}
