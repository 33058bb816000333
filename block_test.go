//go:build linux && amd64

package collam

import (
	"testing"
	"unsafe"
)

func TestRoundRequest(t *testing.T) {
	tests := []struct {
		n, align uintptr
		want     uintptr
		ok       bool
	}{
		{0, 16, 16, true},
		{1, 16, 16, true},
		{16, 16, 16, true},
		{17, 16, 32, true},
		{100, 16, 112, true},
		{100, 8, 112, true}, // alignment below the block granule rounds up
		{64, 64, 64, true},
		{100, 256, 256, true},
		{maxRequest, 16, maxRequest, true},
		{maxRequest + 1, 16, 0, false},
		{16, 0, 0, false},
		{16, 3, 0, false},
		{16, maxAlign << 1, 0, false},
	}
	for _, tc := range tests {
		got, ok := roundRequest(tc.n, tc.align)
		if got != tc.want || ok != tc.ok {
			t.Errorf("roundRequest(%d, %d) = (%d, %v), want (%d, %v)",
				tc.n, tc.align, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHeaderArithmetic(t *testing.T) {
	var buf [64]byte
	h := (*header)(unsafe.Pointer(roundup(uintptr(unsafe.Pointer(&buf[0])), blockAlign)))
	h.size = 32

	p := payload(h)
	if uintptr(p) != uintptr(unsafe.Pointer(h))+headerSize {
		t.Fatalf("payload %p not %d bytes past header %p", p, headerSize, h)
	}
	if headerOf(p) != h {
		t.Fatalf("headerOf(payload(h)) = %p, want %p", headerOf(p), h)
	}
	if unsafe.Pointer(node(h)) != p {
		t.Fatal("free-list node must overlay the payload start")
	}
	if unsafe.Sizeof(*h) != headerSize {
		t.Fatalf("header is %d bytes, want %d", unsafe.Sizeof(*h), headerSize)
	}
	if unsafe.Sizeof(freeNode{}) > minPayload {
		t.Fatal("minimum payload cannot hold the free-list links")
	}
}
