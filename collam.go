//go:build linux && amd64

// Package collam implements a general-purpose dynamic memory allocator
// for 64-bit Linux, backed by a single contiguous heap grown and shrunk
// through the program break.
//
// Every block carries a 16-byte in-band header; free blocks are threaded
// on one intrusive doubly-linked list scanned first-fit. Allocation
// splits oversized blocks, freeing eagerly coalesces physical neighbors,
// and trailing free space is opportunistically handed back to the
// kernel. One process-wide futex lock serializes the whole heap, so any
// thread may call any entry point at any time.
//
// The package is the core behind the LD_PRELOAD shim in libcollam; the
// exported functions mirror the platform allocator contract, including
// nil returns on out-of-memory instead of panics.
package collam

import (
	"fmt"
	"math/bits"
	"os"
	"unsafe"

	"github.com/gcarq/collam/internal/sys"
)

// trace logs every public call to stderr. It must stay disabled in
// builds that preload the shim: the write path may not re-enter the
// allocator.
const trace = false

var (
	mu     sys.Mutex
	global heap
)

// Malloc returns a block of at least size bytes, 16-byte aligned, or
// nil when the heap cannot grow. A zero-byte request returns a distinct
// minimum-size block, so the result is always valid to pass to Free.
func Malloc(size uintptr) unsafe.Pointer {
	return Alloc(size, blockAlign)
}

// Alloc returns a block of at least size bytes whose address is a
// multiple of align. align must be a power of two; alignments above
// 16 are honored by over-allocating and splitting off the leading
// padding. Returns nil when the rounded request overflows, the
// alignment is unsupported, or the kernel refuses to grow the heap.
func Alloc(size, align uintptr) (p unsafe.Pointer) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "alloc(%#x, %d) %p\n", size, align, p) }()
	}
	mu.Lock()
	p = global.alloc(size, align)
	mu.Unlock()
	return p
}

// Calloc returns a zero-filled block of n*size bytes, or nil when the
// multiplication overflows or the allocation fails. The heap hands out
// recycled memory, so the fill is explicit rather than relying on fresh
// pages from the kernel.
func Calloc(n, size uintptr) (p unsafe.Pointer) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "calloc(%#x, %#x) %p\n", n, size, p) }()
	}
	hi, lo := bits.Mul64(uint64(n), uint64(size))
	if hi != 0 {
		return nil
	}
	p = Alloc(uintptr(lo), blockAlign)
	if p != nil {
		clear(unsafe.Slice((*byte)(p), lo))
	}
	return p
}

// Realloc resizes the block at p to size bytes. Realloc(nil, size) is
// Malloc(size); Realloc(p, 0) frees p and returns nil. The block is
// resized in place when possible, otherwise the contents move to a new
// block and p is freed. On failure the block at p is left untouched and
// nil returns.
func Realloc(p unsafe.Pointer, size uintptr) (q unsafe.Pointer) {
	if trace {
		defer func() { fmt.Fprintf(os.Stderr, "realloc(%p, %#x) %p\n", p, size, q) }()
	}
	if p == nil {
		return Malloc(size)
	}
	if size == 0 {
		Free(p)
		return nil
	}
	mu.Lock()
	q = global.realloc(p, size)
	mu.Unlock()
	return q
}

// Free returns the block at p to the heap, merging it with free
// physical neighbors. Free(nil) is a no-op. p must have been returned
// by Malloc, Calloc, Realloc or Alloc and not freed since; anything
// else is undefined behavior, exactly as with the platform allocator.
func Free(p unsafe.Pointer) {
	if trace {
		fmt.Fprintf(os.Stderr, "free(%p)\n", p)
	}
	if p == nil {
		return
	}
	mu.Lock()
	global.freePtr(p)
	mu.Unlock()
}

// UsableSize reports the payload size of the block at p, which is at
// least the size originally requested. UsableSize(nil) is 0.
func UsableSize(p unsafe.Pointer) uintptr {
	if p == nil {
		return 0
	}
	mu.Lock()
	n := headerOf(p).size
	mu.Unlock()
	return n
}

// Mallopt exists for ABI compatibility with the platform allocator. It
// ignores param and value and reports success.
func Mallopt(param, value int32) int32 {
	return 1
}
