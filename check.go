//go:build linux && amd64

package collam

import (
	"fmt"
	"unsafe"
)

// heapAsserts compiles internal consistency checks into the hot paths:
// break continuity, double-free detection, walk coverage. Disabled it
// matches the platform convention that a corrupted heap corrupts
// silently.
const heapAsserts = false

// CheckIntegrity walks the whole heap under the lock and verifies its
// structural invariants: full coverage from base to break, size and
// alignment rules, free-list link integrity, list membership matching
// free status, and no two physically adjacent free blocks. It is a
// debugging and test-harness aid, linear in heap size and unrelated to
// heapAsserts.
func CheckIntegrity() error {
	mu.Lock()
	defer mu.Unlock()
	return global.check()
}

func (hp *heap) check() error {
	if hp.base == 0 {
		return nil // first allocation hasn't happened yet
	}

	// Free-list link integrity, collecting membership for the walk.
	listed := make(map[*header]bool, hp.free.n)
	for h := hp.free.head; h != nil; h = node(h).next {
		fn := node(h)
		if fn.prev == nil && h != hp.free.head {
			return fmt.Errorf("free list: %p has no prev but is not the head", h)
		}
		if fn.prev != nil && node(fn.prev).next != h {
			return fmt.Errorf("free list: %p.prev.next != %p", h, h)
		}
		if fn.next != nil && node(fn.next).prev != h {
			return fmt.Errorf("free list: %p.next.prev != %p", h, h)
		}
		if listed[h] {
			return fmt.Errorf("free list: cycle at %p", h)
		}
		listed[h] = true
	}
	if len(listed) != hp.free.n {
		return fmt.Errorf("free list: %d nodes linked, %d counted", len(listed), hp.free.n)
	}

	// Physical walk: coverage, block rules, eager coalescing.
	var freeBytes uintptr
	blocks := 0
	prevFree := false
	for addr := hp.base; addr != hp.brk; {
		if addr > hp.brk {
			return fmt.Errorf("heap walk overran the break: %#x > %#x", addr, hp.brk)
		}
		h := (*header)(unsafe.Pointer(addr))
		if h.size < minPayload || h.size%blockAlign != 0 {
			return fmt.Errorf("block %p: invalid size %#x", h, h.size)
		}
		if uintptr(payload(h))%blockAlign != 0 {
			return fmt.Errorf("block %p: misaligned payload", h)
		}
		free := listed[h]
		if free && prevFree {
			return fmt.Errorf("block %p: physically adjacent free blocks", h)
		}
		if free {
			freeBytes += h.size
			delete(listed, h)
		}
		prevFree = free
		blocks++
		addr += headerSize + h.size
	}
	if len(listed) != 0 {
		return fmt.Errorf("%d free-list entries not reached by the heap walk", len(listed))
	}
	if freeBytes+uintptr(blocks)*headerSize > hp.brk-hp.base {
		return fmt.Errorf("free payload %#x exceeds heap span", freeBytes)
	}
	return nil
}
