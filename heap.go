//go:build linux && amd64

package collam

import (
	"os"
	"unsafe"

	"github.com/gcarq/collam/internal/sys"
)

// trimLimit is the smallest trailing free region handed back to the
// kernel. Trimming any positive amount would be correct, but pays a
// syscall per free and takes the topmost block away from in-place
// realloc growth.
var trimLimit = uintptr(os.Getpagesize())

// heap owns the single contiguous segment [base, brk). Every byte of it
// belongs to exactly one block; blocks are physically adjacent with no
// gaps, so walking by successive headers from base lands exactly on the
// break. All methods assume the caller holds the heap lock.
type heap struct {
	base uintptr
	brk  uintptr
	free freeList

	// sbrk is the break source. It defaults to sys.Sbrk on first use;
	// the scenario tests install a simulated break over a private slab.
	sbrk func(int) (uintptr, error)

	allocs uint64 // live allocations
	grows  uint64 // break extensions
	trims  uint64 // break releases
}

// lazyInit captures the current program break as the heap base, bumped
// to block alignment. Runs on the first allocation under the lock; the
// preload environment rules out any earlier initialization.
func (hp *heap) lazyInit() bool {
	if hp.base != 0 {
		return true
	}
	if hp.sbrk == nil {
		hp.sbrk = sys.Sbrk
	}
	cur, err := hp.sbrk(0)
	if err != nil {
		return false
	}
	if pad := roundup(cur, blockAlign) - cur; pad != 0 {
		if _, err := hp.sbrk(int(pad)); err != nil {
			return false
		}
		cur += pad
	}
	hp.base = cur
	hp.brk = cur
	return true
}

// extend grows the break by one header plus payload bytes and mints the
// freshly exposed region as a single unlinked block. Returns nil when
// the kernel refuses.
func (hp *heap) extend(size uintptr) *header {
	delta := headerSize + size
	old, err := hp.sbrk(int(delta))
	if err != nil {
		return nil
	}
	if heapAsserts && old != hp.brk {
		panic("collam: break moved behind our back")
	}
	h := (*header)(unsafe.Pointer(old))
	h.size = size
	hp.brk = old + delta
	hp.grows++
	return h
}

// nextIn returns the physically next header, or nil when h is topmost.
func (hp *heap) nextIn(h *header) *header {
	n := uintptr(payload(h)) + h.size
	if n >= hp.brk {
		return nil
	}
	return (*header)(unsafe.Pointer(n))
}

// prevIn walks from the heap base to the physical predecessor of h, or
// nil when h is the bottom block. The header stores no back-pointer, so
// this is linear in the number of blocks; the boundary-tag alternative
// would cost another word in every free block.
func (hp *heap) prevIn(h *header) *header {
	if uintptr(unsafe.Pointer(h)) == hp.base {
		return nil
	}
	p := (*header)(unsafe.Pointer(hp.base))
	for p != nil {
		n := hp.nextIn(p)
		if n == h {
			return p
		}
		p = n
	}
	if heapAsserts {
		panic("collam: header not reached by heap walk")
	}
	return nil
}

// carveTail splits the surplus beyond size payload bytes off h and
// returns it as an unlinked block, or nil when the surplus cannot hold
// a header plus minimum payload.
func (hp *heap) carveTail(h *header, size uintptr) *header {
	if h.size < size+headerSize+minPayload {
		return nil
	}
	t := (*header)(unsafe.Add(payload(h), size))
	t.size = h.size - size - headerSize
	h.size = size
	return t
}

// alignBlock splits the leading padding off h so that the remaining
// payload starts align-aligned, releasing the padding as a free block.
func (hp *heap) alignBlock(h *header, align uintptr) *header {
	lead := leadFor(h, align)
	if lead == 0 {
		return h
	}
	nh := (*header)(unsafe.Pointer(uintptr(payload(h)) + lead - headerSize))
	nh.size = h.size - lead
	h.size = lead - headerSize
	hp.release(h)
	return nh
}

// alloc reserves a block of at least size payload bytes aligned to
// align and returns its payload, or nil on exhaustion or an oversize
// request. A block larger than needed loses its tail back to the free
// list.
func (hp *heap) alloc(size, align uintptr) unsafe.Pointer {
	if !hp.lazyInit() {
		return nil
	}
	req, ok := roundRequest(size, align)
	if !ok {
		return nil
	}
	var h *header
	if align <= blockAlign {
		if h = hp.free.findFit(req); h != nil {
			hp.free.remove(h)
		} else if h = hp.extend(req); h == nil {
			return nil
		}
	} else {
		// Growing must budget for the worst-case boosted leading pad,
		// which exceeds align alone by up to header+minPayload bytes.
		if h = hp.free.findFitAligned(req, align); h != nil {
			hp.free.remove(h)
		} else if h = hp.extend(req + align + headerSize + minPayload); h == nil {
			return nil
		}
		h = hp.alignBlock(h, align)
	}
	if t := hp.carveTail(h, req); t != nil {
		hp.free.push(t)
	}
	hp.allocs++
	return payload(h)
}

// release coalesces the unlinked free block h with its physical
// neighbors, then either returns the result to the kernel or links it
// into the free list. Coalescing is eager and total: no two free blocks
// are ever physically adjacent.
func (hp *heap) release(h *header) {
	if p := hp.prevIn(h); p != nil && hp.free.contains(p) {
		hp.free.remove(p)
		p.size += headerSize + h.size
		h = p
	}
	if n := hp.nextIn(h); n != nil && hp.free.contains(n) {
		hp.free.remove(n)
		h.size += headerSize + n.size
	}
	hp.trimOrPush(h)
}

// trimOrPush lowers the break past a topmost free block worth a
// syscall, otherwise links the block into the free list. A refused brk
// loses nothing: the block simply stays linked.
func (hp *heap) trimOrPush(h *header) {
	delta := headerSize + h.size
	if uintptr(unsafe.Pointer(h))+delta == hp.brk && delta >= trimLimit {
		if _, err := hp.sbrk(-int(delta)); err == nil {
			hp.brk -= delta
			hp.trims++
			return
		}
	}
	hp.free.push(h)
}

// freePtr resolves and releases an allocated payload pointer.
func (hp *heap) freePtr(p unsafe.Pointer) {
	h := headerOf(p)
	if heapAsserts {
		if uintptr(p) < hp.base+headerSize || uintptr(p) >= hp.brk {
			panic("collam: free of pointer outside heap")
		}
		if hp.free.contains(h) {
			panic("collam: double free")
		}
	}
	hp.allocs--
	hp.release(h)
}

// realloc resizes the block at p to hold size bytes: in place when the
// rounded size already fits or the physically next block is free and
// large enough, otherwise by moving. On a failed move the original
// block is left untouched and nil returns.
func (hp *heap) realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	h := headerOf(p)
	req, ok := roundRequest(size, blockAlign)
	if !ok {
		return nil
	}
	if h.size >= req {
		hp.shrink(h, req)
		return p
	}
	if n := hp.nextIn(h); n != nil && h.size+headerSize+n.size >= req && hp.free.contains(n) {
		hp.free.remove(n)
		h.size += headerSize + n.size
		hp.shrink(h, req)
		return p
	}
	q := hp.alloc(size, blockAlign)
	if q == nil {
		return nil
	}
	cnt := h.size
	if req < cnt {
		cnt = req
	}
	copy(unsafe.Slice((*byte)(q), cnt), unsafe.Slice((*byte)(p), cnt))
	hp.allocs--
	hp.release(h)
	return q
}

// shrink trims h down to req payload bytes and releases the surplus,
// keeping the no-adjacent-free invariant intact.
func (hp *heap) shrink(h *header, req uintptr) {
	if t := hp.carveTail(h, req); t != nil {
		hp.release(t)
	}
}
