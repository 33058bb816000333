//go:build linux && amd64

package collam

import (
	"fmt"

	"github.com/inhies/go-bytesize"
)

// Stats is a point-in-time snapshot of the heap.
type Stats struct {
	HeapBytes  uint64 // span of [base, break)
	FreeBytes  uint64 // payload bytes sitting on the free list
	FreeBlocks uint64
	Allocs     uint64 // live allocations
	Grows      uint64 // break extensions
	Trims      uint64 // break releases
}

// ReadStats takes the heap lock and snapshots the counters. The free
// totals come from a list scan, so the call is linear in the number of
// free blocks.
func ReadStats() Stats {
	mu.Lock()
	defer mu.Unlock()
	s := Stats{
		HeapBytes: uint64(global.brk - global.base),
		Allocs:    global.allocs,
		Grows:     global.grows,
		Trims:     global.trims,
	}
	for h := global.free.head; h != nil; h = node(h).next {
		s.FreeBytes += uint64(h.size)
		s.FreeBlocks++
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("heap %v, free %v in %d blocks, %d live allocs, %d grows, %d trims",
		bytesize.New(float64(s.HeapBytes)), bytesize.New(float64(s.FreeBytes)),
		s.FreeBlocks, s.Allocs, s.Grows, s.Trims)
}
