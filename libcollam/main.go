//go:build linux && amd64

// The libcollam shared object replaces the platform allocator through
// dynamic-linker preloading. Each exported symbol is a thin argument
// conversion over the collam core; every other concern, including lazy
// initialization and locking, lives there.
//
// Build and inject:
//
//	go build -buildmode=c-shared -o libcollam.so ./libcollam
//	LD_PRELOAD=$PWD/libcollam.so ./some-program
package main

/*
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	"github.com/gcarq/collam"
)

//export malloc
func malloc(size C.size_t) unsafe.Pointer {
	return collam.Malloc(uintptr(size))
}

//export calloc
func calloc(nmemb, size C.size_t) unsafe.Pointer {
	return collam.Calloc(uintptr(nmemb), uintptr(size))
}

//export realloc
func realloc(ptr unsafe.Pointer, size C.size_t) unsafe.Pointer {
	return collam.Realloc(ptr, uintptr(size))
}

//export free
func free(ptr unsafe.Pointer) {
	collam.Free(ptr)
}

//export malloc_usable_size
func malloc_usable_size(ptr unsafe.Pointer) C.size_t {
	return C.size_t(collam.UsableSize(ptr))
}

//export mallopt
func mallopt(param, value C.int) C.int {
	return C.int(collam.Mallopt(int32(param), int32(value)))
}

func main() {}
