//go:build linux && amd64

package sys

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex(2) operation flags. Not exported by golang.org/x/sys/unix.
const (
	futexWait        = 0
	futexWake        = 1
	futexPrivateFlag = 128
)

// FutexWait puts the calling thread to sleep as long as *addr still
// holds val. It returns on a wake-up or spuriously; callers re-check
// their condition in a loop.
func FutexWait(addr *uint32, val uint32) {
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWait|futexPrivateFlag), uintptr(val), 0, 0, 0)
}

// FutexWake wakes up to n threads sleeping on addr.
func FutexWake(addr *uint32, n uint32) {
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWake|futexPrivateFlag), uintptr(n), 0, 0, 0)
}
