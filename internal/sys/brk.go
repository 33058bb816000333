//go:build linux && amd64

// Package sys wraps the two platform facilities the allocator is built
// on: the program-break syscall and futex wait/wake. Nothing in here
// allocates.
package sys

import (
	"golang.org/x/sys/unix"
)

// Sbrk moves the program break by incr bytes and returns the previous
// break. Sbrk(0) reports the current break without moving it. Callers
// serialize; the read-then-move pair is not atomic against other break
// movers in the process.
func Sbrk(incr int) (uintptr, error) {
	cur, _, _ := unix.Syscall(unix.SYS_BRK, 0, 0, 0)
	if incr == 0 {
		return cur, nil
	}
	want := cur + uintptr(incr)
	got, _, _ := unix.Syscall(unix.SYS_BRK, want, 0, 0)
	if got != want {
		return 0, unix.ENOMEM
	}
	return cur, nil
}
