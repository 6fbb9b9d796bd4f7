//go:build linux

package server

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore locks the calling goroutine to its current OS thread and
// restricts that thread to a single CPU core, mirroring the dedicated,
// explicitly-affinitized pipeline threads the fan-out's scheduling model
// calls for. Call from the top of the goroutine that should own the
// core; the caller is responsible for runtime.UnlockOSThread on exit.
func pinToCore(core int) error {
	runtime.LockOSThread()
	n := runtime.NumCPU()
	if n == 0 {
		n = 1
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core % n)
	return unix.SchedSetaffinity(0, &set)
}
