//go:build !linux

package server

import "runtime"

// pinToCore locks the calling goroutine to its OS thread. Per-core
// affinity has no portable equivalent outside Linux, so non-Linux
// builds get the thread pinning without the core restriction.
func pinToCore(core int) error {
	runtime.LockOSThread()
	return nil
}
