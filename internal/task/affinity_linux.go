//go:build linux

package task

import "golang.org/x/sys/unix"

// pinCurrentThread pins the calling OS thread to cpu, mirroring the
// teacher's Runner.ioLoop (internal/queue/runner.go), which calls
// unix.SchedSetaffinity(0, &mask) after runtime.LockOSThread.
func pinCurrentThread(cpu int) error {
	var mask unix.CPUSet
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
