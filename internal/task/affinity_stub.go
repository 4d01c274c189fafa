//go:build !linux

package task

import "errors"

// pinCurrentThread is a no-op outside Linux; SchedSetaffinity has no
// portable equivalent, same caveat as the teacher's own Linux-only
// affinity support.
func pinCurrentThread(cpu int) error {
	return errors.New("cpu affinity not supported on this platform")
}
