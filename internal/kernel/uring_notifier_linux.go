//go:build giouring

package kernel

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// uringNotifier mirrors each successful loopback mailbox/portal enqueue
// as a write to an eventfd that an io_uring ring can read, so the
// loopback exercises a submission/completion round trip alongside its Go
// channels (SPEC_FULL.md DOMAIN STACK). The channels still carry the data
// and remain the authoritative completion signal. Opt-in via the
// "giouring" build tag, mirroring the teacher's own !giouring/giouring
// split for internal/uring.
type uringNotifier struct {
	ring    *giouring.Ring
	eventFD int
}

// newURingNotifier creates a small io_uring instance that waits on reads
// from an eventfd; Notify writes to the eventfd, Wait submits a read SQE
// and blocks on its CQE.
func newURingNotifier() (*uringNotifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("kernel: eventfd: %w", err)
	}
	ring, err := giouring.CreateRing(8)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernel: create io_uring: %w", err)
	}
	return &uringNotifier{ring: ring, eventFD: fd}, nil
}

// Notify wakes one pending Wait by writing a single 64-bit counter value
// to the eventfd, the same handshake the teacher's queue runner uses to
// wake its io_uring-driven loop from another goroutine.
func (n *uringNotifier) Notify() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(n.eventFD, buf[:])
	return err
}

// Wait blocks until the eventfd has been written to at least once since
// the last Wait, via an io_uring read SQE/CQE round trip.
func (n *uringNotifier) Wait() error {
	sqe := n.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("kernel: io_uring submission queue full")
	}
	var buf [8]byte
	sqe.PrepareRead(n.eventFD, uintptr(0), uint32(len(buf)), 0)
	sqe.UserData = 1

	if _, err := n.ring.Submit(); err != nil {
		return fmt.Errorf("kernel: io_uring submit: %w", err)
	}
	cqe, err := n.ring.WaitCQE()
	if err != nil {
		return fmt.Errorf("kernel: io_uring wait cqe: %w", err)
	}
	n.ring.CQESeen(cqe)
	if cqe.Res < 0 {
		return fmt.Errorf("kernel: io_uring read completed with %d", cqe.Res)
	}
	return nil
}

// Close releases the ring and the eventfd.
func (n *uringNotifier) Close() {
	if n.ring != nil {
		n.ring.QueueExit()
	}
	if n.eventFD >= 0 {
		unix.Close(n.eventFD)
	}
}
