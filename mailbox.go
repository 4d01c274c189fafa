package ikc

import (
	"context"
	"time"

	"github.com/nanvix-go/ikc/internal/comm"
	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/flow"
)

// IoctlRequest selects an ioctl(2)-style query on a mailbox or portal
// (spec.md §6 "Upward" interfaces).
type IoctlRequest int

const (
	GetVolume IoctlRequest = iota
	GetLatency
	GetNCreates
	GetNUnlinks
	GetNOpens
	GetNCloses
	GetNReads
	GetNWrites
	SetRemote
)

// Mailbox is a user-visible fixed-size message channel (spec.md §4.3).
type Mailbox struct {
	rt   *Runtime
	id   int
	port int
}

// CreateMailbox creates a mailbox bound to the given local port
// (spec.md §4.3 "create").
func (rt *Runtime) CreateMailbox(localPort int) (*Mailbox, error) {
	id := rt.raw.MailboxCreate(rt.Node(), localPort)
	if id < 0 {
		return nil, errs.New("mailbox.create", errs.CodeFault, "raw mailbox_create failed")
	}
	if _, err := rt.mailboxes.Register(comm.KindMailbox, id, rt.Node(), localPort, true); err != nil {
		_ = rt.raw.MailboxUnlink(id)
		return nil, err
	}
	return &Mailbox{rt: rt, id: id, port: localPort}, nil
}

// OpenMailbox opens a mailbox addressed to (remote, remotePort)
// (spec.md §4.3 "open").
func (rt *Runtime) OpenMailbox(remote, remotePort int) (*Mailbox, error) {
	id := rt.raw.MailboxOpen(remote, remotePort)
	if id < 0 {
		return nil, errs.New("mailbox.open", errs.CodeFault, "raw mailbox_open failed")
	}
	if _, err := rt.mailboxes.Register(comm.KindMailbox, id, remote, remotePort, false); err != nil {
		_ = rt.raw.MailboxClose(id)
		return nil, err
	}
	return &Mailbox{rt: rt, id: id, port: remotePort}, nil
}

// ID returns the mailbox's communicator id.
func (m *Mailbox) ID() int { return m.id }

// Unlink destroys a create()'d mailbox. Close destroys an open()'d one.
// Calling the wrong one for a handle (Unlink on an opened mailbox, Close
// on a created one) fails with EBADF, matching
// kmailbox_unlink/kmailbox_close.
func (m *Mailbox) Unlink() error {
	if err := m.rt.mailboxes.Unregister(comm.KindMailbox, m.id, true); err != nil {
		return err
	}
	if ret := m.rt.raw.MailboxUnlink(m.id); ret < 0 {
		return errs.New("mailbox.unlink", errs.CodeBadFd, "raw mailbox_unlink failed")
	}
	return nil
}

func (m *Mailbox) Close() error {
	if err := m.rt.mailboxes.Unregister(comm.KindMailbox, m.id, false); err != nil {
		return err
	}
	if ret := m.rt.raw.MailboxClose(m.id); ret < 0 {
		return errs.New("mailbox.close", errs.CodeBadFd, "raw mailbox_close failed")
	}
	return nil
}

// validateSize enforces spec.md §4.3's "size must be in (0,
// MESSAGE_SIZE_MAX]" and §8's boundary behaviors.
func validateSize(n int) error {
	if n <= 0 || n > MessageSizeMax {
		return errs.New("ikc.validate", errs.CodeInvalid, "size out of range")
	}
	return nil
}

// Write drives the flow engine to send buf in a single message
// (spec.md §4.3 "aread/awrite/read/write"). The byte count is returned on
// success; a negative error code is never returned as a positive count.
func (m *Mailbox) Write(ctx context.Context, buf []byte) (int, error) {
	if err := validateSize(len(buf)); err != nil {
		return 0, err
	}
	start := time.Now()
	f, err := m.rt.engine.Config(ctx, flow.KindMailboxWrite, m.id, buf)
	if err != nil {
		return 0, err
	}
	n, err := m.rt.engine.Wait(ctx, f)
	m.rt.observer.ObserveWrite(uint64(len(buf)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return 0, err
	}
	m.rt.mailboxes.RecordWrite(comm.KindMailbox, m.id, int(n))
	return int(n), nil
}

// Read drives the flow engine to receive a single message into buf.
func (m *Mailbox) Read(ctx context.Context, buf []byte) (int, error) {
	if err := validateSize(len(buf)); err != nil {
		return 0, err
	}
	start := time.Now()
	f, err := m.rt.engine.Config(ctx, flow.KindMailboxRead, m.id, buf)
	if err != nil {
		return 0, err
	}
	n, err := m.rt.engine.Wait(ctx, f)
	m.rt.observer.ObserveRead(uint64(len(buf)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return 0, err
	}
	m.rt.mailboxes.ConsumeAllow(comm.KindMailbox, m.id)
	m.rt.mailboxes.RecordRead(comm.KindMailbox, m.id, int(n))
	return int(n), nil
}

// Allow authorizes (remote, remotePort) as the next sender on this
// mailbox, consumed by the next successful Read (spec.md §4.3 "allow").
func (m *Mailbox) Allow(remote, remotePort int) error {
	return m.rt.mailboxes.Allow(comm.KindMailbox, m.id, remote, remotePort)
}

// Ioctl reads back this mailbox's own slot counters (spec.md §4.3
// "ioctl", §6's GET_* constants). Every GET_N* value counts operations on
// this handle only; no process-wide totals are kept. SetRemote takes
// (remote, remotePort) in args and is equivalent to Allow.
func (m *Mailbox) Ioctl(req IoctlRequest, args ...int) (int64, error) {
	if req == SetRemote {
		if len(args) != 2 {
			return 0, errs.New("mailbox.ioctl", errs.CodeInvalid, "SET_REMOTE needs (remote, port)")
		}
		return 0, m.Allow(args[0], args[1])
	}

	snap, err := m.rt.mailboxes.Snapshot(comm.KindMailbox, m.id)
	if err != nil {
		return 0, err
	}
	switch req {
	case GetVolume:
		return snap.Counters.Volume, nil
	case GetLatency:
		return snap.Counters.Latency, nil
	case GetNCreates:
		return snap.Counters.NCreates, nil
	case GetNUnlinks:
		return snap.Counters.NUnlinks, nil
	case GetNOpens:
		return snap.Counters.NOpens, nil
	case GetNCloses:
		return snap.Counters.NCloses, nil
	case GetNReads:
		return snap.Counters.NReads, nil
	case GetNWrites:
		return snap.Counters.NWrites, nil
	default:
		return 0, errs.New("mailbox.ioctl", errs.CodeNotSupp, "unsupported request")
	}
}
