// Package comm implements the communicator slot table: per-(kind, id)
// bookkeeping for mailboxes and portals (spec.md §3.2). It is grounded on
// the counters kmailbox_ioctl reads out of struct mailbox
// (original_source/src/libnanvix/ikc/mailbox.c) — n_creates, n_unlinks,
// n_opens, n_closes, n_reads, n_writes, volume, latency — generalized to
// cover both mailbox and portal kinds under one table, the way the
// teacher's internal/queue pool keeps one table of per-tag bookkeeping
// instead of one struct per tag kind.
package comm

import (
	"sync"

	"github.com/nanvix-go/ikc/internal/errs"
)

// Kind distinguishes a mailbox slot from a portal slot. Two communicators
// with the same integer id but different kinds are distinct rows.
type Kind int

const (
	KindMailbox Kind = iota
	KindPortal
)

// Counters holds one slot's operation counts that ioctl(GET_N*) reports,
// plus its byte volume and latency. The counts are per slot, not
// process-wide, and they are discarded when the slot is unregistered.
// Every field is advanced only under Table's lock (spec.md §9 "Open
// questions", resolved in SPEC_FULL.md: counters are always lock-guarded).
type Counters struct {
	NCreates int64
	NUnlinks int64
	NOpens   int64
	NCloses  int64
	NReads   int64
	NWrites  int64
	Volume   int64 // cumulative bytes transferred, success only
	Latency  int64 // last observed round-trip in the raw backend's own units
}

// Slot is one communicator's bookkeeping row (spec.md §3.2).
type Slot struct {
	Kind      Kind
	ID        int
	Local     int // local node, for Created slots
	Port      int // local port
	Remote    int // node currently allowed to send, 0 if none
	RemotePort int
	Allowed   bool // allow() was called and not yet consumed by a read
	Created   bool // true for create()'d slots, false for open()'d slots
	Unlinked  bool
	Counters  Counters
}

// Table is the communicator slot table: one shared lock guarding every
// slot, per spec.md §5 "every table with multiple writers is protected by
// a dedicated spinlock" and §9's counter-locking resolution.
type Table struct {
	mu    sync.Mutex
	slots map[Kind]map[int]*Slot
}

// NewTable creates an empty slot table.
func NewTable() *Table {
	return &Table{slots: map[Kind]map[int]*Slot{
		KindMailbox: make(map[int]*Slot),
		KindPortal:  make(map[int]*Slot),
	}}
}

// Register adds a new slot for a just-created or just-opened communicator
// id, bumping NCreates or NOpens. Fails with EBUSY if the id is already
// registered for this kind (the raw layer is expected to hand out unique
// ids; a collision means the raw layer and the table have drifted).
func (tb *Table) Register(kind Kind, id, local, port int, created bool) (*Slot, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if _, ok := tb.slots[kind][id]; ok {
		return nil, errs.New("comm.register", errs.CodeBusy, "communicator id already registered")
	}
	s := &Slot{Kind: kind, ID: id, Local: local, Port: port, Created: created}
	tb.slots[kind][id] = s
	if created {
		s.Counters.NCreates++
	} else {
		s.Counters.NOpens++
	}
	return s, nil
}

func (tb *Table) lookup(kind Kind, id int) (*Slot, error) {
	s, ok := tb.slots[kind][id]
	if !ok {
		return nil, errs.New("comm.lookup", errs.CodeBadFd, "no such communicator")
	}
	return s, nil
}

// Unregister marks id's slot unlinked or closed, bumping NUnlinks (for a
// Created slot) or NCloses (for an Open'd slot). wantCreated is the
// caller's intended operation: true for unlink (only valid on a
// create()'d id), false for close (only valid on an open()'d id). A
// mismatch — unlink() of an opened-not-created id, or close() of a
// created-not-opened one — fails with EBADF, the same code a double
// unlink/close on an already-unlinked slot fails with (spec.md §8
// "unlink of an opened id").
func (tb *Table) Unregister(kind Kind, id int, wantCreated bool) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	s, err := tb.lookup(kind, id)
	if err != nil {
		return err
	}
	if s.Unlinked {
		return errs.New("comm.unregister", errs.CodeBadFd, "already unlinked or closed")
	}
	if s.Created != wantCreated {
		return errs.New("comm.unregister", errs.CodeBadFd, "wrong teardown call for this handle")
	}
	s.Unlinked = true
	if s.Created {
		s.Counters.NUnlinks++
	} else {
		s.Counters.NCloses++
	}
	delete(tb.slots[kind], id)
	return nil
}

// Allow marks remote/remotePort as authorized to send on id's next read.
// Fails with EBUSY if a prior allow has not yet been consumed (spec.md §8
// "allow twice without an intervening read").
func (tb *Table) Allow(kind Kind, id, remote, remotePort int) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	s, err := tb.lookup(kind, id)
	if err != nil {
		return err
	}
	if s.Allowed {
		return errs.New("comm.allow", errs.CodeBusy, "allow already pending")
	}
	s.Remote = remote
	s.RemotePort = remotePort
	s.Allowed = true
	return nil
}

// ConsumeAllow clears the pending allow bit after a successful read that
// used it, letting a subsequent allow() succeed again.
func (tb *Table) ConsumeAllow(kind Kind, id int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if s, ok := tb.slots[kind][id]; ok {
		s.Allowed = false
	}
}

// RecordRead bumps NReads and Volume for a successful read of n bytes.
func (tb *Table) RecordRead(kind Kind, id int, n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if s, ok := tb.slots[kind][id]; ok {
		s.Counters.NReads++
		s.Counters.Volume += int64(n)
	}
}

// RecordWrite bumps NWrites and Volume for a successful write of n bytes.
func (tb *Table) RecordWrite(kind Kind, id int, n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if s, ok := tb.slots[kind][id]; ok {
		s.Counters.NWrites++
		s.Counters.Volume += int64(n)
	}
}

// SetLatency records the raw backend's most recent round-trip latency
// sample for id, surfaced through ioctl(GET_LATENCY).
func (tb *Table) SetLatency(kind Kind, id int, latency int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if s, ok := tb.slots[kind][id]; ok {
		s.Counters.Latency = latency
	}
}

// Snapshot returns a copy of id's bookkeeping row, for ioctl reads. The
// returned Slot is detached from the table; mutating it has no effect.
func (tb *Table) Snapshot(kind Kind, id int) (Slot, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, err := tb.lookup(kind, id)
	if err != nil {
		return Slot{}, err
	}
	return *s, nil
}
