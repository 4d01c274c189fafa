package ikc

import (
	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/kernel"
)

// Barrier is a two-way synchronization point over two sync channels
// (spec.md §3.4, §4.4): an all-to-one channel every follower signals and
// the leader waits on, and a one-to-all channel the leader signals and
// every follower waits on. Unlike mailbox/portal operations, sync_wait
// and sync_signal are themselves blocking raw calls (kernel.Raw), so a
// barrier does not need its own config/wait task decomposition — it
// reuses the same Raw surface the flow engine drives, per spec.md §1
// ("a barrier ... that reuses the flow engine").
type Barrier struct {
	raw     interface {
		SyncWait(int) int
		SyncSignal(int) int
		SyncUnlink(int) int
		SyncClose(int) int
	}
	allToOne int
	oneToAll int
	isLeader bool
}

// NewBarrier creates a barrier over nodes (nodes[0] is the leader,
// len(nodes) >= 2, spec.md §4.4). self is this process's node id, which
// must appear in nodes. The leader creates the all-to-one channel and
// opens one-to-all; each follower opens all-to-one and creates one-to-all.
func (rt *Runtime) NewBarrier(nodes []int, self int) (*Barrier, error) {
	if len(nodes) < 2 {
		return nil, errs.New("barrier.new", errs.CodeInvalid, "need at least 2 nodes")
	}
	leader := nodes[0]
	isLeader := self == leader

	var allToOne, oneToAll int
	if isLeader {
		allToOne = rt.raw.SyncCreate(nodes, kernel.SyncAllToOne)
		oneToAll = rt.raw.SyncOpen(nodes, kernel.SyncOneToAll)
	} else {
		allToOne = rt.raw.SyncOpen(nodes, kernel.SyncAllToOne)
		oneToAll = rt.raw.SyncCreate(nodes, kernel.SyncOneToAll)
	}
	if allToOne < 0 || oneToAll < 0 {
		return nil, errs.New("barrier.new", errs.CodeFault, "raw sync_create/sync_open failed")
	}

	return &Barrier{raw: rt.raw, allToOne: allToOne, oneToAll: oneToAll, isLeader: isLeader}, nil
}

// Wait blocks until every participant has entered the barrier
// (spec.md §4.4 "barrier_wait", §8 scenario 5 "no node returns before all
// four have entered"). The leader waits on all-to-one then signals
// one-to-all; followers do the reverse.
func (b *Barrier) Wait() error {
	if b.isLeader {
		if ret := b.raw.SyncWait(b.allToOne); ret < 0 {
			return errs.New("barrier.wait", errs.CodeFault, "raw sync_wait failed")
		}
		if ret := b.raw.SyncSignal(b.oneToAll); ret < 0 {
			return errs.New("barrier.wait", errs.CodeFault, "raw sync_signal failed")
		}
		return nil
	}
	if ret := b.raw.SyncSignal(b.allToOne); ret < 0 {
		return errs.New("barrier.wait", errs.CodeFault, "raw sync_signal failed")
	}
	if ret := b.raw.SyncWait(b.oneToAll); ret < 0 {
		return errs.New("barrier.wait", errs.CodeFault, "raw sync_wait failed")
	}
	return nil
}

// Destroy mirrors barrier creation (spec.md §4.4 "Destruction mirrors
// creation").
// The leader unlinks all-to-one and closes one-to-all; a follower closes
// all-to-one and unlinks one-to-all.
func (b *Barrier) Destroy() error {
	created, opened := b.oneToAll, b.allToOne
	if b.isLeader {
		created, opened = b.allToOne, b.oneToAll
	}
	r1 := b.raw.SyncUnlink(created)
	r2 := b.raw.SyncClose(opened)
	if r1 < 0 || r2 < 0 {
		return errs.New("barrier.destroy", errs.CodeBadFd, "raw sync_unlink failed")
	}
	return nil
}
