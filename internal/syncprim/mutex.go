// Package syncprim implements the mutex and condition-variable primitives
// of the IKC runtime (spec.md §4.5). The root ikc package re-exports them
// as its Mutex and CondVar API. Inside the module, kernel.Loopback builds
// its sync points (and so the barrier over a Loopback) on them; the
// communicator table and the flow engine use sync.Mutex instead.
//
// Grounded on libnanvix/thread/mutex.c and condvar.c: a FIFO queue of
// waiter identities decides who wakes next, rather than leaving wakeup
// order to the scheduler.
package syncprim

import (
	"context"
	"sync"

	"github.com/nanvix-go/ikc/internal/errs"
)

// Kind selects a mutex's re-lock semantics (spec.md §4.5, mirroring
// nanvix_mutex_type).
type Kind int

const (
	KindNormal Kind = iota
	KindErrorCheck
	KindRecursive
)

// Mutex is a FIFO-fair, owner-tracking lock. The zero value is not usable;
// construct with NewMutex.
type Mutex struct {
	kind Kind

	mu      sync.Mutex
	cond    *sync.Cond
	locked  bool
	owner   uint64 // 0 means unowned; callers pass their own thread/goroutine tag
	rlevel  int
	waiters []uint64 // FIFO queue of tids blocked in Lock
}

// NewMutex creates a mutex of the given kind.
func NewMutex(kind Kind) *Mutex {
	m := &Mutex{kind: kind}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Lock blocks until the caller (identified by tid) holds the mutex.
// ErrorCheck mutexes refuse a re-entrant lock by the current owner with
// EDEADLK; Recursive mutexes instead bump a recursion counter.
func (m *Mutex) Lock(tid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked && m.owner == tid {
		switch m.kind {
		case KindErrorCheck:
			return errs.New("mutex.lock", errs.CodeDeadlock, "already held by caller")
		case KindRecursive:
			m.rlevel++
			return nil
		}
	}

	m.waiters = append(m.waiters, tid)
	for m.locked || m.waiters[0] != tid {
		m.cond.Wait()
	}
	m.waiters = m.waiters[1:]

	m.locked = true
	m.owner = tid
	if m.kind == KindRecursive {
		m.rlevel = 1
	}
	return nil
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock(tid uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked {
		if m.kind == KindRecursive && m.owner == tid {
			m.rlevel++
			return true, nil
		}
		return false, nil
	}
	// Only grant a free lock to a thread not already queued behind others.
	if len(m.waiters) > 0 {
		return false, nil
	}
	m.locked = true
	m.owner = tid
	if m.kind == KindRecursive {
		m.rlevel = 1
	}
	return true, nil
}

// Unlock releases the mutex. ErrorCheck and Recursive mutexes reject an
// unlock by a non-owner with EPERM.
func (m *Mutex) Unlock(tid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kind != KindNormal && (!m.locked || m.owner != tid) {
		return errs.New("mutex.unlock", errs.CodePerm, "caller does not hold the mutex")
	}

	if m.kind == KindRecursive && m.rlevel > 0 {
		m.rlevel--
		if m.rlevel > 0 {
			return nil
		}
	}

	m.locked = false
	m.owner = 0
	m.cond.Signal()
	return nil
}

// ContextLock is Lock with cancellation, used where the caller (e.g. a
// task body) must honor ctx instead of blocking forever.
func (m *Mutex) ContextLock(ctx context.Context, tid uint64) error {
	done := make(chan error, 1)
	go func() { done <- m.Lock(tid) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errs.WrapError("mutex.lock", ctx.Err())
	}
}
