package ikc

import (
	"context"

	"github.com/nanvix-go/ikc/internal/syncprim"
)

// MutexKind selects a mutex's re-lock semantics (spec.md §4.5).
type MutexKind = syncprim.Kind

const (
	MutexNormal     = syncprim.KindNormal
	MutexErrorCheck = syncprim.KindErrorCheck
	MutexRecursive  = syncprim.KindRecursive
)

// Mutex is a FIFO-fair, owner-tracking lock, re-exported from
// internal/syncprim for callers building their own task bodies that need
// the same primitive kernel.Loopback's sync points use internally.
type Mutex = syncprim.Mutex

// NewMutex creates a mutex of the given kind.
func NewMutex(kind MutexKind) *Mutex { return syncprim.NewMutex(kind) }

// MutexLock blocks until tid holds m.
func MutexLock(m *Mutex, tid uint64) error { return m.Lock(tid) }

// MutexTryLock attempts to acquire m without blocking.
func MutexTryLock(m *Mutex, tid uint64) (bool, error) { return m.TryLock(tid) }

// MutexUnlock releases m.
func MutexUnlock(m *Mutex, tid uint64) error { return m.Unlock(tid) }

// MutexContextLock is MutexLock with cancellation.
func MutexContextLock(ctx context.Context, m *Mutex, tid uint64) error {
	return m.ContextLock(ctx, tid)
}
