package ikc

import "github.com/nanvix-go/ikc/internal/syncprim"

// CondVar is a FIFO condition variable, re-exported from internal/syncprim
// (spec.md §4.5).
type CondVar = syncprim.CondVar

// NewCondVar creates a ready-to-use condition variable.
func NewCondVar() *CondVar { return syncprim.NewCondVar() }

// CondVarWait releases m, blocks until woken, then reacquires m.
func CondVarWait(cv *CondVar, m *Mutex, tid uint64) error { return cv.Wait(m, tid) }

// CondVarSignal wakes the longest-waiting blocked thread, if any.
func CondVarSignal(cv *CondVar) { cv.Signal() }

// CondVarBroadcast wakes every blocked thread.
func CondVarBroadcast(cv *CondVar) { cv.Broadcast() }
