package syncprim

import "sync"

// CondVar is a FIFO condition variable: Wait atomically releases the
// associated Mutex and parks the caller at the back of a wait queue;
// Signal wakes the head of that queue, Broadcast wakes all of it
// (spec.md §4.5, grounded on libnanvix/thread/condvar.c).
type CondVar struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// NewCondVar creates a ready-to-use condition variable.
func NewCondVar() *CondVar {
	return &CondVar{}
}

// Wait releases m, blocks until woken by Signal or Broadcast, then
// reacquires m before returning — the same contract as nanvix_cond_wait.
func (cv *CondVar) Wait(m *Mutex, tid uint64) error {
	ch := make(chan struct{})
	cv.mu.Lock()
	cv.waiters = append(cv.waiters, ch)
	cv.mu.Unlock()

	if err := m.Unlock(tid); err != nil {
		return err
	}

	<-ch

	return m.Lock(tid)
}

// Signal wakes the longest-waiting blocked thread, if any.
func (cv *CondVar) Signal() {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if len(cv.waiters) == 0 {
		return
	}
	ch := cv.waiters[0]
	cv.waiters = cv.waiters[1:]
	close(ch)
}

// Broadcast wakes every blocked thread.
func (cv *CondVar) Broadcast() {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	for _, ch := range cv.waiters {
		close(ch)
	}
	cv.waiters = nil
}
