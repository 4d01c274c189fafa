package syncprim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondVarSignalWakesOneWaiter(t *testing.T) {
	m := NewMutex(KindNormal)
	cv := NewCondVar()
	woke := make(chan uint64, 2)

	require.NoError(t, m.Lock(0)) // hold the mutex so waiters actually block in Wait

	var wg sync.WaitGroup
	for _, tid := range []uint64{1, 2} {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			require.NoError(t, m.Lock(tid))
			require.NoError(t, cv.Wait(m, tid))
			woke <- tid
			require.NoError(t, m.Unlock(tid))
		}(tid)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Unlock(0))
	time.Sleep(20 * time.Millisecond) // let a waiter acquire and block in cv.Wait

	cv.Signal()

	select {
	case tid := <-woke:
		assert.Contains(t, []uint64{1, 2}, tid)
	case <-time.After(time.Second):
		t.Fatal("signal did not wake any waiter")
	}

	cv.Signal()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("second signal did not wake the remaining waiter")
	}

	wg.Wait()
}

func TestCondVarBroadcastWakesAll(t *testing.T) {
	m := NewMutex(KindNormal)
	cv := NewCondVar()
	const n = 4
	woke := make(chan uint64, n)

	require.NoError(t, m.Lock(0))

	var wg sync.WaitGroup
	for tid := uint64(1); tid <= n; tid++ {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			require.NoError(t, m.Lock(tid))
			require.NoError(t, cv.Wait(m, tid))
			woke <- tid
			require.NoError(t, m.Unlock(tid))
		}(tid)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Unlock(0))
	time.Sleep(20 * time.Millisecond)

	cv.Broadcast()
	wg.Wait()
	assert.Len(t, woke, n)
}
