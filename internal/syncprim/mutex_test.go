package syncprim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanvix-go/ikc/internal/errs"
)

func TestMutexMutualExclusion(t *testing.T) {
	m := NewMutex(KindNormal)
	var active int32
	var wg sync.WaitGroup
	var raced bool

	for i := uint64(1); i <= 8; i++ {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			require.NoError(t, m.Lock(tid))
			active++
			if active != 1 {
				raced = true
			}
			time.Sleep(time.Millisecond)
			active--
			require.NoError(t, m.Unlock(tid))
		}(i)
	}
	wg.Wait()
	assert.False(t, raced)
}

func TestMutexErrorCheckRejectsReentry(t *testing.T) {
	m := NewMutex(KindErrorCheck)
	require.NoError(t, m.Lock(1))
	err := m.Lock(1)
	assert.True(t, errs.IsCode(err, errs.CodeDeadlock))
	require.NoError(t, m.Unlock(1))
}

func TestMutexRecursiveAllowsReentry(t *testing.T) {
	m := NewMutex(KindRecursive)
	require.NoError(t, m.Lock(1))
	require.NoError(t, m.Lock(1))
	require.NoError(t, m.Unlock(1))

	ok, err := m.TryLock(2)
	require.NoError(t, err)
	assert.False(t, ok, "still held at rlevel 1 by tid 1")

	require.NoError(t, m.Unlock(1))
	ok, err = m.TryLock(2)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, m.Unlock(2))
}

func TestMutexUnlockByNonOwnerRejected(t *testing.T) {
	m := NewMutex(KindErrorCheck)
	require.NoError(t, m.Lock(1))
	err := m.Unlock(2)
	assert.True(t, errs.IsCode(err, errs.CodePerm))
	require.NoError(t, m.Unlock(1))
}

func TestMutexFIFOOrdering(t *testing.T) {
	m := NewMutex(KindNormal)
	require.NoError(t, m.Lock(1))

	order := make([]uint64, 0, 3)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, tid := range []uint64{2, 3, 4} {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			// Stagger enqueue order deterministically.
			time.Sleep(time.Duration(tid) * 5 * time.Millisecond)
			require.NoError(t, m.Lock(tid))
			mu.Lock()
			order = append(order, tid)
			mu.Unlock()
			require.NoError(t, m.Unlock(tid))
		}(tid)
	}

	time.Sleep(30 * time.Millisecond) // let all three enqueue behind tid 1
	require.NoError(t, m.Unlock(1))
	wg.Wait()

	assert.Equal(t, []uint64{2, 3, 4}, order)
}
