package ikc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskDiamondOrdering exercises spec.md §8 scenario 3 through the
// re-exported root-package task API.
func TestTaskDiamondOrdering(t *testing.T) {
	sched := NewScheduler(2, nil)
	sched.Start()
	defer sched.Shutdown()

	var mu sync.Mutex
	counter := 1
	body := func(prime int) TaskFunc {
		return func(ctx context.Context, tk *Task) Action {
			mu.Lock()
			counter *= prime
			mu.Unlock()
			return tk.Exit(ActionSuccess, nil, 0, 0, 0)
		}
	}

	a, b, c, d := NewTask(), NewTask(), NewTask(), NewTask()
	require.NoError(t, sched.Create(a, body(2), 0))
	require.NoError(t, sched.Create(b, body(3), 0))
	require.NoError(t, sched.Create(c, body(5), 0))
	require.NoError(t, sched.Create(d, body(7), 0))

	require.NoError(t, sched.Connect(a, b, DepHard, TriggerDefault))
	require.NoError(t, sched.Connect(a, c, DepHard, TriggerDefault))
	require.NoError(t, sched.Connect(b, d, DepHard, TriggerDefault))
	require.NoError(t, sched.Connect(c, d, DepHard, TriggerDefault))

	require.NoError(t, sched.Dispatch(a, 0, 0, 0))
	ret, err := sched.Wait(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, ret)
	assert.Equal(t, 2*3*5*7, counter)
}

func TestWaitFromDispatcherThreadIsForbidden(t *testing.T) {
	sched := NewScheduler(1, nil)
	sched.Start()
	defer sched.Shutdown()

	other := NewTask()
	require.NoError(t, sched.Create(other, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	done := make(chan error, 1)
	waiter := NewTask()
	require.NoError(t, sched.Create(waiter, func(ctx context.Context, tk *Task) Action {
		_, err := sched.Wait(ctx, other)
		done <- err
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, sched.Dispatch(waiter, 0, 0, 0))
	err := <-done
	assert.True(t, IsCode(err, CodeProto))
}
