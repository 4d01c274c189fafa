package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanvix-go/ikc/internal/errs"
)

func waitFor(t *testing.T, s *Scheduler, tk *Task) int32 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rv, err := s.Wait(ctx, tk)
	require.NoError(t, err)
	return rv
}

// TestTaskDiamond exercises the fan-out/fan-in DAG of spec.md §8 scenario 3:
// A dispatches B and C, both increment a shared counter under one lock, and
// D only becomes ready once both B and C have fired their Default edge into
// it (each Hard edge decrements D's parent counter independently).
func TestTaskDiamond(t *testing.T) {
	s := New(4, nil)
	s.Start()
	defer s.Shutdown()

	var mu sync.Mutex
	counter := 0

	a, b, c, d := NewTask(), NewTask(), NewTask(), NewTask()
	require.NoError(t, s.Create(a, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Create(b, func(ctx context.Context, tk *Task) Action {
		mu.Lock()
		counter++
		mu.Unlock()
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Create(c, func(ctx context.Context, tk *Task) Action {
		mu.Lock()
		counter++
		mu.Unlock()
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Create(d, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Connect(a, b, DepHard, TriggerDefault))
	require.NoError(t, s.Connect(a, c, DepHard, TriggerDefault))
	require.NoError(t, s.Connect(b, d, DepHard, TriggerDefault))
	require.NoError(t, s.Connect(c, d, DepHard, TriggerDefault))

	// d has two hard parents; dispatching it before they fire must fail.
	err := s.Dispatch(d, 0, 0, 0)
	assert.True(t, errs.IsCode(err, errs.CodeBusy))

	require.NoError(t, s.Dispatch(a, 0, 0, 0))
	waitFor(t, s, d)

	assert.Equal(t, 2, counter)
}

// TestFlowRetryOnTransientError mirrors the IKC flow engine's config-task
// retry on a transient error (spec.md §8 scenario 4): a task that keeps returning
// ActionAgain re-enters the ready queue without recursing, and eventually
// succeeds once the simulated transient condition clears.
func TestFlowRetryOnTransientError(t *testing.T) {
	s := New(2, nil)
	s.Start()
	defer s.Shutdown()

	attempts := 0
	config := NewTask()
	require.NoError(t, s.Create(config, func(ctx context.Context, tk *Task) Action {
		attempts++
		if attempts < 3 {
			return tk.Exit(ActionAgain, nil, 0, 0, 0)
		}
		tk.SetRetVal(42)
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Dispatch(config, 0, 0, 0))
	rv := waitFor(t, s, config)

	assert.Equal(t, int32(42), rv)
	assert.Equal(t, 3, attempts)
}

// TestWaitForbiddenFromDispatcherThread covers spec.md §8 scenario 6: a task
// body must never block its own dispatcher core inside Wait, since that
// would deadlock the core against itself. Wait must fail fast with EPROTO
// instead.
func TestWaitForbiddenFromDispatcherThread(t *testing.T) {
	s := New(1, nil)
	s.Start()
	defer s.Shutdown()

	other := NewTask()
	require.NoError(t, s.Create(other, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	caller := NewTask()
	var gotErr error
	done := make(chan struct{})
	require.NoError(t, s.Create(caller, func(ctx context.Context, tk *Task) Action {
		_, gotErr = s.Wait(ctx, other)
		close(done)
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Dispatch(caller, 0, 0, 0))
	<-done
	waitFor(t, s, caller)

	require.Error(t, gotErr)
	assert.True(t, errs.IsCode(gotErr, errs.CodeProto))
}

// TestPeriodicTaskReschedules verifies that ActionPeriodic parks a task as
// Stopped and the dispatcher promotes it again once its tick has elapsed,
// without accumulating duplicate entries in the core's periodic list.
func TestPeriodicTaskReschedules(t *testing.T) {
	s := New(1, nil)
	s.Start()
	defer s.Shutdown()

	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})

	pt := NewTask()
	require.NoError(t, s.Create(pt, func(ctx context.Context, tk *Task) Action {
		mu.Lock()
		runs++
		n := runs
		mu.Unlock()
		if n >= 3 {
			close(done)
			return tk.Exit(ActionFinish, nil, 0, 0, 0)
		}
		return tk.Exit(ActionPeriodic, nil, 0, 0, 0)
	}, 1)) // period of 1 tick

	require.NoError(t, s.Dispatch(pt, 0, 0, 0))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task never reached its third run")
	}
	waitFor(t, s, pt)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, runs)
}

// TestConnectRejectsCycle verifies spec.md §4.1's cycle rejection on Connect.
func TestConnectRejectsCycle(t *testing.T) {
	s := New(1, nil)

	a, b := NewTask(), NewTask()
	require.NoError(t, s.Create(a, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Create(b, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Connect(a, b, DepHard, TriggerDefault))
	err := s.Connect(b, a, DepHard, TriggerDefault)
	require.Error(t, err)
}

// TestContinueBackEdgeDoesNotBlockFirstDispatch locks in the resolution
// documented on Trigger.countsTowardParent: a permanent Continue-triggered
// Hard back-edge (the IKC flow's wait->config edge) must never stop the
// very first manual Dispatch of the edge's target.
func TestContinueBackEdgeDoesNotBlockFirstDispatch(t *testing.T) {
	s := New(1, nil)
	s.Start()
	defer s.Shutdown()

	config, wait := NewTask(), NewTask()
	require.NoError(t, s.Create(config, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Create(wait, func(ctx context.Context, tk *Task) Action {
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Connect(config, wait, DepHard, TriggerDefault))
	require.NoError(t, s.Connect(wait, config, DepHard, TriggerContinue))

	require.NoError(t, s.Dispatch(config, 0, 0, 0))
	waitFor(t, s, wait)
}

// TestAgainTriggerFiresOnRetry locks in that a TriggerAgain-tagged edge
// fires when a task exits ActionAgain, distinct from the Default edge
// which only fires once the task finally succeeds. Each downstream task
// here is one-shot, so the retrying task is set up to retry exactly once
// before succeeding.
func TestAgainTriggerFiresOnRetry(t *testing.T) {
	s := New(1, nil)
	s.Start()
	defer s.Shutdown()

	attempts := 0
	retrying := NewTask()
	require.NoError(t, s.Create(retrying, func(ctx context.Context, tk *Task) Action {
		attempts++
		if attempts < 2 {
			return tk.Exit(ActionAgain, nil, 0, 0, 0)
		}
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	var mu sync.Mutex
	againFired, defaultFired := false, false

	onAgain := NewTask()
	require.NoError(t, s.Create(onAgain, func(ctx context.Context, tk *Task) Action {
		mu.Lock()
		againFired = true
		mu.Unlock()
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))
	onDefault := NewTask()
	require.NoError(t, s.Create(onDefault, func(ctx context.Context, tk *Task) Action {
		mu.Lock()
		defaultFired = true
		mu.Unlock()
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Connect(retrying, onAgain, DepSoft, TriggerAgain))
	require.NoError(t, s.Connect(retrying, onDefault, DepSoft, TriggerDefault))

	require.NoError(t, s.Dispatch(retrying, 0, 0, 0))
	waitFor(t, s, retrying)
	waitFor(t, s, onAgain)
	waitFor(t, s, onDefault)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, againFired, "TriggerAgain edge never fired on the retry")
	assert.True(t, defaultFired, "TriggerDefault edge never fired on the eventual success")
}

// TestContinueBackEdgeReArmsAfterTerminal covers the flow engine's
// wait->config resubmit path: a Continue-triggered edge must re-promote
// its target even after that target has already reached a terminal state
// on an earlier run, and must not panic its completion gate on a second
// terminal transition.
func TestContinueBackEdgeReArmsAfterTerminal(t *testing.T) {
	s := New(1, nil)
	s.Start()
	defer s.Shutdown()

	configRuns := 0
	config, wait := NewTask(), NewTask()
	require.NoError(t, s.Create(config, func(ctx context.Context, tk *Task) Action {
		configRuns++
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))

	waitRuns := 0
	require.NoError(t, s.Create(wait, func(ctx context.Context, tk *Task) Action {
		waitRuns++
		if waitRuns == 1 {
			return tk.Exit(ActionContinue, nil, 0, 0, 0)
		}
		return tk.Exit(ActionFinish, nil, 0, 0, 0)
	}, 0))

	require.NoError(t, s.Connect(config, wait, DepHard, TriggerDefault))
	require.NoError(t, s.Connect(wait, config, DepHard, TriggerContinue))

	require.NoError(t, s.Dispatch(config, 0, 0, 0))
	waitFor(t, s, wait)

	assert.Equal(t, 2, configRuns)
	assert.Equal(t, 2, waitRuns)
}

// TestCPUAffinityDoesNotBlockDispatch exercises the optional pinning path
// (SetCPUAffinity/pinCurrentThread): on a platform without affinity
// support, or with an out-of-range CPU index, the dispatcher logs a
// warning and keeps running rather than failing the task.
func TestCPUAffinityDoesNotBlockDispatch(t *testing.T) {
	s := New(2, nil)
	s.SetCPUAffinity([]int{0, 1})
	s.Start()
	defer s.Shutdown()

	tk := NewTask()
	require.NoError(t, s.Create(tk, func(ctx context.Context, tk *Task) Action {
		tk.SetRetVal(42)
		return tk.Exit(ActionSuccess, nil, 0, 0, 0)
	}, 0))
	require.NoError(t, s.Dispatch(tk, 0, 0, 0))
	assert.EqualValues(t, 42, waitFor(t, s, tk))
}
