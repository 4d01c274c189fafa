package task

import (
	"context"
	"runtime"
)

// runCore is the cooperative dispatcher loop for one core (spec.md §4.1
// "Dispatcher algorithm"). Exactly one goroutine runs this per core; task
// bodies never preempt each other within a core.
func (s *Scheduler) runCore(coreID int) {
	defer s.wg.Done()
	c := s.cores[coreID]
	ctx := context.WithValue(context.Background(), dispatcherCoreKey{}, coreID)

	// Pin the dispatcher goroutine to its own OS thread and, if configured,
	// to a specific CPU, the same way the teacher's queue runner pins its
	// ioLoop goroutine (internal/queue/runner.go ioLoop).
	if len(s.affinity) > 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		cpu := s.affinity[coreID%len(s.affinity)]
		if err := pinCurrentThread(cpu); err != nil {
			s.logger.Warn("dispatcher: failed to set CPU affinity", "core", coreID, "cpu", cpu, "error", err)
		} else {
			s.logger.Debug("dispatcher: pinned to CPU", "core", coreID, "cpu", cpu)
		}
	}

	for {
		t, ok := c.pop()
		if !ok {
			return
		}
		s.runOne(ctx, c, t)
	}
}

func (s *Scheduler) runOne(ctx context.Context, c *core, t *Task) {
	t.mu.Lock()
	t.state = StateRunning
	fn := t.fn
	t.mu.Unlock()

	action := fn(ctx, t)

	t.mu.Lock()
	merge := t.pendingMerge
	finalArgs := t.pendingArgs
	children := make([]edge, len(t.children))
	copy(children, t.children)
	t.mu.Unlock()
	_ = merge

	switch action {
	case ActionSuccess:
		s.fireDefault(children, finalArgs, t)
		s.finish(t, StateCompleted)

	case ActionAgain:
		s.fireTrigger(children, finalArgs, TriggerAgain, t)
		t.mu.Lock()
		t.state = StateReady
		t.mu.Unlock()
		c.enqueue(t)

	case ActionPeriodic:
		t.mu.Lock()
		t.state = StateStopped
		t.nextTick = c.tick() + t.period
		t.mu.Unlock()
		c.addPeriodic(t)

	case ActionContinue:
		s.fireTrigger(children, finalArgs, TriggerContinue, t)
		t.mu.Lock()
		t.state = StateNotStarted
		t.mu.Unlock()

	case ActionStop:
		t.mu.Lock()
		t.state = StateStopped
		t.mu.Unlock()

	case ActionFinish:
		s.fireTrigger(children, finalArgs, TriggerFinish, t)
		s.finish(t, StateCompleted)

	case ActionError, ActionAbort:
		s.fireTrigger(children, finalArgs, TriggerError, t)
		terminal := StateError
		if action == ActionAbort {
			terminal = StateAborted
		}
		s.finish(t, terminal)

	default:
		s.finish(t, StateError)
	}
}

// fireDefault fires every Default-triggered child of t. TriggerAgain edges
// are a separate signal for callers that want to observe each retry of a
// self-retrying task (e.g. counting attempts) without being woken on every
// plain Default fan-out; they are fired directly from the ActionAgain case
// in runOne, not from here.
func (s *Scheduler) fireDefault(children []edge, args Args, parent *Task) {
	s.fireTrigger(children, args, TriggerDefault, parent)
}

// fireTrigger fires every child edge matching trigger, propagating args
// (rewritten through the parent's merge function, if any) and advancing
// each child's readiness (spec.md §4.1 steps 3-4, §9).
func (s *Scheduler) fireTrigger(children []edge, args Args, trigger Trigger, parent *Task) {
	childArgs := parent.childArgs(args)
	for _, e := range children {
		if e.trigger != trigger {
			continue
		}
		s.fireEdge(e, childArgs)
	}
}

func (s *Scheduler) fireEdge(e edge, args Args) {
	child := e.child

	ready := false
	child.mu.Lock()
	if e.dep == DepHard && e.trigger.countsTowardParent() {
		if child.parentCount > 0 {
			child.parentCount--
		}
	}
	child.args = args

	switch {
	case e.trigger == TriggerContinue:
		// A Continue edge re-enters its target through the dispatcher
		// queue rather than through the target's own parent-edge
		// readiness (the IKC flow's wait->config back-edge, spec.md
		// §3.3/§4.2): the target may already be Completed from an
		// earlier run on this same slot, so re-arm it unconditionally
		// instead of requiring NotStarted/Stopped, and re-lock its
		// completion gate so its next terminal transition can post()
		// again without releasing an already-released semaphore.
		child.gate.TryAcquire(1)
		child.state = StateReady
		ready = true
	case child.parentCount == 0 && (child.state == StateNotStarted || child.state == StateStopped):
		child.state = StateReady
		ready = true
	}
	coreID := child.core
	child.mu.Unlock()

	if ready {
		if coreID < 0 {
			coreID = 0
		}
		s.cores[coreID].enqueue(child)
	}
}

// finish transitions t to a terminal state, severs its soft outgoing
// edges (spec.md §3.1 "Lifecycle"), and releases its completion gate.
func (s *Scheduler) finish(t *Task, state State) {
	t.mu.Lock()
	t.state = state
	kept := t.children[:0:0]
	for _, e := range t.children {
		if e.dep != DepSoft {
			kept = append(kept, e)
		}
	}
	t.children = kept
	core := t.core
	t.mu.Unlock()

	if core >= 0 {
		s.cores[core].removePeriodic(t)
	}
	t.post()
}
