// Package task implements the IKC runtime's task scheduler: a DAG of small
// units of work, dispatched cooperatively on a fixed set of per-core
// dispatcher threads (spec.md §4.1).
package task

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// maxChildren bounds each task's outgoing edge table, matching the
// teacher's fixed-size per-tag arrays (tagStates, tagMutexes, ioCmds) —
// a bounded array owned by the parent, sized generously for the fan-out a
// config/wait flow or a task-diamond test actually needs.
const maxChildren = 8

// Word is a generic machine-word argument, per spec.md §3.1.
type Word uintptr

// Args is the task argument vector. The spec calls for three words but
// notes the implementation extends it to five internally to carry an
// op-code plus a step counter for compound flows (spec.md §3.1).
type Args [5]Word

// State is a task's lifecycle state (spec.md §3.1).
type State int

const (
	StateUnused State = iota
	StateNotStarted
	StateReady
	StateRunning
	StateStopped
	StateCompleted
	StateError
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateNotStarted:
		return "not_started"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// IsTerminal reports whether s is a terminal state: no further dispatch is
// possible and soft children have been severed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateAborted
}

// Action is the management action a task body declares via Exit
// (spec.md §4.1 "exit").
type Action int

const (
	ActionSuccess Action = iota
	ActionAgain
	ActionStop
	ActionPeriodic
	ActionAbort
	ActionError
	ActionFinish
	ActionContinue
)

// Dependency tags an edge as a lifetime (Hard) or temporary (Soft)
// dependency (spec.md §3.1).
type Dependency int

const (
	DepHard Dependency = iota
	DepSoft
)

// Trigger selects which exit actions cause an edge to fire (spec.md §4.1
// "connect").
type Trigger int

const (
	TriggerDefault Trigger = iota // fires on Success
	TriggerContinue               // fires only on Continue (Again fires TriggerAgain)
	TriggerFinish                 // fires only on Finish
	TriggerAgain                  // fires only on Again
	TriggerError                  // fires only on Error/Abort
)

// countsTowardParent reports whether an edge with this trigger increments
// the child's parent counter.
//
// Continue-triggered edges model re-entry through the dispatcher queue (the
// wait->config back-edge of an IKC flow, spec.md §3.3), not a dependency:
// counting them would make the permanently-connected back-edge block the
// very first manual Dispatch of config with -EBUSY forever. Excluding them
// is the resolution to that apparent deadlock (see DESIGN.md).
func (t Trigger) countsTowardParent() bool {
	return t != TriggerContinue
}

// MergeFunc optionally rewrites a child's argument vector before it runs,
// given the parent's final arguments. The default (nil) behavior is to
// overwrite the child's args with the parent's, per spec.md §4.1 "exit".
type MergeFunc func(parentArgs Args) Args

// Func is a task body. The body must end by returning the value of
// Task.Exit, which records the management action (and optional per-child
// argument rewrite) the scheduler applies once the body returns.
type Func func(ctx context.Context, t *Task) Action

type edge struct {
	child   *Task
	dep     Dependency
	trigger Trigger
}

// Task is a node in the scheduler's dependency DAG (spec.md §3.1).
type Task struct {
	mu sync.Mutex

	id     uint32
	fn     Func
	args   Args
	retval int32
	state  State
	period   uint64 // ticks; 0 disables periodic re-dispatch
	nextTick uint64 // tick at which a Stopped periodic task becomes due
	core     int    // -1 until emitted to a specific core

	parentCount int32 // hard, counted edges not yet fired
	children    []edge

	pendingAction Action
	pendingMerge  MergeFunc
	pendingArgs   Args

	gate *semaphore.Weighted // completion semaphore: at-most-one waiter gate
}

// NewTask allocates a zero-value task ready to be passed to
// Scheduler.Create. Matching the spec's "create(task, fn, period)"
// signature, the caller owns the Task value and may keep it on the stack
// or embed it in a larger struct (e.g. an IKC flow slot).
func NewTask() *Task {
	return &Task{gate: semaphore.NewWeighted(1)}
}

// ID returns the task's identity. 0 means unused.
func (t *Task) ID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Args returns a copy of the task's current argument vector.
func (t *Task) Args() Args {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.args
}

// RetVal returns the task's last recorded return value.
func (t *Task) RetVal() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retval
}

// SetRetVal records the task body's result. Task bodies call this before
// Exit so Wait and TryWait can return it. The flow engine does not use
// it: a flow slot records its own last raw result.
func (t *Task) SetRetVal(v int32) {
	t.mu.Lock()
	t.retval = v
	t.mu.Unlock()
}

// Exit declares the post-execution management action from within a task
// body. mergeFn may be nil, in which case children inherit the parent's
// argument vector unchanged (spec.md §4.1).
func (t *Task) Exit(mgmt Action, mergeFn MergeFunc, a0, a1, a2 Word) Action {
	t.mu.Lock()
	t.pendingAction = mgmt
	t.pendingMerge = mergeFn
	t.pendingArgs = t.args
	t.pendingArgs[0], t.pendingArgs[1], t.pendingArgs[2] = a0, a1, a2
	t.mu.Unlock()
	return mgmt
}

func (t *Task) childArgs(parentFinal Args) Args {
	t.mu.Lock()
	merge := t.pendingMerge
	t.mu.Unlock()
	if merge == nil {
		return parentFinal
	}
	return merge(parentFinal)
}

// post releases the completion gate, waking at most one blocked Wait.
func (t *Task) post() {
	t.gate.Release(1)
}
