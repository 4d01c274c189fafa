package ikc

import (
	"context"

	"github.com/nanvix-go/ikc/internal/task"
)

// The task scheduler (spec.md §4.1) is implemented in internal/task and
// re-exported here as the package's public task-graph surface, the same
// way the teacher re-exports its queue runner's tag/state types from the
// root ublk package.
type (
	Scheduler  = task.Scheduler
	Task       = task.Task
	State      = task.State
	Action     = task.Action
	Dependency = task.Dependency
	Trigger    = task.Trigger
	Word       = task.Word
	Args       = task.Args
	MergeFunc  = task.MergeFunc
	TaskFunc   = task.Func
)

const (
	StateUnused     = task.StateUnused
	StateNotStarted = task.StateNotStarted
	StateReady      = task.StateReady
	StateRunning    = task.StateRunning
	StateStopped    = task.StateStopped
	StateCompleted  = task.StateCompleted
	StateError      = task.StateError
	StateAborted    = task.StateAborted
)

const (
	ActionSuccess  = task.ActionSuccess
	ActionAgain    = task.ActionAgain
	ActionStop     = task.ActionStop
	ActionPeriodic = task.ActionPeriodic
	ActionAbort    = task.ActionAbort
	ActionError    = task.ActionError
	ActionFinish   = task.ActionFinish
	ActionContinue = task.ActionContinue
)

const (
	DepHard = task.DepHard
	DepSoft = task.DepSoft
)

const (
	TriggerDefault  = task.TriggerDefault
	TriggerContinue = task.TriggerContinue
	TriggerFinish   = task.TriggerFinish
	TriggerAgain    = task.TriggerAgain
	TriggerError    = task.TriggerError
)

// NewScheduler creates a scheduler with numCores dispatcher threads
// (spec.md §4.1, §5 "Parallel: multiple cores each run a dispatcher").
func NewScheduler(numCores int, logger *Logger) *Scheduler {
	return task.New(numCores, logger)
}

// NewTask allocates a zero-value task ready for Scheduler.Create.
func NewTask() *Task { return task.NewTask() }

// CoreFromContext reports the dispatcher core id a context was produced
// on, and whether ctx was in fact produced by a dispatcher loop.
func CoreFromContext(ctx context.Context) (int, bool) {
	return task.CoreFromContext(ctx)
}

// IsDispatcherContext reports whether ctx was produced by a dispatcher
// loop, i.e. whether the calling goroutine is a dispatcher thread
// (spec.md §9 "Dispatcher vs user thread identity").
func IsDispatcherContext(ctx context.Context) bool {
	return task.IsDispatcherContext(ctx)
}
