// Package flow implements the IKC flow engine: a permanently-wired
// two-task "config"/"wait" micro-graph per flow slot that drives a single
// mailbox or portal operation to completion, retrying transient raw-kernel
// errors without growing the call stack (spec.md §3.3, §4.2). It is
// grounded on kmailbox_operate/kmailbox_wait
// (original_source/src/libnanvix/ikc/mailbox.c): one task performs the
// asynchronous raw call and retries on EBUSY/EAGAIN/EACCES/ENOMSG/
// ETIMEDOUT, a second waits for the kernel to report completion.
package flow

import (
	"sync"

	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/kernel"
	"github.com/nanvix-go/ikc/internal/task"
)

// Kind identifies which raw operation a flow slot drives.
type Kind int

const (
	KindInvalid Kind = iota
	KindMailboxRead
	KindMailboxWrite
	KindPortalRead
	KindPortalWrite
)

func (k Kind) String() string {
	switch k {
	case KindMailboxRead:
		return "mailbox_read"
	case KindMailboxWrite:
		return "mailbox_write"
	case KindPortalRead:
		return "portal_read"
	case KindPortalWrite:
		return "portal_write"
	default:
		return "invalid"
	}
}

// Flow is one slot of the engine's fixed-size pool: a config task wired
// with a permanent Default edge into a wait task, and a permanent
// Continue-triggered Hard back-edge from wait into config
// (Trigger.countsTowardParent excludes Continue for exactly this edge,
// see internal/task/task.go). The wiring is created once per acquisition
// and torn down on release — a slot is one-shot per logical operation,
// never left dispatched across calls (SPEC_FULL.md Open Question #2).
type Flow struct {
	kind Kind

	config *task.Task
	wait   *task.Task

	mu           sync.Mutex
	commID       int
	buf          []byte
	lastReturn   int32
	configFailed bool // config hit a permanent error; wait must not retry the raw call
	configDone   bool // diagnostic only, see DebugState
	waitDone     bool // diagnostic only, see DebugState

	inUse bool
}

// DebugState reports the per-request completion booleans the original
// implementation keeps alongside each task
// (original_source's ktask.c op_completed/wait_completed fields). They are
// diagnostic only: nothing in the engine branches on them, since the task
// scheduler's own state machine is authoritative for whether a flow has
// finished.
func (f *Flow) DebugState() (configDone, waitDone bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configDone, f.waitDone
}

// LastReturn returns the most recent raw-call result recorded by this
// flow's config or wait task body.
func (f *Flow) LastReturn() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReturn
}

func (f *Flow) setReturn(v int32) {
	f.mu.Lock()
	f.lastReturn = v
	f.mu.Unlock()
}

// rawOp performs the single raw-kernel call a config task body retries,
// returning the raw (possibly negative) result.
func (f *Flow) rawOp(raw kernel.Raw) int {
	switch f.kind {
	case KindMailboxWrite:
		return raw.MailboxAwrite(f.commID, f.buf)
	case KindMailboxRead:
		return raw.MailboxAread(f.commID, f.buf)
	case KindPortalWrite:
		return raw.PortalAwrite(f.commID, f.buf)
	case KindPortalRead:
		return raw.PortalAread(f.commID, f.buf)
	default:
		return int(errs.Errno(errs.CodeInvalid))
	}
}

func (f *Flow) rawWait(raw kernel.Raw) int {
	switch f.kind {
	case KindMailboxWrite, KindMailboxRead:
		return raw.MailboxWait(f.commID)
	case KindPortalWrite, KindPortalRead:
		return raw.PortalWait(f.commID)
	default:
		return int(errs.Errno(errs.CodeInvalid))
	}
}

// codeForErrno maps a negative raw return value to a Code, for transience
// checks (spec.md §9 "Error retries as data, not control flow").
func codeForErrno(ret int) errs.Code {
	switch ret {
	case -16:
		return errs.CodeBusy
	case -11:
		return errs.CodeAgain
	case -13:
		return errs.CodeAccess
	case -42:
		return errs.CodeNoMsg
	case -110:
		return errs.CodeTimedOut
	default:
		return errs.CodeFault
	}
}
