package flow

import (
	"context"
	"sync"

	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/kernel"
	"github.com/nanvix-go/ikc/internal/logging"
	"github.com/nanvix-go/ikc/internal/task"
)

// Engine owns four disjoint pools of flow slots: mailbox/portal, each
// split again into a dispatcher pool and a user pool (spec.md §3.3, §9
// "Dispatcher vs user thread identity"). The dispatcher pool serves
// config/wait micro-graphs built from inside a dispatcher task body,
// where blocking on Engine.Wait would deadlock the core against itself;
// the user pool serves ordinary caller threads. Sizing mirrors
// KMAILBOX_USER_TASK_MAX/KPORTAL_USER_TASK_MAX
// (original_source/src/libnanvix/ikc/mailbox.c kmailbox_tasks), with the
// dispatcher side kept small since only the runtime's own periodic tasks
// use it.
type Engine struct {
	sched  *task.Scheduler
	raw    kernel.Raw
	logger *logging.Logger

	mu              sync.Mutex
	mailboxUserPool []*Flow
	mailboxDispPool []*Flow
	portalUserPool  []*Flow
	portalDispPool  []*Flow
}

// dispatcherPoolSlots sizes each kind's dispatcher-thread pool as a small
// fraction of its user pool (never zero), since only the runtime's own
// dispatcher-context callers (e.g. a periodic task) ever draw from it.
func dispatcherPoolSlots(userSlots int) int {
	n := userSlots / 4
	if n < 1 {
		n = 1
	}
	return n
}

// NewEngine creates an engine with the given per-kind user-pool sizes.
func NewEngine(sched *task.Scheduler, raw kernel.Raw, mailboxSlots, portalSlots int, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{sched: sched, raw: raw, logger: logger}
	for i := 0; i < mailboxSlots; i++ {
		e.mailboxUserPool = append(e.mailboxUserPool, &Flow{})
	}
	for i := 0; i < dispatcherPoolSlots(mailboxSlots); i++ {
		e.mailboxDispPool = append(e.mailboxDispPool, &Flow{})
	}
	for i := 0; i < portalSlots; i++ {
		e.portalUserPool = append(e.portalUserPool, &Flow{})
	}
	for i := 0; i < dispatcherPoolSlots(portalSlots); i++ {
		e.portalDispPool = append(e.portalDispPool, &Flow{})
	}
	return e
}

func (e *Engine) poolFor(kind Kind, dispatcher bool) []*Flow {
	switch kind {
	case KindMailboxRead, KindMailboxWrite:
		if dispatcher {
			return e.mailboxDispPool
		}
		return e.mailboxUserPool
	case KindPortalRead, KindPortalWrite:
		if dispatcher {
			return e.portalDispPool
		}
		return e.portalUserPool
	default:
		return nil
	}
}

func (e *Engine) acquire(kind Kind, dispatcher bool) (*Flow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool := e.poolFor(kind, dispatcher)
	if pool == nil {
		return nil, errs.New("flow.config", errs.CodeInvalid, "unknown flow kind")
	}
	for _, f := range pool {
		if !f.inUse {
			f.inUse = true
			f.kind = kind
			return f, nil
		}
	}
	return nil, errs.New("flow.config", errs.CodeBusy, "no free flow slot")
}

func (e *Engine) release(f *Flow) {
	if f.config != nil && f.wait != nil {
		_ = e.sched.Disconnect(f.wait, f.config)
		_ = e.sched.Disconnect(f.config, f.wait)
		_ = e.sched.Unlink(f.config)
		_ = e.sched.Unlink(f.wait)
	}
	e.mu.Lock()
	f.inUse = false
	e.mu.Unlock()
}

// InUseCount reports how many flow slots (every pool combined) are
// currently acquired, for the runtime's flow-pool-depth gauge
// (SPEC_FULL.md "ktask.c's periodic self-test task").
func (e *Engine) InUseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, pool := range [][]*Flow{e.mailboxUserPool, e.mailboxDispPool, e.portalUserPool, e.portalDispPool} {
		for _, f := range pool {
			if f.inUse {
				n++
			}
		}
	}
	return n
}

// wireConfigTask creates f's config task: it performs the raw operation
// and retries on transient errors by returning ActionAgain, the same way
// __kmailbox_operate turns EBUSY/EAGAIN/EACCES/ENOMSG/ETIMEDOUT into
// TASK_RET_AGAIN instead of failing outright.
// wireConfigTask's Default edge into wait always fires, even on a
// permanent error: wait is where a flow terminates (Engine.Wait blocks on
// it), so a failed config still hands off to wait, which short-circuits
// its own raw call and reports the stored error (see wireWaitTask).
func (e *Engine) wireConfigTask(f *Flow) task.Func {
	return func(ctx context.Context, tk *task.Task) task.Action {
		ret := f.rawOp(e.raw)
		if ret < 0 {
			code := codeForErrno(ret)
			if errs.IsTransient(code) {
				return tk.Exit(task.ActionAgain, nil, 0, 0, 0)
			}
			f.mu.Lock()
			f.lastReturn = int32(ret)
			f.configFailed = true
			f.configDone = true
			f.mu.Unlock()
			return tk.Exit(task.ActionSuccess, nil, 0, 0, 0)
		}
		f.mu.Lock()
		f.lastReturn = int32(ret)
		f.configDone = true
		f.mu.Unlock()
		return tk.Exit(task.ActionSuccess, nil, 0, 0, 0)
	}
}

// wireWaitTask creates f's wait task: it blocks (via raw retry through
// ActionAgain, since the raw call itself is non-blocking on a loopback or
// any polling-style backend) until the kernel reports the operation begun
// by config has completed.
func (e *Engine) wireWaitTask(f *Flow) task.Func {
	return func(ctx context.Context, tk *task.Task) task.Action {
		f.mu.Lock()
		failed := f.configFailed
		f.mu.Unlock()
		if failed {
			f.mu.Lock()
			f.waitDone = true
			f.mu.Unlock()
			return tk.Exit(task.ActionError, nil, 0, 0, 0)
		}

		ret := f.rawWait(e.raw)
		if ret > 0 {
			// The completed read landed a message for a different port
			// than the one config configured (spec.md §4.2, kmailbox_wait's
			// "ret > 0" case): don't report this as the flow's result,
			// resubmit the whole config->wait cycle instead of re-polling
			// wait, exactly as kmailbox_read's retry loop re-issues
			// kmailbox_aread on this condition
			// (original_source/src/libnanvix/ikc/mailbox.c).
			f.setReturn(int32(ret))
			return tk.Exit(task.ActionContinue, nil, 0, 0, 0)
		}
		if ret < 0 {
			code := codeForErrno(ret)
			if errs.IsTransient(code) {
				return tk.Exit(task.ActionAgain, nil, 0, 0, 0)
			}
			f.setReturn(int32(ret))
			f.mu.Lock()
			f.waitDone = true
			f.mu.Unlock()
			return tk.Exit(task.ActionError, nil, 0, 0, 0)
		}
		f.mu.Lock()
		f.waitDone = true
		f.mu.Unlock()
		return tk.Exit(task.ActionFinish, nil, 0, 0, 0)
	}
}

// Config acquires a free flow slot of the given kind, wires its config/wait
// micro-graph, and dispatches config. It returns immediately; call Wait on
// the returned Flow to block for completion (spec.md §4.2 "flow_config").
// ctx's dispatcher identity (task.IsDispatcherContext) picks which of the
// kind's two disjoint pools the slot is drawn from (spec.md §3.3, §9).
func (e *Engine) Config(ctx context.Context, kind Kind, commID int, buf []byte) (*Flow, error) {
	f, err := e.acquire(kind, task.IsDispatcherContext(ctx))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.commID = commID
	f.buf = buf
	f.lastReturn = 0
	f.configFailed = false
	f.configDone = false
	f.waitDone = false
	f.mu.Unlock()

	if f.config == nil {
		f.config = task.NewTask()
	}
	if f.wait == nil {
		f.wait = task.NewTask()
	}

	if err := e.sched.Create(f.config, e.wireConfigTask(f), 0); err != nil {
		e.release(f)
		return nil, err
	}
	if err := e.sched.Create(f.wait, e.wireWaitTask(f), 0); err != nil {
		e.release(f)
		return nil, err
	}
	if err := e.sched.Connect(f.config, f.wait, task.DepHard, task.TriggerDefault); err != nil {
		e.release(f)
		return nil, err
	}
	// Permanent back-edge: wait fires it (ActionContinue) when the raw
	// wait call completes a message for the wrong port, re-entering
	// config to resubmit the whole operation (see wireWaitTask). Because
	// Continue edges don't count toward the child's parent counter
	// (task.Trigger.countsTowardParent), wiring it permanently here never
	// blocks config's own first dispatch.
	if err := e.sched.Connect(f.wait, f.config, task.DepHard, task.TriggerContinue); err != nil {
		e.release(f)
		return nil, err
	}

	if err := e.sched.Dispatch(f.config, 0, 0, 0); err != nil {
		e.release(f)
		return nil, err
	}

	return f, nil
}

// Wait blocks until f's micro-graph reaches a terminal state, returning
// the raw result recorded by its last task body, then releases the slot
// back to the pool (spec.md §4.2 "flow_wait" — a flow slot is one-shot).
// From a dispatcher thread (task.IsDispatcherContext), blocking here would
// deadlock the core against itself, so Wait instead polls non-blockingly
// and returns immediately whether or not the flow has finished (spec.md
// §9); the caller's own task body is responsible for being re-invoked to
// poll again, the same way a config task resolves transient errors by
// returning ActionAgain instead of blocking.
func (e *Engine) Wait(ctx context.Context, f *Flow) (int32, error) {
	if task.IsDispatcherContext(ctx) {
		if _, err := e.sched.TryWait(f.wait); err != nil {
			return 0, err
		}
		defer e.release(f)
		return e.finishWait(f)
	}

	defer e.release(f)
	if _, err := e.sched.Wait(ctx, f.wait); err != nil {
		return 0, err
	}
	return e.finishWait(f)
}

// finishWait tears down f's task wiring so the next acquisition of this
// slot starts from a clean Unused state, then translates its recorded
// raw result into the flow_wait return contract.
func (e *Engine) finishWait(f *Flow) (int32, error) {
	rv := f.LastReturn()

	_ = e.sched.Disconnect(f.wait, f.config)
	_ = e.sched.Disconnect(f.config, f.wait)
	_ = e.sched.Unlink(f.config)
	_ = e.sched.Unlink(f.wait)

	if rv < 0 {
		return rv, errs.New("flow.wait", codeForErrno(int(rv)), "flow operation failed")
	}
	return rv, nil
}
