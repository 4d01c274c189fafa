package task

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/logging"
)

// dispatcherCoreKey is the context key the per-core dispatcher loop sets so
// that code running inside a task body (and anything it calls) can tell it
// is running on a dispatcher thread rather than a user thread
// (spec.md §9 "Dispatcher vs user thread identity"). Go has no portable
// thread-local storage, so the identity rides the context the dispatcher
// already threads through Func — the idiomatic substitute.
type dispatcherCoreKey struct{}

// CoreFromContext reports the dispatcher core id a context was produced on,
// and whether ctx was in fact produced by a dispatcher loop.
func CoreFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(dispatcherCoreKey{})
	if v == nil {
		return 0, false
	}
	return v.(int), true
}

// IsDispatcherContext reports whether ctx was produced by a dispatcher
// loop, i.e. whether the calling goroutine is a dispatcher thread.
func IsDispatcherContext(ctx context.Context) bool {
	_, ok := CoreFromContext(ctx)
	return ok
}

type core struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ready    []*Task
	periodic []*Task
	tickNum  uint64
	closed   bool
}

func newCore() *core {
	c := &core{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *core) enqueue(t *Task) {
	c.mu.Lock()
	c.ready = append(c.ready, t)
	c.cond.Signal()
	c.mu.Unlock()
}

// addPeriodic registers t for tick-based promotion if it isn't already
// registered. A periodic task cycles through Stopped -> Ready -> Running
// and back on every period, so without this check each cycle would append
// another copy of the same task to the list.
func (c *core) addPeriodic(t *Task) {
	c.mu.Lock()
	for _, pt := range c.periodic {
		if pt == t {
			c.mu.Unlock()
			return
		}
	}
	c.periodic = append(c.periodic, t)
	c.mu.Unlock()
}

func (c *core) removePeriodic(t *Task) {
	c.mu.Lock()
	for i, pt := range c.periodic {
		if pt == t {
			c.periodic = append(c.periodic[:i], c.periodic[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

func (c *core) tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickNum
}

// pop returns the next task to run, blocking cooperatively until one is
// ready or the core is closed (spec.md §4.1 dispatcher algorithm, step 1).
func (c *core) pop() (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return nil, false
		}
		c.tickNum++

		if len(c.ready) > 0 {
			t := c.ready[0]
			c.ready = c.ready[1:]
			return t, true
		}

		// Promote periodic tasks whose tick has arrived.
		due := c.duePeriodicLocked()
		if len(due) > 0 {
			c.ready = append(c.ready, due...)
			continue
		}

		c.cond.Wait()
	}
}

func (c *core) duePeriodicLocked() []*Task {
	var due []*Task
	for _, pt := range c.periodic {
		pt.mu.Lock()
		ready := pt.state == StateStopped && c.tickNum >= pt.nextTickLocked()
		pt.mu.Unlock()
		if ready {
			due = append(due, pt)
		}
	}
	return due
}

func (t *Task) nextTickLocked() uint64 {
	return t.nextTick
}

func (c *core) close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Scheduler stores the task DAG and runs one cooperative dispatcher loop
// per core (spec.md §4.1, §5).
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[uint32]*Task
	nextID uint32

	cores []*core
	wg    sync.WaitGroup

	logger   *logging.Logger
	affinity []int // optional CPU indices, round-robin by core id (spec.md §9 "process-wide mutable state")
}

// New creates a scheduler with numCores dispatcher threads. Dispatch()
// always targets core 0 (the "dedicated dispatcher thread" of spec.md §1);
// Emit() can target any core in [0, numCores).
func New(numCores int, logger *logging.Logger) *Scheduler {
	if numCores < 1 {
		numCores = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scheduler{
		tasks:  make(map[uint32]*Task),
		logger: logger,
	}
	for i := 0; i < numCores; i++ {
		s.cores = append(s.cores, newCore())
	}
	return s
}

// SetCPUAffinity configures the CPU indices dispatcher goroutines are
// pinned to, round-robin by core id (core N pins to cpus[N%len(cpus)]).
// Must be called before Start. A nil/empty slice leaves cores unpinned.
// Mirrors the teacher's Runner.CPUAffinity (internal/queue/runner.go).
func (s *Scheduler) SetCPUAffinity(cpus []int) {
	s.affinity = cpus
}

// Start launches the per-core dispatcher goroutines.
func (s *Scheduler) Start() {
	for i := range s.cores {
		s.wg.Add(1)
		go s.runCore(i)
	}
}

// Shutdown closes every core's ready queue and waits for the dispatcher
// goroutines to exit. Distinct from Stop(task), which only toggles a
// single task to Stopped.
func (s *Scheduler) Shutdown() {
	for _, c := range s.cores {
		c.close()
	}
	s.wg.Wait()
}

// NumCores returns the number of dispatcher cores.
func (s *Scheduler) NumCores() int { return len(s.cores) }

// Create initializes t with a fresh id, an empty edge table, and state
// NotStarted. Fails with EINVAL if t is already initialized
// (spec.md §4.1 "create").
func (s *Scheduler) Create(t *Task, fn Func, period uint64) error {
	t.mu.Lock()
	if t.state != StateUnused {
		t.mu.Unlock()
		return errs.New("task.create", errs.CodeInvalid, "task already initialized")
	}
	t.fn = fn
	t.period = period
	t.state = StateNotStarted
	t.core = -1
	if t.gate == nil {
		t.gate = semaphore.NewWeighted(1)
	}
	t.gate.TryAcquire(1)
	t.mu.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	t.mu.Lock()
	t.id = id
	t.mu.Unlock()

	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()
	return nil
}

// dfsReaches reports whether, starting from start, the child graph reaches
// target — used to reject edges that would introduce a cycle.
func dfsReaches(start, target *Task) bool {
	seen := map[*Task]bool{}
	var walk func(n *Task) bool
	walk = func(n *Task) bool {
		if n == target {
			return true
		}
		if seen[n] {
			return false
		}
		seen[n] = true
		n.mu.Lock()
		kids := make([]*Task, 0, len(n.children))
		for _, e := range n.children {
			kids = append(kids, e.child)
		}
		n.mu.Unlock()
		for _, k := range kids {
			if walk(k) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// Connect appends a directed edge parent->child (spec.md §4.1 "connect").
func (s *Scheduler) Connect(parent, child *Task, dep Dependency, trig Trigger) error {
	if parent == child {
		return errs.New("task.connect", errs.CodeInvalid, "self-edge")
	}
	if dfsReaches(child, parent) {
		return errs.New("task.connect", errs.CodeInvalid, "would introduce a cycle")
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if len(parent.children) >= maxChildren {
		return errs.New("task.connect", errs.CodeBusy, "child edge table full")
	}
	parent.children = append(parent.children, edge{child: child, dep: dep, trigger: trig})

	if dep == DepHard && trig.countsTowardParent() {
		child.mu.Lock()
		child.parentCount++
		child.mu.Unlock()
	}
	return nil
}

// Disconnect removes the edge parent->child (spec.md §4.1 "disconnect").
func (s *Scheduler) Disconnect(parent, child *Task) error {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, e := range parent.children {
		if e.child == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			if e.dep == DepHard && e.trigger.countsTowardParent() {
				child.mu.Lock()
				if child.parentCount > 0 {
					child.parentCount--
				}
				child.mu.Unlock()
			}
			return nil
		}
	}
	return errs.New("task.disconnect", errs.CodeInvalid, "no such edge")
}

// Dispatch sets the task's arguments, marks it Ready, and enqueues it on
// core 0's ready queue (spec.md §4.1 "dispatch").
func (s *Scheduler) Dispatch(t *Task, a0, a1, a2 Word) error {
	return s.emitOn(t, 0, a0, a1, a2)
}

// Emit is Dispatch pinned to a specific core (spec.md §4.1 "emit").
func (s *Scheduler) Emit(t *Task, coreID int, a0, a1, a2 Word) error {
	if coreID < 0 || coreID >= len(s.cores) {
		return errs.New("task.emit", errs.CodeInvalid, "no such core")
	}
	return s.emitOn(t, coreID, a0, a1, a2)
}

func (s *Scheduler) emitOn(t *Task, coreID int, a0, a1, a2 Word) error {
	t.mu.Lock()
	if t.state == StateUnused {
		t.mu.Unlock()
		return errs.New("task.dispatch", errs.CodeInvalid, "task not created")
	}
	if t.parentCount > 0 {
		t.mu.Unlock()
		return errs.New("task.dispatch", errs.CodeBusy, "task has pending parents")
	}
	t.args[0], t.args[1], t.args[2] = a0, a1, a2
	t.state = StateReady
	t.core = coreID
	t.mu.Unlock()

	s.cores[coreID].enqueue(t)
	return nil
}

// Wait blocks the caller on the task's completion semaphore and returns
// its signed return value. Calling Wait from a dispatcher thread is
// forbidden; use TryWait instead (spec.md §4.1 "wait").
func (s *Scheduler) Wait(ctx context.Context, t *Task) (int32, error) {
	if IsDispatcherContext(ctx) {
		return 0, errs.New("task.wait", errs.CodeProto, "wait called from dispatcher thread")
	}
	if err := t.gate.Acquire(ctx, 1); err != nil {
		return 0, errs.WrapError("task.wait", err)
	}
	t.gate.Release(1)
	return t.RetVal(), nil
}

// TryWait never blocks: it returns the task's return value if it has
// reached a terminal state, or EPROTO otherwise (spec.md §4.1 "wait").
func (s *Scheduler) TryWait(t *Task) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.IsTerminal() {
		return 0, errs.New("task.trywait", errs.CodeProto, "not yet complete")
	}
	return t.retval, nil
}

// Stop toggles a task to Stopped; a Stopped task is not dispatched until
// Continue is called (spec.md §4.1 "stop/continue").
func (s *Scheduler) Stop(t *Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateUnused {
		return errs.New("task.stop", errs.CodeInvalid, "task not created")
	}
	t.state = StateStopped
	return nil
}

// Continue resumes a Stopped task, making it eligible for dispatch again
// once its parents are satisfied.
func (s *Scheduler) Continue(t *Task) error {
	t.mu.Lock()
	if t.state != StateStopped {
		t.mu.Unlock()
		return errs.New("task.continue", errs.CodeInvalid, "task is not stopped")
	}
	ready := t.parentCount == 0
	coreID := t.core
	if ready {
		t.state = StateReady
	} else {
		t.state = StateNotStarted
	}
	t.mu.Unlock()

	if ready {
		if coreID < 0 {
			coreID = 0
		}
		s.cores[coreID].enqueue(t)
	}
	return nil
}

// Unlink removes a task from the scheduler's table. Refused while the
// task has any non-terminal parent or child edge (spec.md §3.1 invariant
// (c)).
func (s *Scheduler) Unlink(t *Task) error {
	t.mu.Lock()
	if t.parentCount > 0 {
		t.mu.Unlock()
		return errs.New("task.unlink", errs.CodeBusy, "task has pending parent edges")
	}
	hasChild := len(t.children) > 0
	id := t.id
	t.mu.Unlock()
	if hasChild {
		return errs.New("task.unlink", errs.CodeBusy, "task has pending child edges")
	}

	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()

	t.mu.Lock()
	t.state = StateUnused
	t.id = 0
	t.mu.Unlock()
	return nil
}
