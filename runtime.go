package ikc

import (
	"context"

	"github.com/nanvix-go/ikc/internal/comm"
	"github.com/nanvix-go/ikc/internal/flow"
	"github.com/nanvix-go/ikc/internal/kernel"
	"github.com/nanvix-go/ikc/internal/logging"
	"github.com/nanvix-go/ikc/internal/task"
)

// Logger is the runtime's structured logger, re-exported from
// internal/logging the way the teacher re-exports its bespoke Logger type
// from the root package.
type Logger = logging.Logger

// LogConfig mirrors logging.Config.
type LogConfig = logging.Config

// NewLogger creates a logger from config (nil for sensible defaults).
func NewLogger(cfg *LogConfig) *Logger { return logging.NewLogger(cfg) }

// DefaultLogger returns the package-wide default logger.
func DefaultLogger() *Logger { return logging.Default() }

const (
	// MessageSizeMax bounds a single mailbox message and a single portal
	// chunk (spec.md §4.3 "Validation"), matching KMAILBOX_MESSAGE_SIZE.
	MessageSizeMax = 1024

	// PortalChunkSize is the unit portal reads/writes are split into when
	// the caller's buffer exceeds it (spec.md §4.3 "read/write chunk
	// buffers of size > KMESSAGE_DATA_SIZE"), matching KPORTAL_MESSAGE_DATA_SIZE.
	PortalChunkSize = 1024
)

// RuntimeParams configures a Runtime: dispatcher core count, flow pool
// sizes, the raw kernel-call backend, and this node's NoC identity. This
// is the IKC analogue of the teacher's DeviceParams.
type RuntimeParams struct {
	// Cores is the number of per-core dispatcher goroutines (spec.md §5).
	Cores int

	// MailboxSlots/PortalSlots size the IKC flow engine's per-kind user
	// pools (spec.md §3.3); each kind's dispatcher pool gets a quarter of
	// that, at least one slot. Callers size these by their expected
	// thread limit.
	MailboxSlots int
	PortalSlots  int

	// Raw is the raw kernel-call shim. If nil, a fresh in-process
	// kernel.Loopback is used (SPEC_FULL.md ambient stack, "test tooling").
	Raw kernel.Raw

	// Node is this process's NoC node id, used only when Raw is nil to
	// construct the default Loopback.
	Node int

	// CPUAffinity optionally pins dispatcher core N to CPU
	// CPUAffinity[N%len(CPUAffinity)], the IKC analogue of the teacher's
	// DeviceParams.CPUAffinity (backend.go). Linux-only; ignored elsewhere.
	CPUAffinity []int
}

// DefaultParams returns sensible default runtime parameters.
func DefaultParams() RuntimeParams {
	return RuntimeParams{
		Cores:        1,
		MailboxSlots: 16,
		PortalSlots:  16,
	}
}

// Options carries optional cross-cutting dependencies for NewRuntime,
// mirroring the teacher's Options (Context/Logger/Observer).
type Options struct {
	Context  context.Context
	Logger   *Logger
	Observer Observer
}

// Runtime is the process-wide dispatcher context (spec.md §2 "Dispatch
// context"): the scheduler, the IKC flow engine, the mailbox and portal
// communicator tables, and the metrics/observer pair, all wired together.
type Runtime struct {
	sched    *Scheduler
	engine   *flow.Engine
	mailboxes *comm.Table
	portals  *comm.Table
	raw      kernel.Raw
	logger   *Logger
	metrics  *Metrics
	observer Observer
	node     int

	ctx    context.Context
	cancel context.CancelFunc

	sampler *Task
}

// NewRuntime builds a Runtime from params, starts its dispatcher cores,
// and arms a periodic task that samples flow-pool depth into the observer
// (SPEC_FULL.md's periodic self-test task, grounded on ktask.c).
func NewRuntime(params RuntimeParams, options *Options) (*Runtime, error) {
	if params.Cores < 1 {
		params.Cores = 1
	}
	if params.MailboxSlots < 1 {
		params.MailboxSlots = 1
	}
	if params.PortalSlots < 1 {
		params.PortalSlots = 1
	}
	if options == nil {
		options = &Options{}
	}

	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	observer := options.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	raw := params.Raw
	if raw == nil {
		raw = kernel.NewLoopback(params.Node)
	}

	sched := task.New(params.Cores, logger)
	if len(params.CPUAffinity) > 0 {
		sched.SetCPUAffinity(params.CPUAffinity)
	}
	sched.Start()

	engine := flow.NewEngine(sched, raw, params.MailboxSlots, params.PortalSlots, logger)

	rt := &Runtime{
		sched:     sched,
		engine:    engine,
		mailboxes: comm.NewTable(),
		portals:   comm.NewTable(),
		raw:       raw,
		logger:    logger,
		metrics:   NewMetrics(),
		observer:  observer,
		node:      params.Node,
		ctx:       ctx,
		cancel:    cancel,
	}

	sampler := task.NewTask()
	if err := sched.Create(sampler, rt.sampleFlowPoolDepth, 10); err == nil {
		rt.sampler = sampler
		_ = sched.Dispatch(sampler, 0, 0, 0)
	}

	return rt, nil
}

// sampleFlowPoolDepth is the periodic task body that refreshes the
// flow-pool-depth gauge; it always re-arms itself (spec.md §4.1
// "Periodic: reschedule after period ticks").
func (rt *Runtime) sampleFlowPoolDepth(ctx context.Context, t *Task) Action {
	rt.observer.ObserveFlowPoolDepth(uint32(rt.engine.InUseCount()))
	return t.Exit(ActionPeriodic, nil, 0, 0, 0)
}

// Scheduler returns the runtime's task scheduler, for callers that build
// their own task graphs alongside the IKC flow engine.
func (rt *Runtime) Scheduler() *Scheduler { return rt.sched }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *Logger { return rt.logger }

// Metrics returns the runtime's metrics instance.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// Node returns this runtime's NoC node id.
func (rt *Runtime) Node() int { return rt.raw.NodeGetNum() }

// Close stops the dispatcher cores and releases runtime resources. A
// Runtime must not be used after Close.
func (rt *Runtime) Close() {
	rt.cancel()
	if rt.sampler != nil {
		_ = rt.sched.Stop(rt.sampler)
	}
	rt.sched.Shutdown()
	if closer, ok := rt.raw.(interface{ Close() }); ok {
		closer.Close()
	}
}
