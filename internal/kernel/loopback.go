package kernel

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nanvix-go/ikc/internal/syncprim"
)

const (
	errInval    = -22
	errBusy     = -16
	errAgain    = -11
	errNoMsg    = -42
	errNotFound = -2
)

type mailboxEndpoint struct {
	mu       sync.Mutex
	inbox    chan []byte // non-nil on the Create (input) side
	targetID int         // non-zero on the Open (output) side
}

type portalEndpoint struct {
	mu      sync.Mutex
	inbox   chan []byte
	targetID int
	allowed map[int]bool
}

type syncPoint struct {
	mu      *syncprim.Mutex
	cond    *syncprim.CondVar
	want    int
	signals int
}

func newSyncPoint(want int) *syncPoint {
	return &syncPoint{
		mu:   syncprim.NewMutex(syncprim.KindNormal),
		cond: syncprim.NewCondVar(),
		want: want,
	}
}

// Loopback is an in-process stand-in for the real microkernel syscalls,
// analogous to the teacher's Memory backend: no real NoC, just Go
// channels and mutexes standing in for hardware queues (backend/mem.go).
// It is the default Raw used by tests and cmd/ikcctl.
type Loopback struct {
	node int
	tids uint64 // synthetic thread-id generator for syncprim callers

	mu        sync.Mutex
	nextID    int
	mailboxes map[int]*mailboxEndpoint
	mboxAddr  map[[2]int]int // (node,port) -> inbox id

	portals    map[int]*portalEndpoint
	portalAddr map[int]int // node -> inbox id

	syncs    map[int]*syncPoint
	syncKeys map[string]int // (nodes,kind) identity -> syncs id, so Open finds what Create made

	notifier *uringNotifier // optional, set by EnableURingNotify
}

// NewLoopback creates a loopback raw backend identifying itself as NoC
// node id `node`.
func NewLoopback(node int) *Loopback {
	return &Loopback{
		node:       node,
		mailboxes:  make(map[int]*mailboxEndpoint),
		mboxAddr:   make(map[[2]int]int),
		portals:    make(map[int]*portalEndpoint),
		portalAddr: make(map[int]int),
		syncs:      make(map[int]*syncPoint),
		syncKeys:   make(map[string]int),
	}
}

// EnableURingNotify opts this Loopback into posting completion wakeups
// through an io_uring-backed eventfd ring instead of relying solely on
// the buffered Go channels (SPEC_FULL.md DOMAIN STACK). Only available
// when built with -tags giouring; a plain build returns an error and the
// loopback keeps behaving exactly as it already did.
func (l *Loopback) EnableURingNotify() error {
	n, err := newURingNotifier()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.notifier = n
	l.mu.Unlock()
	return nil
}

// Close releases the optional io_uring notifier, if enabled.
func (l *Loopback) Close() {
	l.mu.Lock()
	n := l.notifier
	l.notifier = nil
	l.mu.Unlock()
	if n != nil {
		n.Close()
	}
}

// notifyCompletion best-effort wakes anything blocked in the optional
// io_uring notifier after a successful enqueue; the channel send itself
// is always the authoritative completion signal.
func (l *Loopback) notifyCompletion() {
	l.mu.Lock()
	n := l.notifier
	l.mu.Unlock()
	if n != nil {
		_ = n.Notify()
	}
}

func (l *Loopback) allocID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}

// NextTID hands out a synthetic, process-unique thread identity for
// callers (e.g. barrier/mutex tests) that need one to drive syncprim.
func (l *Loopback) NextTID() uint64 {
	return atomic.AddUint64(&l.tids, 1)
}

func (l *Loopback) NodeGetNum() int { return l.node }

func (l *Loopback) DcacheInvalidate()            {}
func (l *Loopback) MemCheckArea(ptr []byte) bool { return ptr != nil }

// --- mailbox -----------------------------------------------------------

func (l *Loopback) MailboxCreate(local, port int) int {
	id := l.allocID()
	l.mu.Lock()
	l.mailboxes[id] = &mailboxEndpoint{inbox: make(chan []byte, 16)}
	l.mboxAddr[[2]int{local, port}] = id
	l.mu.Unlock()
	return id
}

func (l *Loopback) MailboxOpen(remote, remotePort int) int {
	l.mu.Lock()
	target, ok := l.mboxAddr[[2]int{remote, remotePort}]
	if !ok {
		l.mu.Unlock()
		return errNotFound
	}
	id := l.nextID + 1
	l.nextID = id
	l.mailboxes[id] = &mailboxEndpoint{targetID: target}
	l.mu.Unlock()
	return id
}

func (l *Loopback) MailboxUnlink(mbxid int) int { return l.releaseMailbox(mbxid) }
func (l *Loopback) MailboxClose(mbxid int) int  { return l.releaseMailbox(mbxid) }

func (l *Loopback) releaseMailbox(mbxid int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.mailboxes[mbxid]; !ok {
		return errInval
	}
	delete(l.mailboxes, mbxid)
	return 0
}

// MailboxAwrite enqueues buf on the peer's inbox without blocking. A full
// inbox (the peer isn't draining fast enough) surfaces as EAGAIN, which the
// flow engine's config task treats as transient and retries
// (original_source/src/libnanvix/ikc/mailbox.c kmailbox_operate loop).
func (l *Loopback) MailboxAwrite(mbxid int, buf []byte) int {
	l.mu.Lock()
	ep, ok := l.mailboxes[mbxid]
	l.mu.Unlock()
	if !ok || ep.targetID == 0 {
		return errInval
	}
	l.mu.Lock()
	target, ok := l.mailboxes[ep.targetID]
	l.mu.Unlock()
	if !ok {
		return errInval
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case target.inbox <- cp:
		l.notifyCompletion()
		return len(buf)
	default:
		return errAgain
	}
}

// MailboxAread drains the endpoint's own inbox into buf without blocking;
// an empty inbox surfaces as ENOMSG so the config task retries.
func (l *Loopback) MailboxAread(mbxid int, buf []byte) int {
	l.mu.Lock()
	ep, ok := l.mailboxes[mbxid]
	l.mu.Unlock()
	if !ok || ep.inbox == nil {
		return errInval
	}
	select {
	case msg := <-ep.inbox:
		n := copy(buf, msg)
		return n
	default:
		return errNoMsg
	}
}

// MailboxWait is a formality on a loopback: Awrite/Aread already completed
// synchronously above, so there is nothing further to wait for.
func (l *Loopback) MailboxWait(mbxid int) int {
	l.mu.Lock()
	_, ok := l.mailboxes[mbxid]
	l.mu.Unlock()
	if !ok {
		return errInval
	}
	return 0
}

// --- portal --------------------------------------------------------------

func (l *Loopback) PortalCreate(local int) int {
	id := l.allocID()
	l.mu.Lock()
	l.portals[id] = &portalEndpoint{inbox: make(chan []byte, 4), allowed: make(map[int]bool)}
	l.portalAddr[local] = id
	l.mu.Unlock()
	return id
}

func (l *Loopback) PortalOpen(remote int) int {
	l.mu.Lock()
	target, ok := l.portalAddr[remote]
	if !ok {
		l.mu.Unlock()
		return errNotFound
	}
	id := l.nextID + 1
	l.nextID = id
	l.portals[id] = &portalEndpoint{targetID: target}
	l.mu.Unlock()
	return id
}

func (l *Loopback) PortalUnlink(portalid int) int { return l.releasePortal(portalid) }
func (l *Loopback) PortalClose(portalid int) int  { return l.releasePortal(portalid) }

func (l *Loopback) releasePortal(portalid int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.portals[portalid]; !ok {
		return errInval
	}
	delete(l.portals, portalid)
	return 0
}

func (l *Loopback) PortalAllow(portalid, remote int) int {
	l.mu.Lock()
	ep, ok := l.portals[portalid]
	l.mu.Unlock()
	if !ok || ep.inbox == nil {
		return errInval
	}
	ep.mu.Lock()
	ep.allowed[remote] = true
	ep.mu.Unlock()
	return 0
}

func (l *Loopback) PortalAwrite(portalid int, buf []byte) int {
	l.mu.Lock()
	ep, ok := l.portals[portalid]
	l.mu.Unlock()
	if !ok || ep.targetID == 0 {
		return errInval
	}
	l.mu.Lock()
	target, ok := l.portals[ep.targetID]
	l.mu.Unlock()
	if !ok {
		return errInval
	}

	target.mu.Lock()
	allowed := target.allowed[l.node]
	target.mu.Unlock()
	if !allowed {
		return errBusy
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case target.inbox <- cp:
		l.notifyCompletion()
		return len(buf)
	default:
		return errAgain
	}
}

func (l *Loopback) PortalAread(portalid int, buf []byte) int {
	l.mu.Lock()
	ep, ok := l.portals[portalid]
	l.mu.Unlock()
	if !ok || ep.inbox == nil {
		return errInval
	}
	select {
	case msg := <-ep.inbox:
		return copy(buf, msg)
	default:
		return errNoMsg
	}
}

func (l *Loopback) PortalWait(portalid int) int {
	l.mu.Lock()
	_, ok := l.portals[portalid]
	l.mu.Unlock()
	if !ok {
		return errInval
	}
	return 0
}

// --- sync ------------------------------------------------------------

func (l *Loopback) syncPointFor(syncid int) *syncPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncs[syncid]
}

// syncQuorum computes how many signals a sync point needs before a waiter
// unblocks, given its kind and the number of nodes in the group
// (spec.md §4.4). An all-to-one point is signaled by every participant
// except the one waiting on it; a one-to-all point is signaled exactly
// once by the node that opened it and the signal fans out to every waiter via the
// shared counter (sp.signals is compared, not decremented, so one signal
// satisfies every concurrent SyncWait).
func syncQuorum(kind, numNodes int) int {
	switch kind {
	case SyncAllToOne:
		if numNodes > 1 {
			return numNodes - 1
		}
		return 1
	case SyncOneToAll:
		return 1
	default:
		return numNodes
	}
}

func syncKeyFor(nodes []int, kind int) string {
	key := strconv.Itoa(kind) + ":"
	for _, n := range nodes {
		key += strconv.Itoa(n) + ","
	}
	return key
}

// syncCreateOrOpen resolves the sync point identified by (nodes, kind):
// the first caller allocates it, every later caller with the same
// identity is handed back the same id. This is what lets a barrier's
// leader (Create) and followers (Open) rendezvous on one shared
// syncPoint instead of each getting their own (original_source's
// ksync_create/ksync_open address the same hardware sync tag; Loopback
// has no hardware tag, so the (nodes, kind) pair stands in for one).
func (l *Loopback) syncCreateOrOpen(nodes []int, kind int) int {
	key := syncKeyFor(nodes, kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.syncKeys[key]; ok {
		return id
	}
	l.nextID++
	id := l.nextID
	l.syncKeys[key] = id
	l.syncs[id] = newSyncPoint(syncQuorum(kind, len(nodes)))
	return id
}

func (l *Loopback) SyncCreate(nodes []int, kind int) int {
	return l.syncCreateOrOpen(nodes, kind)
}

func (l *Loopback) SyncOpen(nodes []int, kind int) int {
	return l.syncCreateOrOpen(nodes, kind)
}

func (l *Loopback) SyncUnlink(syncid int) int { return l.releaseSync(syncid) }
func (l *Loopback) SyncClose(syncid int) int  { return l.releaseSync(syncid) }

func (l *Loopback) releaseSync(syncid int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.syncs[syncid]; !ok {
		return errInval
	}
	delete(l.syncs, syncid)
	return 0
}

func (l *Loopback) SyncWait(syncid int) int {
	sp := l.syncPointFor(syncid)
	if sp == nil {
		return errInval
	}
	tid := l.NextTID()
	sp.mu.Lock(tid)
	for sp.signals < sp.want {
		_ = sp.cond.Wait(sp.mu, tid)
	}
	sp.mu.Unlock(tid)
	return 0
}

func (l *Loopback) SyncSignal(syncid int) int {
	sp := l.syncPointFor(syncid)
	if sp == nil {
		return errInval
	}
	tid := l.NextTID()
	sp.mu.Lock(tid)
	sp.signals++
	sp.cond.Broadcast()
	sp.mu.Unlock(tid)
	return 0
}
