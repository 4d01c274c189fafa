// Package kernel models the raw kernel-call shim the IKC runtime sits on
// top of: mailbox, portal and sync-point syscalls, thread identity, and the
// handful of memory/cache primitives the mailbox ioctl path touches
// (spec.md §6 "External interfaces"). The real syscalls
// (kmailbox_aread/awrite/wait, kportal_*, ksync_*, ...) are out of scope for
// this module; Raw is the seam a production build would wire to them, and
// Loopback (loopback.go) is the in-process stand-in used by tests and the
// CLI.
package kernel

// Opcode numbers the raw call multiplexes on, mirroring the NR_mailbox_*,
// NR_portal_* and NR_sync_* constants of the original kernel ABI
// (original_source/include/nanvix/sys/{mailbox,portal,sync}.h).
type Opcode int

const (
	OpMailboxAwrite Opcode = iota
	OpMailboxAread
	OpMailboxWait
	OpPortalAwrite
	OpPortalAread
	OpPortalWait
)

// Sync point kinds, mirroring SYNC_ALL_TO_ONE/SYNC_ONE_TO_ALL
// (original_source/include/nanvix/sys/sync.h): a sync point's required
// signal quorum depends on which of the two a barrier wires it as, not on
// the participant count alone (spec.md §4.4).
const (
	// SyncAllToOne is signaled by every participant but the one that
	// created it, which is the only one that ever waits on it.
	SyncAllToOne = 0

	// SyncOneToAll is signaled once by the single node that opened it;
	// every participant that created it waits on it.
	SyncOneToAll = 1
)

// Raw is the seam between the IKC flow engine and the underlying
// communication hardware/microkernel. Every method returns a POSIX-style
// negative integer on failure instead of a Go error, matching the ABI the
// flow engine's task bodies are written against (spec.md §7).
type Raw interface {
	// MailboxCreate/Open/Unlink/Close manage a mailbox's lifetime, keyed by
	// (local|remote node, port).
	MailboxCreate(local, port int) int
	MailboxOpen(remote, remotePort int) int
	MailboxUnlink(mbxid int) int
	MailboxClose(mbxid int) int

	// MailboxAwrite/Aread start an asynchronous operation and return
	// immediately; MailboxWait blocks until the most recent one on mbxid
	// completes, polled by the flow engine's wait task. MailboxWait
	// returns 0 on success, a negative POSIX errno on failure, and a
	// strictly positive value when the completed operation was a read
	// that landed a message addressed to a different port than the one
	// the caller configured (kmailbox_wait's "ret > 0" case,
	// original_source/src/libnanvix/ikc/mailbox.c): the caller must
	// resubmit the whole operation rather than wait again.
	MailboxAwrite(mbxid int, buf []byte) int
	MailboxAread(mbxid int, buf []byte) int
	MailboxWait(mbxid int) int

	// PortalCreate/Open/Unlink/Close/Allow mirror the mailbox lifecycle but
	// additionally gate Awrite with a remote allow-list (spec.md §4.3).
	PortalCreate(local int) int
	PortalOpen(remote int) int
	PortalUnlink(portalid int) int
	PortalClose(portalid int) int
	PortalAllow(portalid, remote int) int

	// PortalWait shares MailboxWait's three-way return contract: 0, a
	// negative errno, or a positive "wrong port" resubmit signal.
	PortalAwrite(portalid int, buf []byte) int
	PortalAread(portalid int, buf []byte) int
	PortalWait(portalid int) int

	// SyncCreate/Open/Unlink/Close/Wait/Signal implement the two sync
	// points a barrier is built from (spec.md §4.4).
	SyncCreate(nodes []int, kind int) int
	SyncOpen(nodes []int, kind int) int
	SyncUnlink(syncid int) int
	SyncClose(syncid int) int
	SyncWait(syncid int) int
	SyncSignal(syncid int) int

	// NodeGetNum returns this process's logical NoC node id.
	NodeGetNum() int

	// DcacheInvalidate and MemCheckArea back the mailbox/portal ioctl path
	// (original_source kmailbox_ioctl's dcache_invalidate()/mm_check_area()
	// calls); a loopback implementation over Go memory has no cache to
	// invalidate and a trivially valid address space, so both are no-ops
	// there.
	DcacheInvalidate()
	MemCheckArea(ptr []byte) bool
}
