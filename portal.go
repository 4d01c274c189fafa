package ikc

import (
	"context"
	"time"

	"github.com/nanvix-go/ikc/internal/comm"
	"github.com/nanvix-go/ikc/internal/errs"
	"github.com/nanvix-go/ikc/internal/flow"
)

// Portal is a user-visible variable-size bulk channel (spec.md §4.3).
type Portal struct {
	rt   *Runtime
	id   int
	node int
}

// CreatePortal creates a portal bound to the local node.
func (rt *Runtime) CreatePortal() (*Portal, error) {
	id := rt.raw.PortalCreate(rt.Node())
	if id < 0 {
		return nil, errs.New("portal.create", errs.CodeFault, "raw portal_create failed")
	}
	if _, err := rt.portals.Register(comm.KindPortal, id, rt.Node(), 0, true); err != nil {
		_ = rt.raw.PortalUnlink(id)
		return nil, err
	}
	return &Portal{rt: rt, id: id, node: rt.Node()}, nil
}

// OpenPortal opens a portal addressed to remote.
func (rt *Runtime) OpenPortal(remote int) (*Portal, error) {
	id := rt.raw.PortalOpen(remote)
	if id < 0 {
		return nil, errs.New("portal.open", errs.CodeFault, "raw portal_open failed")
	}
	if _, err := rt.portals.Register(comm.KindPortal, id, remote, 0, false); err != nil {
		_ = rt.raw.PortalClose(id)
		return nil, err
	}
	return &Portal{rt: rt, id: id, node: remote}, nil
}

// OpenStdPortal opens a "standard output" portal to remote for a
// best-effort diagnostic byte stream (SPEC_FULL.md "Supplemented
// features", grounded on original_source's stdportal.c). It is the same
// portal OpenPortal(remote) opens; no separate reserved port is used.
func (rt *Runtime) OpenStdPortal(remote int) (*Portal, error) {
	return rt.OpenPortal(remote)
}

// ID returns the portal's communicator id.
func (p *Portal) ID() int { return p.id }

func (p *Portal) Unlink() error {
	if err := p.rt.portals.Unregister(comm.KindPortal, p.id, true); err != nil {
		return err
	}
	if ret := p.rt.raw.PortalUnlink(p.id); ret < 0 {
		return errs.New("portal.unlink", errs.CodeBadFd, "raw portal_unlink failed")
	}
	return nil
}

func (p *Portal) Close() error {
	if err := p.rt.portals.Unregister(comm.KindPortal, p.id, false); err != nil {
		return err
	}
	if ret := p.rt.raw.PortalClose(p.id); ret < 0 {
		return errs.New("portal.close", errs.CodeBadFd, "raw portal_close failed")
	}
	return nil
}

// Allow authorizes remote as the portal's next sender (spec.md §4.3
// "allow"); "allow twice without an intervening read" fails with EBUSY
// (spec.md §8).
func (p *Portal) Allow(remote int) error {
	if ret := p.rt.raw.PortalAllow(p.id, remote); ret < 0 {
		return errs.New("portal.allow", errs.CodeFault, "raw portal_allow failed")
	}
	return p.rt.portals.Allow(comm.KindPortal, p.id, remote, 0)
}

// Write sends buf, chunking it into PortalChunkSize pieces and driving
// the flow engine once per chunk (spec.md §4.3 "read and write chunk
// buffers of size > KMESSAGE_DATA_SIZE"). The full byte count is returned
// to the caller; partial transfers are never visible (spec.md §7).
func (p *Portal) Write(ctx context.Context, buf []byte) (int, error) {
	if len(buf) <= 0 {
		return 0, errs.New("portal.write", errs.CodeInvalid, "size out of range")
	}

	total := 0
	for off := 0; off < len(buf); off += PortalChunkSize {
		end := off + PortalChunkSize
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[off:end]

		start := time.Now()
		f, err := p.rt.engine.Config(ctx, flow.KindPortalWrite, p.id, chunk)
		if err != nil {
			return total, err
		}
		n, err := p.rt.engine.Wait(ctx, f)
		p.rt.observer.ObserveWrite(uint64(len(chunk)), uint64(time.Since(start).Nanoseconds()), err == nil)
		if err != nil {
			return total, err
		}
		total += int(n)
		p.rt.portals.RecordWrite(comm.KindPortal, p.id, int(n))
	}
	return total, nil
}

// Read receives buf's full length, chunking into PortalChunkSize pieces
// and re-issuing Allow between consecutive chunks (spec.md §4.3
// "re-issuing allow between consecutive portal reads").
func (p *Portal) Read(ctx context.Context, buf []byte, remote int) (int, error) {
	if len(buf) <= 0 {
		return 0, errs.New("portal.read", errs.CodeInvalid, "size out of range")
	}

	total := 0
	for off := 0; off < len(buf); off += PortalChunkSize {
		end := off + PortalChunkSize
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[off:end]

		if err := p.Allow(remote); err != nil {
			return total, err
		}

		start := time.Now()
		f, err := p.rt.engine.Config(ctx, flow.KindPortalRead, p.id, chunk)
		if err != nil {
			return total, err
		}
		n, err := p.rt.engine.Wait(ctx, f)
		p.rt.observer.ObserveRead(uint64(len(chunk)), uint64(time.Since(start).Nanoseconds()), err == nil)
		if err != nil {
			return total, err
		}
		p.rt.portals.ConsumeAllow(comm.KindPortal, p.id)
		total += int(n)
		p.rt.portals.RecordRead(comm.KindPortal, p.id, int(n))
	}
	return total, nil
}

// Ioctl mirrors Mailbox.Ioctl for a portal's counters.
func (p *Portal) Ioctl(req IoctlRequest) (int64, error) {
	snap, err := p.rt.portals.Snapshot(comm.KindPortal, p.id)
	if err != nil {
		return 0, err
	}
	switch req {
	case GetVolume:
		return snap.Counters.Volume, nil
	case GetLatency:
		return snap.Counters.Latency, nil
	case GetNCreates:
		return snap.Counters.NCreates, nil
	case GetNUnlinks:
		return snap.Counters.NUnlinks, nil
	case GetNOpens:
		return snap.Counters.NOpens, nil
	case GetNCloses:
		return snap.Counters.NCloses, nil
	case GetNReads:
		return snap.Counters.NReads, nil
	case GetNWrites:
		return snap.Counters.NWrites, nil
	default:
		return 0, errs.New("portal.ioctl", errs.CodeNotSupp, "unsupported request")
	}
}
