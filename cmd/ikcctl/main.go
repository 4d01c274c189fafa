// Command ikcctl drives the literal end-to-end scenarios from spec.md §8
// against an in-process kernel.Loopback, the way ublk-mem drives a real
// ublk device against a memory-backed backend.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nanvix-go/ikc"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ikcctl",
	Short: "Exercise the IKC runtime's task scheduler, flow engine and barrier",
}

func init() {
	rootCmd.AddCommand(pingPongCmd, portalChunkCmd, diamondCmd, retryCmd, barrierCmd)
}

var pingPongCmd = &cobra.Command{
	Use:   "ping-pong",
	Short: "Mailbox ping-pong between two nodes (spec.md §8 scenario 1)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := ikc.NewRuntime(ikc.DefaultParams(), nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		m0, err := rt.CreateMailbox(0)
		if err != nil {
			return err
		}
		defer m0.Unlink()
		m1, err := rt.OpenMailbox(rt.Node(), 0)
		if err != nil {
			return err
		}
		defer m1.Close()

		buf := make([]byte, 120)
		for i := range buf {
			buf[i] = 0x5A
		}

		ctx := context.Background()
		if _, err := m1.Write(ctx, buf); err != nil {
			return err
		}
		out := make([]byte, 120)
		n, err := m0.Read(ctx, out)
		if err != nil {
			return err
		}
		volume, _ := m0.Ioctl(ikc.GetVolume)
		fmt.Printf("read %d bytes, GET_VOLUME=%d\n", n, volume)
		return nil
	},
}

var portalChunkCmd = &cobra.Command{
	Use:   "portal-chunk",
	Short: "Portal write/read chunked over a 3000-byte buffer (spec.md §8 scenario 2)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := ikc.NewRuntime(ikc.DefaultParams(), nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		recv, err := rt.CreatePortal()
		if err != nil {
			return err
		}
		defer recv.Unlink()
		send, err := rt.OpenPortal(rt.Node())
		if err != nil {
			return err
		}
		defer send.Close()

		buf := make([]byte, 3000)
		for i := range buf {
			buf[i] = byte(i)
		}

		ctx := context.Background()
		var g errgroup.Group
		g.Go(func() error {
			_, err := send.Write(ctx, buf)
			return err
		})
		g.Go(func() error {
			out := make([]byte, 3000)
			_, err := recv.Read(ctx, out, rt.Node())
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		volume, _ := recv.Ioctl(ikc.GetVolume)
		fmt.Printf("portal transfer complete, GET_VOLUME=%d\n", volume)
		return nil
	},
}

var diamondCmd = &cobra.Command{
	Use:   "diamond",
	Short: "Task diamond A->B, A->C, B->D, C->D (spec.md §8 scenario 3)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched := ikc.NewScheduler(2, nil)
		sched.Start()
		defer sched.Shutdown()

		var mu sync.Mutex
		counter := 1

		multiply := func(prime int) ikc.TaskFunc {
			return func(ctx context.Context, t *ikc.Task) ikc.Action {
				mu.Lock()
				counter *= prime
				mu.Unlock()
				return t.Exit(ikc.ActionSuccess, nil, 0, 0, 0)
			}
		}

		a, b, c, d := ikc.NewTask(), ikc.NewTask(), ikc.NewTask(), ikc.NewTask()
		if err := sched.Create(a, multiply(2), 0); err != nil {
			return err
		}
		if err := sched.Create(b, multiply(3), 0); err != nil {
			return err
		}
		if err := sched.Create(c, multiply(5), 0); err != nil {
			return err
		}
		if err := sched.Create(d, multiply(7), 0); err != nil {
			return err
		}
		for _, e := range []struct{ p, ch *ikc.Task }{{a, b}, {a, c}, {b, d}, {c, d}} {
			if err := sched.Connect(e.p, e.ch, ikc.DepHard, ikc.TriggerDefault); err != nil {
				return err
			}
		}

		if err := sched.Dispatch(a, 0, 0, 0); err != nil {
			return err
		}
		ret, err := sched.Wait(context.Background(), d)
		if err != nil {
			return err
		}
		fmt.Printf("diamond complete: counter=%d wait(d)=%d\n", counter, ret)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Flow config retried on transient EBUSY before succeeding (spec.md §8 scenario 4)",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ikc.NewMockRaw(0)
		raw.ScriptMailboxAwrite(-16, -16) // -EBUSY twice, then the real call

		rt, err := ikc.NewRuntime(ikc.RuntimeParams{Cores: 1, MailboxSlots: 4, PortalSlots: 4, Raw: raw}, nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		m0, err := rt.CreateMailbox(0)
		if err != nil {
			return err
		}
		defer m0.Unlink()
		m1, err := rt.OpenMailbox(rt.Node(), 0)
		if err != nil {
			return err
		}
		defer m1.Close()

		buf := []byte("hello")
		n, err := m1.Write(context.Background(), buf)
		if err != nil {
			return err
		}
		awriteCalls, _, _, _, _, _ := raw.CallCounts()
		fmt.Printf("wrote %d bytes after %d raw awrite attempts\n", n, awriteCalls)
		return nil
	},
}

var barrierCmd = &cobra.Command{
	Use:   "barrier",
	Short: "Barrier of 4 nodes, leader=0 (spec.md §8 scenario 5)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := ikc.NewRuntime(ikc.DefaultParams(), nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		nodes := []int{0, 1, 2, 3}
		var g errgroup.Group
		for _, self := range nodes {
			self := self
			g.Go(func() error {
				b, err := rt.NewBarrier(nodes, self)
				if err != nil {
					return err
				}
				return b.Wait()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Println("all 4 nodes returned from barrier_wait")
		return nil
	},
}
