package ikc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nanvix-go/ikc/internal/kernel"
)

// TestBarrierFourNodesNoEarlyReturn exercises spec.md §8 scenario 5: a
// barrier of 4 nodes, no node returns before all four have entered, and
// every Wait returns success.
func TestBarrierFourNodesNoEarlyReturn(t *testing.T) {
	lb := kernel.NewLoopback(0)
	nodes := []int{0, 1, 2, 3}

	barriers := make([]*Barrier, len(nodes))
	rt := &Runtime{raw: lb}
	for i, self := range nodes {
		b, err := rt.NewBarrier(nodes, self)
		require.NoError(t, err)
		barriers[i] = b
	}

	const stagger = 20 * time.Millisecond
	returned := make([]time.Duration, len(nodes))

	start := time.Now()
	var g errgroup.Group
	for i, b := range barriers {
		i, b := i, b
		g.Go(func() error {
			time.Sleep(time.Duration(i) * stagger)
			err := b.Wait()
			returned[i] = time.Since(start)
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Every node's Wait must return no earlier than the last node's entry
	// (stagger * (len(nodes)-1)): the barrier cannot let an early entrant
	// through before the last one arrives.
	lastEntry := time.Duration(len(nodes)-1) * stagger
	for i, d := range returned {
		assert.GreaterOrEqualf(t, d, lastEntry-5*time.Millisecond, "node %d returned before the last node entered", i)
	}
}

// TestBarrierTwoNodes covers the minimal barrier size.
func TestBarrierTwoNodes(t *testing.T) {
	lb := kernel.NewLoopback(0)
	nodes := []int{0, 1}
	rt := &Runtime{raw: lb}

	leader, err := rt.NewBarrier(nodes, 0)
	require.NoError(t, err)
	follower, err := rt.NewBarrier(nodes, 1)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(leader.Wait)
	g.Go(follower.Wait)
	assert.NoError(t, g.Wait())
}

// TestBarrierRejectsTooFewNodes checks the <2-node guard.
func TestBarrierRejectsTooFewNodes(t *testing.T) {
	rt := &Runtime{raw: kernel.NewLoopback(0)}
	_, err := rt.NewBarrier([]int{0}, 0)
	assert.Error(t, err)
}
