package ikc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMockRawRetriesTransientAwriteFailure exercises spec.md §8 scenario 4:
// the flow config raw-call is stubbed to return -EBUSY twice then the real
// result, and the scheduler must re-enqueue config twice before releasing
// the caller with the successful write size.
func TestMockRawRetriesTransientAwriteFailure(t *testing.T) {
	raw := NewMockRaw(0)
	raw.ScriptMailboxAwrite(-16, -16) // -EBUSY, -EBUSY, then the real Loopback call

	rt, err := NewRuntime(RuntimeParams{Cores: 1, MailboxSlots: 4, PortalSlots: 4, Raw: raw}, nil)
	require.NoError(t, err)
	defer rt.Close()

	m0, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	defer m0.Unlink()
	m1, err := rt.OpenMailbox(rt.Node(), 0)
	require.NoError(t, err)
	defer m1.Close()

	buf := []byte("hello")
	n, err := m1.Write(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	awriteCalls, _, _, _, _, _ := raw.CallCounts()
	assert.Equal(t, 3, awriteCalls)
}

// TestMockRawFallsBackToLoopbackWhenUnscripted checks an unscripted call
// still reaches the embedded Loopback instead of looping forever on zero
// values.
func TestMockRawFallsBackToLoopbackWhenUnscripted(t *testing.T) {
	raw := NewMockRaw(0)

	rt, err := NewRuntime(RuntimeParams{Cores: 1, MailboxSlots: 2, PortalSlots: 2, Raw: raw}, nil)
	require.NoError(t, err)
	defer rt.Close()

	m0, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	defer m0.Unlink()
	m1, err := rt.OpenMailbox(rt.Node(), 0)
	require.NoError(t, err)
	defer m1.Close()

	n, err := m1.Write(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	awriteCalls, _, _, _, _, _ := raw.CallCounts()
	assert.Equal(t, 1, awriteCalls)
}
