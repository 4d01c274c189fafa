package ikc

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMailboxPingPong exercises spec.md §8 scenario 1 end to end.
func TestMailboxPingPong(t *testing.T) {
	rt, err := NewRuntime(DefaultParams(), nil)
	require.NoError(t, err)
	defer rt.Close()

	inbox, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	defer inbox.Unlink()

	outbox, err := rt.OpenMailbox(rt.Node(), 0)
	require.NoError(t, err)
	defer outbox.Close()

	msg := bytes.Repeat([]byte{0x5A}, 120)
	ctx := context.Background()
	n, err := outbox.Write(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, 120, n)

	buf := make([]byte, 120)
	n, err = inbox.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	assert.Equal(t, msg, buf)

	volume, err := inbox.Ioctl(GetVolume)
	require.NoError(t, err)
	assert.EqualValues(t, 120, volume)

	nwrites, err := outbox.Ioctl(GetNWrites)
	require.NoError(t, err)
	assert.EqualValues(t, 1, nwrites)
}

func TestMailboxWriteRejectsOutOfRangeSize(t *testing.T) {
	rt, err := NewRuntime(DefaultParams(), nil)
	require.NoError(t, err)
	defer rt.Close()

	m, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	defer m.Unlink()

	_, err = m.Write(context.Background(), nil)
	assert.True(t, IsCode(err, CodeInvalid))

	_, err = m.Write(context.Background(), make([]byte, MessageSizeMax+1))
	assert.True(t, IsCode(err, CodeInvalid))
}

func TestMailboxDoubleUnlinkIsBadFd(t *testing.T) {
	rt, err := NewRuntime(DefaultParams(), nil)
	require.NoError(t, err)
	defer rt.Close()

	m, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	require.NoError(t, m.Unlink())
	assert.True(t, IsCode(m.Unlink(), CodeBadFd))
}

func TestMailboxSetRemoteViaIoctl(t *testing.T) {
	rt, err := NewRuntime(DefaultParams(), nil)
	require.NoError(t, err)
	defer rt.Close()

	m, err := rt.CreateMailbox(0)
	require.NoError(t, err)
	defer m.Unlink()

	_, err = m.Ioctl(SetRemote, rt.Node(), 0)
	assert.NoError(t, err)

	_, err = m.Ioctl(SetRemote, rt.Node())
	assert.True(t, IsCode(err, CodeInvalid))
}
