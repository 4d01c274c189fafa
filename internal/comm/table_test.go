package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanvix-go/ikc/internal/errs"
)

func TestRegisterAndUnregisterRoundTrip(t *testing.T) {
	tb := NewTable()

	_, err := tb.Register(KindMailbox, 1, 0, 9, true)
	require.NoError(t, err)

	require.NoError(t, tb.Unregister(KindMailbox, 1, true))

	err = tb.Unregister(KindMailbox, 1, true)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeBadFd))
}

// TestUnlinkOfOpenedIDIsBadFd covers spec.md §8's boundary behavior: unlink()
// only tears down a create()'d communicator. Calling it on an open()'d one
// is a handle-kind mismatch, not a valid teardown, and must fail EBADF
// rather than silently succeeding and counting as a close.
func TestUnlinkOfOpenedIDIsBadFd(t *testing.T) {
	tb := NewTable()
	s, err := tb.Register(KindMailbox, 2, 0, 9, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Counters.NOpens)

	err = tb.Unregister(KindMailbox, 2, true)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeBadFd))

	// close() is the correct teardown for an opened id and still succeeds.
	require.NoError(t, tb.Unregister(KindMailbox, 2, false))
}

func TestAllowTwiceWithoutReadIsBusy(t *testing.T) {
	tb := NewTable()
	_, err := tb.Register(KindPortal, 3, 0, 0, true)
	require.NoError(t, err)

	require.NoError(t, tb.Allow(KindPortal, 3, 1, 0))

	err = tb.Allow(KindPortal, 3, 1, 0)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeBusy))

	tb.ConsumeAllow(KindPortal, 3)
	require.NoError(t, tb.Allow(KindPortal, 3, 1, 0))
}

func TestCountersMonotonicallyNonDecreasing(t *testing.T) {
	tb := NewTable()
	_, err := tb.Register(KindMailbox, 4, 0, 0, true)
	require.NoError(t, err)

	tb.RecordWrite(KindMailbox, 4, 120)
	tb.RecordRead(KindMailbox, 4, 120)
	tb.RecordRead(KindMailbox, 4, 30)

	snap, err := tb.Snapshot(KindMailbox, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters.NWrites)
	assert.Equal(t, int64(2), snap.Counters.NReads)
	assert.Equal(t, int64(270), snap.Counters.Volume)
}

func TestRegisterCollisionIsBusy(t *testing.T) {
	tb := NewTable()
	_, err := tb.Register(KindMailbox, 5, 0, 0, true)
	require.NoError(t, err)

	_, err = tb.Register(KindMailbox, 5, 0, 0, true)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeBusy))
}
