package ikc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuntimeAppliesDefaults(t *testing.T) {
	rt, err := NewRuntime(RuntimeParams{}, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 1, rt.Scheduler().NumCores())
	assert.NotNil(t, rt.Logger())
	assert.NotNil(t, rt.Metrics())
}

func TestRuntimeSamplesFlowPoolDepth(t *testing.T) {
	obs := NewMetricsObserver(NewMetrics())
	rt, err := NewRuntime(RuntimeParams{Cores: 1, MailboxSlots: 2, PortalSlots: 2}, &Options{Observer: obs})
	require.NoError(t, err)
	defer rt.Close()

	// The sampler is a periodic task; it runs without any mailbox/portal
	// traffic, so InUseCount is always 0 here — this just checks the
	// runtime wires Observer through without a panic across a Close.
	snap := obs.metrics.Snapshot()
	assert.GreaterOrEqual(t, snap.MaxFlowPoolInUse, uint32(0))
}

func TestRuntimeCloseIsIdempotentWithNoTraffic(t *testing.T) {
	rt, err := NewRuntime(DefaultParams(), nil)
	require.NoError(t, err)
	rt.Close()
	rt.Close()
}
