package ikc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshotInitialState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.TotalBytes)
	assert.Zero(t, snap.ErrorRate)
}

func TestMetricsRecordReadWrite(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(2048, 2_000_000, true)
	m.RecordRead(512, 500_000, false)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.ReadOps)
	assert.EqualValues(t, 1, snap.WriteOps)
	assert.EqualValues(t, 1024, snap.ReadBytes)
	assert.EqualValues(t, 2048, snap.WriteBytes)
	assert.EqualValues(t, 1, snap.ReadErrors)
	assert.EqualValues(t, 0, snap.WriteErrors)
	assert.InDelta(t, 100.0/3.0, snap.ErrorRate, 0.1)
}

func TestMetricsFlowPoolDepth(t *testing.T) {
	m := NewMetrics()
	m.RecordFlowPoolDepth(3)
	m.RecordFlowPoolDepth(7)
	m.RecordFlowPoolDepth(5)

	snap := m.Snapshot()
	assert.EqualValues(t, 7, snap.MaxFlowPoolInUse)
	assert.InDelta(t, 5.0, snap.AvgFlowPoolInUse, 0.1)
}

func TestMetricsObserverDelegates(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveRead(100, 1000, true)
	obs.ObserveWrite(200, 2000, true)
	obs.ObserveRetry()
	obs.ObserveFlowPoolDepth(2)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.ReadOps)
	assert.EqualValues(t, 1, snap.WriteOps)
	assert.EqualValues(t, 1, snap.FlowRetries)
	assert.EqualValues(t, 2, snap.MaxFlowPoolInUse)
}

func TestNoOpObserverIsSafeToCall(t *testing.T) {
	var o NoOpObserver
	o.ObserveRead(1, 1, true)
	o.ObserveWrite(1, 1, false)
	o.ObserveRetry()
	o.ObserveFlowPoolDepth(1)
}
