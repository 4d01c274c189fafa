package ikc

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks performance and operational statistics for the runtime,
// the IKC analogue of the teacher's device-level Metrics: atomic counters
// an Observer can be built on top of without taking a lock on the hot
// dispatcher path.
type Metrics struct {
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	// FlowRetries counts RecordRetry calls. The flow engine's config and
	// wait task bodies do not call it, so their ActionAgain retries are
	// not counted here.
	FlowRetries atomic.Uint64

	// FlowPoolInUseTotal/FlowPoolSamples/FlowPoolMaxInUse track a running
	// average and maximum of in-use flow slots, fed by RecordFlowPoolDepth
	// the same way the teacher's queue runner samples queue depth.
	FlowPoolInUseTotal atomic.Uint64
	FlowPoolSamples    atomic.Uint64
	FlowPoolMaxInUse   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a completed mailbox/portal read.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a completed mailbox/portal write.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRetry records one transient-error retry of a flow task body.
func (m *Metrics) RecordRetry() {
	m.FlowRetries.Add(1)
}

// RecordFlowPoolDepth records a sample of in-use flow slots.
func (m *Metrics) RecordFlowPoolDepth(inUse uint32) {
	m.FlowPoolInUseTotal.Add(uint64(inUse))
	m.FlowPoolSamples.Add(1)
	for {
		cur := m.FlowPoolMaxInUse.Load()
		if inUse <= cur {
			break
		}
		if m.FlowPoolMaxInUse.CompareAndSwap(cur, inUse) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
}

// Stop marks the runtime as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of Metrics, safe to hand to
// callers without exposing the atomics directly.
type MetricsSnapshot struct {
	ReadOps, WriteOps               uint64
	ReadBytes, WriteBytes           uint64
	ReadErrors, WriteErrors         uint64
	FlowRetries                     uint64
	AvgFlowPoolInUse                float64
	MaxFlowPoolInUse                uint32
	AvgLatencyNs                    uint64
	UptimeNs                        uint64
	TotalOps, TotalBytes            uint64
	ErrorRate                       float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:          m.ReadOps.Load(),
		WriteOps:         m.WriteOps.Load(),
		ReadBytes:        m.ReadBytes.Load(),
		WriteBytes:       m.WriteBytes.Load(),
		ReadErrors:       m.ReadErrors.Load(),
		WriteErrors:      m.WriteErrors.Load(),
		FlowRetries:      m.FlowRetries.Load(),
		MaxFlowPoolInUse: m.FlowPoolMaxInUse.Load(),
	}
	snap.TotalOps = snap.ReadOps + snap.WriteOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	if samples := m.FlowPoolSamples.Load(); samples > 0 {
		snap.AvgFlowPoolInUse = float64(m.FlowPoolInUseTotal.Load()) / float64(samples)
	}

	if opCount := m.OpCount.Load(); opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}
	return snap
}

// Observer is a pluggable sink for runtime events, the IKC analogue of the
// teacher's Observer interface.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveRetry()
	ObserveFlowPoolDepth(inUse uint32)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveRetry()                     {}
func (NoOpObserver) ObserveFlowPoolDepth(uint32)       {}

// MetricsObserver implements Observer using a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRetry() { o.metrics.RecordRetry() }

func (o *MetricsObserver) ObserveFlowPoolDepth(inUse uint32) {
	o.metrics.RecordFlowPoolDepth(inUse)
}

// PrometheusObserver adapts Observer to github.com/prometheus/client_golang,
// exporting the observed read/write operations, bytes, errors, retries,
// flow-pool depth and latency as process-wide Prometheus series
// (SPEC_FULL.md DOMAIN STACK). The per-communicator ioctl(GET_N*)
// create/open/unlink/close counts are not exported.
type PrometheusObserver struct {
	readOps      prometheus.Counter
	writeOps     prometheus.Counter
	readBytes    prometheus.Counter
	writeBytes   prometheus.Counter
	readErrors   prometheus.Counter
	writeErrors  prometheus.Counter
	retries      prometheus.Counter
	flowPoolGauge prometheus.Gauge
	latency      prometheus.Histogram
}

// NewPrometheusObserver creates and registers an Observer with reg. Pass
// prometheus.DefaultRegisterer to export on the default /metrics handler.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		readOps:  prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_read_ops_total", Help: "Total mailbox/portal reads."}),
		writeOps: prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_write_ops_total", Help: "Total mailbox/portal writes."}),
		readBytes:  prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_read_bytes_total", Help: "Total bytes read."}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_write_bytes_total", Help: "Total bytes written."}),
		readErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_read_errors_total", Help: "Total failed reads."}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_write_errors_total", Help: "Total failed writes."}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{Name: "ikc_flow_retries_total", Help: "Total AGAIN retries across all flows."}),
		flowPoolGauge: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ikc_flow_pool_in_use", Help: "In-use flow slots, last sample."}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ikc_op_latency_seconds",
			Help:    "Mailbox/portal operation latency.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(o.readOps, o.writeOps, o.readBytes, o.writeBytes,
			o.readErrors, o.writeErrors, o.retries, o.flowPoolGauge, o.latency)
	}
	return o
}

func (o *PrometheusObserver) ObserveRead(bytes, latencyNs uint64, success bool) {
	o.readOps.Inc()
	o.latency.Observe(float64(latencyNs) / 1e9)
	if success {
		o.readBytes.Add(float64(bytes))
	} else {
		o.readErrors.Inc()
	}
}

func (o *PrometheusObserver) ObserveWrite(bytes, latencyNs uint64, success bool) {
	o.writeOps.Inc()
	o.latency.Observe(float64(latencyNs) / 1e9)
	if success {
		o.writeBytes.Add(float64(bytes))
	} else {
		o.writeErrors.Inc()
	}
}

func (o *PrometheusObserver) ObserveRetry() { o.retries.Inc() }

func (o *PrometheusObserver) ObserveFlowPoolDepth(inUse uint32) {
	o.flowPoolGauge.Set(float64(inUse))
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*PrometheusObserver)(nil)
	_ Observer = NoOpObserver{}
)
