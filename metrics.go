package remotedev

import (
	"sync/atomic"
	"time"

	"github.com/nqminds/remote-dev-plane/internal/ifaces"
)

var (
	_ ifaces.Observer = (*Metrics)(nil)
	_ ifaces.Observer = NoOpObserver{}
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// log-spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks per-link operational statistics: frames in/out, bytes,
// per-command counts and errors, and a command-latency histogram.
type Metrics struct {
	FramesIn  atomic.Uint64
	FramesOut atomic.Uint64
	BytesIn   atomic.Uint64
	BytesOut  atomic.Uint64

	CommandCounts [32]atomic.Uint64 // indexed by wire.Command
	CommandErrors [32]atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyHist    [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveCommand implements ifaces.Observer.
func (m *Metrics) ObserveCommand(cmd uint32, latencyNs uint64, success bool) {
	if int(cmd) < len(m.CommandCounts) {
		m.CommandCounts[cmd].Add(1)
		if !success {
			m.CommandErrors[cmd].Add(1)
		}
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHist[i].Add(1)
			break
		}
	}
}

// ObserveFrameIn implements ifaces.Observer.
func (m *Metrics) ObserveFrameIn(bytes uint64) {
	m.FramesIn.Add(1)
	m.BytesIn.Add(bytes)
}

// ObserveFrameOut implements ifaces.Observer.
func (m *Metrics) ObserveFrameOut(bytes uint64) {
	m.FramesOut.Add(1)
	m.BytesOut.Add(bytes)
}

// Stop marks the link as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time derived view of Metrics.
type Snapshot struct {
	FramesIn, FramesOut   uint64
	BytesIn, BytesOut     uint64
	AvgLatencyNs          uint64
	P50LatencyNs          uint64
	P99LatencyNs          uint64
	UptimeNs              int64
	ErrorRate             float64
}

// Snapshot computes a Snapshot from the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	opCount := m.OpCount.Load()
	var avg uint64
	if opCount > 0 {
		avg = m.TotalLatencyNs.Load() / opCount
	}

	var uptime int64
	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		uptime = stop - start
	} else {
		uptime = time.Now().UnixNano() - start
	}

	var totalErrors uint64
	for i := range m.CommandErrors {
		totalErrors += m.CommandErrors[i].Load()
	}
	var errorRate float64
	if opCount > 0 {
		errorRate = float64(totalErrors) / float64(opCount)
	}

	return Snapshot{
		FramesIn:     m.FramesIn.Load(),
		FramesOut:    m.FramesOut.Load(),
		BytesIn:      m.BytesIn.Load(),
		BytesOut:     m.BytesOut.Load(),
		AvgLatencyNs: avg,
		P50LatencyNs: m.calculatePercentile(50),
		P99LatencyNs: m.calculatePercentile(99),
		UptimeNs:     uptime,
		ErrorRate:    errorRate,
	}
}

// calculatePercentile estimates a latency percentile by walking the
// histogram buckets until the cumulative count crosses the target rank.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.OpCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * percentile / 100.0)
	var cumulative uint64
	for i, bucket := range m.LatencyHist {
		cumulative += bucket.Load()
		if cumulative >= target {
			return LatencyBuckets[i]
		}
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// NoOpObserver discards every event; used when no Metrics is wired in.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCommand(cmd uint32, latencyNs uint64, success bool) {}
func (NoOpObserver) ObserveFrameIn(bytes uint64)                              {}
func (NoOpObserver) ObserveFrameOut(bytes uint64)                             {}
