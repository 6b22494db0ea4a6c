package remotedev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveCommandUpdatesCountsAndHistogram(t *testing.T) {
	m := NewMetrics()
	m.ObserveCommand(1, 5_000, true)
	m.ObserveCommand(1, 50_000, false)

	require.Equal(t, uint64(2), m.CommandCounts[1].Load())
	require.Equal(t, uint64(1), m.CommandErrors[1].Load())
	require.Equal(t, uint64(2), m.OpCount.Load())
	require.Equal(t, uint64(55_000), m.TotalLatencyNs.Load())
	require.Equal(t, uint64(1), m.LatencyHist[1].Load()) // 5us <= 10us
	require.Equal(t, uint64(1), m.LatencyHist[2].Load()) // 50us <= 100us
}

func TestMetrics_ObserveFrameInOutTracksBytes(t *testing.T) {
	m := NewMetrics()
	m.ObserveFrameIn(72)
	m.ObserveFrameOut(128)

	require.Equal(t, uint64(1), m.FramesIn.Load())
	require.Equal(t, uint64(72), m.BytesIn.Load())
	require.Equal(t, uint64(1), m.FramesOut.Load())
	require.Equal(t, uint64(128), m.BytesOut.Load())
}

func TestMetrics_SnapshotComputesAverageAndErrorRate(t *testing.T) {
	m := NewMetrics()
	m.ObserveCommand(2, 10_000, true)
	m.ObserveCommand(2, 30_000, false)

	snap := m.Snapshot()
	require.Equal(t, uint64(20_000), snap.AvgLatencyNs)
	require.Equal(t, 0.5, snap.ErrorRate)
}

func TestMetrics_SnapshotUptimeFreezesAfterStop(t *testing.T) {
	m := NewMetrics()
	m.Stop()
	snap := m.Snapshot()
	require.Equal(t, m.StopTime.Load()-m.StartTime.Load(), snap.UptimeNs)
}

func TestMetrics_CalculatePercentileWithNoSamplesIsZero(t *testing.T) {
	m := NewMetrics()
	require.Equal(t, uint64(0), m.calculatePercentile(50))
}

func TestMetrics_CalculatePercentileFindsBucket(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 10; i++ {
		m.ObserveCommand(3, 500, true) // falls in the 1us bucket
	}
	require.Equal(t, LatencyBuckets[0], m.calculatePercentile(50))
}

func TestNoOpObserver_DiscardsEverything(t *testing.T) {
	var o NoOpObserver
	o.ObserveCommand(0, 0, true)
	o.ObserveFrameIn(10)
	o.ObserveFrameOut(10)
}
