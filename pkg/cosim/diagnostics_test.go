package cosim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerformanceMonitorSnapshot(t *testing.T) {
	m := NewPerformanceMonitor()
	m.Start()
	m.Observe(1.0)
	m.Observe(2.0)

	snap := m.Snapshot()
	require.Equal(t, 2, snap.DataPoints)
	require.Equal(t, 2.0, snap.SimulationTime)
	require.GreaterOrEqual(t, snap.ElapsedTime, time.Duration(0))
}

func TestComputeRunStatisticsAttributesTimeToState(t *testing.T) {
	history := []DataPoint{
		{SimTime: 0, ActiveState: "idle"},
		{SimTime: 1, ActiveState: "idle"},
		{SimTime: 2, ActiveState: "running"},
		{SimTime: 5, ActiveState: "running"},
	}

	stats := ComputeRunStatistics(history)
	require.Equal(t, 5.0, stats.TotalTime)
	require.Equal(t, 4, stats.DataPointCount)
	require.Equal(t, 2, stats.UniqueStates)
	require.Equal(t, 2.0, stats.StateDurations["idle"])
	require.Equal(t, 3.0, stats.StateDurations["running"])
}

func TestComputeRunStatisticsEmptyHistory(t *testing.T) {
	stats := ComputeRunStatistics(nil)
	require.Equal(t, 0, stats.DataPointCount)
	require.NotNil(t, stats.StateDurations)
}
