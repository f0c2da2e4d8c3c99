package cosim

import (
	"runtime"
	"sync"
	"time"
)

// DataPoint is one sample of co-simulation progress, analogous to the
// original SimulationData record.
type DataPoint struct {
	SimTime     float64
	ActiveState string
	Tick        int
	ObservedAt  time.Time
}

// Metrics is a point-in-time read of the performance monitor, the Go
// counterpart of MatlabPerformanceMonitor.get_metrics.
type Metrics struct {
	ElapsedTime       time.Duration
	DataPoints        int
	DataRatePerSecond float64
	SimulationTime    float64
	CurrentAllocMB    float64
}

// PerformanceMonitor tracks elapsed wall time, sample count/rate, and
// process memory usage across a co-simulation run. psutil's
// memory/cpu sampling has no single Go stdlib equivalent; runtime's
// own MemStats is used instead for the memory figure, which is the
// only one a Go process can read about itself without an external
// dependency.
type PerformanceMonitor struct {
	mu        sync.Mutex
	startedAt time.Time
	points    int
	maxSimT   float64
}

// NewPerformanceMonitor returns a monitor ready for Start.
func NewPerformanceMonitor() *PerformanceMonitor { return &PerformanceMonitor{} }

// Start resets all counters and begins timing.
func (m *PerformanceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedAt = time.Now()
	m.points = 0
	m.maxSimT = 0
}

// Observe records one data point having been collected.
func (m *PerformanceMonitor) Observe(simTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points++
	if simTime > m.maxSimT {
		m.maxSimT = simTime
	}
}

// Snapshot returns the current metrics.
func (m *PerformanceMonitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Duration(0)
	rate := 0.0
	if !m.startedAt.IsZero() {
		elapsed = time.Since(m.startedAt)
		if elapsed > 0 {
			rate = float64(m.points) / elapsed.Seconds()
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Metrics{
		ElapsedTime:       elapsed,
		DataPoints:        m.points,
		DataRatePerSecond: rate,
		SimulationTime:    m.maxSimT,
		CurrentAllocMB:    float64(ms.Alloc) / (1024 * 1024),
	}
}

// RunStatistics summarizes a completed run's history, the Go
// counterpart of SimulationDataLogger.get_statistics: per-state time
// spent, sampling rate, and point count.
type RunStatistics struct {
	TotalTime            float64
	DataPointCount       int
	UniqueStates         int
	StateDurations       map[string]float64
	AverageSamplingRate  float64
}

// ComputeRunStatistics derives RunStatistics from a recorded history,
// attributing the time between consecutive samples to whichever state
// was active at the start of that interval.
func ComputeRunStatistics(history []DataPoint) RunStatistics {
	if len(history) == 0 {
		return RunStatistics{StateDurations: map[string]float64{}}
	}

	durations := map[string]float64{}
	currentState := history[0].ActiveState
	stateStart := history[0].SimTime
	uniqueStates := map[string]bool{history[0].ActiveState: true}

	for _, dp := range history[1:] {
		uniqueStates[dp.ActiveState] = true
		if dp.ActiveState != currentState {
			durations[currentState] += dp.SimTime - stateStart
			currentState = dp.ActiveState
			stateStart = dp.SimTime
		}
	}
	last := history[len(history)-1]
	durations[currentState] += last.SimTime - stateStart

	total := last.SimTime - history[0].SimTime
	rate := 0.0
	if total > 0 {
		rate = float64(len(history)) / total
	}

	return RunStatistics{
		TotalTime:           total,
		DataPointCount:       len(history),
		UniqueStates:         len(uniqueStates),
		StateDurations:       durations,
		AverageSamplingRate: rate,
	}
}
