package fsm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sample is one time-indexed observation of a variable.
type Sample struct {
	Tick  uint64
	Value float64
}

// DataLogger subscribes to an EventBus and accumulates a per-variable
// time series from each TickProcessed event, for later export or
// inspection (dashboards, CSV, plotting). mu guards series because the
// background subscriber goroutine appends to it while callers on other
// goroutines (e.g. an HTTP status handler) may read it concurrently.
type DataLogger struct {
	bus    *EventBus
	sub    <-chan Event
	mu     sync.RWMutex
	series map[string][]Sample
	done   chan struct{}
}

// NewDataLogger creates a logger bound to bus but does not yet
// subscribe; call Start to begin recording.
func NewDataLogger(bus *EventBus) *DataLogger {
	return &DataLogger{bus: bus, series: make(map[string][]Sample)}
}

// Start clears any previously recorded history, subscribes to the
// bus, and begins appending samples in a background goroutine. Call
// Stop to unsubscribe and drain cleanly.
func (l *DataLogger) Start() {
	l.Clear()
	l.sub = l.bus.Subscribe(256)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		for ev := range l.sub {
			tp, ok := ev.(TickProcessed)
			if !ok {
				continue
			}
			l.mu.Lock()
			for name, v := range tp.Variables {
				f, ok := v.AsFloat64()
				if !ok {
					continue
				}
				l.series[name] = append(l.series[name], Sample{Tick: tp.Tick, Value: f})
			}
			l.mu.Unlock()
		}
	}()
}

// Stop unsubscribes from the bus and waits for the background
// goroutine to drain any in-flight events.
func (l *DataLogger) Stop() {
	if l.sub == nil {
		return
	}
	l.bus.Unsubscribe(l.sub)
	<-l.done
}

// Series returns a copy of the recorded samples for one variable, in
// tick order.
func (l *DataLogger) Series(name string) []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.series[name]
	out := make([]Sample, len(src))
	copy(out, src)
	return out
}

// Clear discards every recorded sample without unsubscribing.
func (l *DataLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.series = make(map[string][]Sample)
}

// VariableNames returns every variable name with at least one
// recorded sample, sorted for deterministic output.
func (l *DataLogger) VariableNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.series))
	for name := range l.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportCSV renders the recorded series as a wide CSV: one "tick"
// column plus one column per variable, rows ordered by tick. Ticks at
// which a variable produced no numeric sample are left blank, matching
// the irregular-sampling tolerance original_source's run exporter used.
func (l *DataLogger) ExportCSV() string {
	names := l.VariableNames()
	l.mu.RLock()
	defer l.mu.RUnlock()
	byTick := map[uint64]map[string]float64{}
	var ticks []uint64
	for _, name := range names {
		for _, s := range l.series[name] {
			row, ok := byTick[s.Tick]
			if !ok {
				row = map[string]float64{}
				byTick[s.Tick] = row
				ticks = append(ticks, s.Tick)
			}
			row[name] = s.Value
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	var b strings.Builder
	b.WriteString("tick")
	for _, name := range names {
		b.WriteString(",")
		b.WriteString(name)
	}
	b.WriteString("\n")

	for _, tick := range ticks {
		b.WriteString(fmt.Sprintf("%d", tick))
		row := byTick[tick]
		for _, name := range names {
			b.WriteString(",")
			if v, ok := row[name]; ok {
				b.WriteString(fmt.Sprintf("%g", v))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
