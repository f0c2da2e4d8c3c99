package fsm

// StatusSnapshot is the JSON-serializable read-only view of an Engine
// at a point in time, used by cmd/hfsmweb to answer status requests
// without exposing any mutating surface over HTTP.
type StatusSnapshot struct {
	CurrentState   string             `json:"current_state"`
	Tick           uint64             `json:"tick"`
	Variables      map[string]float64 `json:"variables"`
	PossibleEvents []string           `json:"possible_events"`
	Halted         bool               `json:"halted"`
	PausedAtBreak  bool               `json:"paused_at_breakpoint"`
}

// Snapshot renders the engine's current state as a StatusSnapshot.
// Non-numeric variables (strings) are omitted from Variables since the
// status endpoint's contract is numeric-series-oriented; use
// GetVariables for the full typed view.
func (e *Engine) Snapshot() StatusSnapshot {
	vars := make(map[string]float64)
	for name, v := range e.vars.Snapshot() {
		if f, ok := v.AsFloat64(); ok {
			vars[name] = f
		}
	}
	return StatusSnapshot{
		CurrentState:   e.GetCurrentStateName(),
		Tick:           e.tick,
		Variables:      vars,
		PossibleEvents: e.GetPossibleEventsFromCurrent(),
		Halted:         e.halted,
		PausedAtBreak:  e.pausedAtBreakpoint,
	}
}
