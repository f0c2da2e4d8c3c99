package fsm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// activeLevel is one entry of the engine's active chain: the state
// currently active within one level of nesting (the root model, or one
// SubMachine reached by drilling into a superstate).
type activeLevel struct {
	model *FsmModel
	state string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEvaluator overrides the default GojaEvaluator.
func WithEvaluator(eval Evaluator) Option {
	return func(e *Engine) { e.eval = eval }
}

// WithHaltOnActionError controls whether an entry/during/exit/
// transition action error halts the engine (the default) or is logged
// and swallowed so simulation continues. Guard errors never halt the
// engine under either setting.
func WithHaltOnActionError(halt bool) Option {
	return func(e *Engine) { e.haltOnActionError = halt }
}

// WithPendingQueueCapacity bounds the InjectEvent backlog. Default 64.
func WithPendingQueueCapacity(capacity int) Option {
	return func(e *Engine) { e.pendingCapacity = capacity }
}

// WithVariableOverrides seeds the variable store with externally
// supplied initial values, taking precedence over IR defaults.
func WithVariableOverrides(overrides map[string]Value) Option {
	return func(e *Engine) { e.overrides = overrides }
}

// WithLogger overrides the default logrus.StandardLogger().
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine drives one FsmModel tick by tick. It owns the variable store,
// the active hierarchical chain, and the event bus; it is not safe for
// concurrent use from more than one goroutine, matching the
// single-threaded simulation loop the model describes.
type Engine struct {
	model *FsmModel
	eval  Evaluator
	bus   *EventBus
	log   *logrus.Logger

	haltOnActionError bool
	pendingCapacity   int
	overrides         map[string]Value

	vars        *VariableStore
	initialVars *VariableStore
	chain       []activeLevel

	tick     uint64
	stopTick *uint64
	halted   bool
	haltErr  error

	pendingEvents []string

	pausedAtBreakpoint  bool
	pendingLogLines     []string
	pendingTransitioned bool
	pendingTransition   *TransitionTaken
}

// NewEngine validates model and, if valid, returns a ready-to-step
// Engine positioned at the root's recursively-resolved initial state.
func NewEngine(model *FsmModel, opts ...Option) (*Engine, error) {
	if diags := Validate(model); len(diags) > 0 {
		return nil, &ModelInvalidError{Diagnostics: diags}
	}

	e := &Engine{
		model:             model,
		eval:              NewGojaEvaluator(),
		bus:               NewEventBus(),
		log:               logrus.StandardLogger(),
		haltOnActionError: true,
		pendingCapacity:   64,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.vars = NewVariableStore(model.VariablesDeclared, e.overrides)
	e.initialVars = e.vars.Clone()
	e.chain = buildChain(model, model.InitialStateName)
	return e, nil
}

// buildChain descends from (model, stateName) through every nested
// SubMachine's own initial state, producing the full active chain.
func buildChain(model *FsmModel, stateName string) []activeLevel {
	chain := []activeLevel{{model: model, state: stateName}}
	st := model.States[stateName]
	for st != nil && st.SubMachine != nil {
		sub := st.SubMachine
		chain = append(chain, activeLevel{model: sub, state: sub.InitialStateName})
		st = sub.States[sub.InitialStateName]
	}
	return chain
}

// Subscribe registers a bus subscriber; see EventBus.Subscribe.
func (e *Engine) Subscribe(capacity int) <-chan Event { return e.bus.Subscribe(capacity) }

// Unsubscribe removes a previously-registered subscriber.
func (e *Engine) Unsubscribe(ch <-chan Event) { e.bus.Unsubscribe(ch) }

// IsHalted reports whether the engine has stopped processing ticks.
func (e *Engine) IsHalted() bool { return e.halted }

// IsPausedAtBreakpoint reports whether Step returned early awaiting
// ContinueFromBreakpoint.
func (e *Engine) IsPausedAtBreakpoint() bool { return e.pausedAtBreakpoint }

// SetStopTick arranges for the engine to halt once the tick counter
// reaches tick, after that tick's bus events are published.
func (e *Engine) SetStopTick(tick uint64) { e.stopTick = &tick }

// GetVariables returns an independent snapshot of the variable store.
func (e *Engine) GetVariables() map[string]Value { return e.vars.Snapshot() }

// SetVariable writes a variable, enforcing its declared type if any.
func (e *Engine) SetVariable(name string, v Value) error {
	return e.vars.SetChecked(name, v)
}

// GetCurrentStateName returns the dotted path of the active chain, e.g.
// "Running.Charging" for a superstate "Running" whose sub-machine is
// currently in "Charging".
func (e *Engine) GetCurrentStateName() string {
	parts := make([]string, len(e.chain))
	for i, lvl := range e.chain {
		parts[i] = lvl.state
	}
	return strings.Join(parts, ".")
}

// GetPossibleEventsFromCurrent returns the distinct named events that
// could fire a transition from some level of the current active chain,
// in chain order (innermost first), duplicates removed.
func (e *Engine) GetPossibleEventsFromCurrent() []string {
	seen := map[string]bool{}
	var names []string
	for i := len(e.chain) - 1; i >= 0; i-- {
		lvl := e.chain[i]
		for _, t := range lvl.model.Transitions {
			if t.SourceName != lvl.state || t.Event == nil {
				continue
			}
			if !seen[*t.Event] {
				seen[*t.Event] = true
				names = append(names, *t.Event)
			}
		}
	}
	return names
}

// InjectEvent enqueues a named event for a future tick; Step consumes
// at most one pending event per call, after any explicitly-passed
// external event.
func (e *Engine) InjectEvent(name string) error {
	if len(e.pendingEvents) >= e.pendingCapacity {
		return &QueueFullError{Capacity: e.pendingCapacity}
	}
	e.pendingEvents = append(e.pendingEvents, name)
	return nil
}

// Reset returns the engine to its freshly-constructed state: tick 0,
// initial active chain, initial variable values, no pending events.
func (e *Engine) Reset() {
	e.vars = e.initialVars.Clone()
	e.chain = buildChain(e.model, e.model.InitialStateName)
	e.tick = 0
	e.halted = false
	e.haltErr = nil
	e.pendingEvents = nil
	e.pausedAtBreakpoint = false
	e.pendingLogLines = nil
	e.pendingTransitioned = false
	e.pendingTransition = nil
}

// Step advances the simulation by one tick. externalEvent, if non-nil,
// takes priority over the pending-event queue for this tick's event
// resolution. Step returns HaltedError if called after the engine has
// halted, and returns without error (but with IsPausedAtBreakpoint
// true) if a breakpoint interrupts the tick; call ContinueFromBreakpoint
// to finish it.
func (e *Engine) Step(externalEvent *string) error {
	if e.halted {
		return &HaltedError{}
	}
	if e.pausedAtBreakpoint {
		// Per spec: a Step call while paused at a breakpoint (without an
		// intervening ContinueFromBreakpoint) is a no-op, not an error —
		// it returns an empty log and leaves the tick counter untouched.
		return nil
	}

	event := externalEvent
	if event == nil && len(e.pendingEvents) > 0 {
		ev := e.pendingEvents[0]
		e.pendingEvents = e.pendingEvents[1:]
		event = &ev
	}

	var logLines []string
	transitioned, transitionEvt, breakpointHit, err := e.fireEligibleTransition(event, &logLines)
	if err != nil {
		return e.haltOnError(err)
	}

	if breakpointHit {
		e.pausedAtBreakpoint = true
		e.pendingLogLines = logLines
		e.pendingTransitioned = transitioned
		e.pendingTransition = transitionEvt
		if transitionEvt != nil {
			e.bus.Publish(*transitionEvt)
		}
		return nil
	}

	if transitionEvt != nil {
		e.bus.Publish(*transitionEvt)
	}
	return e.finishTick(logLines)
}

// ContinueFromBreakpoint resumes a tick interrupted by a breakpoint,
// running that tick's during-actions, incrementing the tick counter,
// and publishing its bus events.
func (e *Engine) ContinueFromBreakpoint() error {
	if !e.pausedAtBreakpoint {
		return fmt.Errorf("fsm: engine is not paused at a breakpoint")
	}
	e.pausedAtBreakpoint = false
	logLines := e.pendingLogLines
	e.pendingLogLines = nil
	e.pendingTransitioned = false
	e.pendingTransition = nil
	return e.finishTick(logLines)
}

// finishTick runs during-actions root-to-leaf, increments the tick
// counter, and publishes LogLines/TickProcessed (and EngineHalted if
// the configured stop tick was just reached), in that order.
func (e *Engine) finishTick(logLines []string) error {
	for _, lvl := range e.chain {
		st := lvl.model.States[lvl.state]
		if st == nil || st.DuringAction == nil {
			continue
		}
		if err := e.runAction(st.DuringAction, &logLines); err != nil {
			return e.haltOnError(err)
		}
	}

	e.tick++

	if len(logLines) > 0 {
		e.bus.Publish(LogLines{Tick: e.tick, Lines: logLines})
	}
	e.bus.Publish(TickProcessed{Tick: e.tick, Variables: e.vars.Snapshot()})

	if e.stopTick != nil && e.tick >= *e.stopTick {
		e.halted = true
		e.bus.Publish(EngineHalted{Reason: HaltStopTickReached})
	}
	return nil
}

// fireEligibleTransition searches the active chain innermost-first for
// the first transition (in IR declaration order) whose source matches
// that level's active state, whose event matches event, and whose
// guard (if any) evaluates true. If found, it runs the exit/transition/
// entry action sequence and rebuilds the active chain. It reports
// whether a breakpoint (BreakpointOnFire, or BreakpointOnEntry on any
// newly-entered state) should pause the tick before during-actions run.
func (e *Engine) fireEligibleTransition(event *string, logLines *[]string) (transitioned bool, evt *TransitionTaken, breakpointHit bool, err error) {
	for i := len(e.chain) - 1; i >= 0; i-- {
		lvl := e.chain[i]
		for _, t := range lvl.model.Transitions {
			if t.SourceName != lvl.state || !matchesEvent(t, event) {
				continue
			}
			ok, gerr := e.evalGuard(t.Condition)
			if gerr != nil {
				// Per spec: a guard EvalError makes the transition
				// ineligible and is logged as a warning; it never
				// halts the engine, regardless of haltOnActionError.
				e.log.WithError(gerr).Warn("fsm: guard evaluation error, treating transition as ineligible")
				*logLines = append(*logLines, fmt.Sprintf("warning: guard error on %s->%s: %v", t.SourceName, t.TargetName, gerr))
				continue
			}
			if !ok {
				continue
			}

			if bpErr := e.applyTransition(i, t, logLines); bpErr.err != nil {
				return false, nil, false, bpErr.err
			} else {
				tt := &TransitionTaken{Tick: e.tick + 1, Source: t.SourceName, Target: t.TargetName, Event: t.Event}
				return true, tt, bpErr.breakpoint, nil
			}
		}
	}
	return false, nil, false, nil
}

type applyResult struct {
	breakpoint bool
	err        error
}

// applyTransition performs the exit/action/entry sequence for a
// transition found eligible at chain level idx, then rebuilds the
// active chain from idx downward through the target's own initial
// sub-states.
func (e *Engine) applyTransition(idx int, t Transition, logLines *[]string) applyResult {
	for i := len(e.chain) - 1; i >= idx; i-- {
		st := e.chain[i].model.States[e.chain[i].state]
		if st != nil && st.ExitAction != nil {
			if err := e.runAction(st.ExitAction, logLines); err != nil {
				return applyResult{err: err}
			}
		}
	}

	if t.Action != nil {
		if err := e.runAction(t.Action, logLines); err != nil {
			return applyResult{err: err}
		}
	}

	targetModel := e.chain[idx].model
	newChain := buildChain(targetModel, t.TargetName)
	e.chain = append(e.chain[:idx], newChain...)

	breakpoint := t.BreakpointOnFire
	for i := idx; i < len(e.chain); i++ {
		st := e.chain[i].model.States[e.chain[i].state]
		if st == nil {
			continue
		}
		if st.EntryAction != nil {
			if err := e.runAction(st.EntryAction, logLines); err != nil {
				return applyResult{err: err}
			}
		}
		if st.BreakpointOnEntry {
			breakpoint = true
		}
	}

	return applyResult{breakpoint: breakpoint}
}

func matchesEvent(t Transition, event *string) bool {
	if t.Event == nil {
		return true
	}
	return event != nil && *t.Event == *event
}

// evalGuard evaluates a transition's condition, treating a nil
// condition as an unconditional match.
func (e *Engine) evalGuard(cond *CodeBlock) (bool, error) {
	if cond == nil {
		return true, nil
	}
	ok, err := e.eval.EvalGuard(*cond, e.vars)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// runAction executes cb via the evaluator, appending any log lines it
// produced to logLines regardless of outcome.
func (e *Engine) runAction(cb *CodeBlock, logLines *[]string) error {
	if cb == nil {
		return nil
	}
	lines, err := e.eval.ExecAction(*cb, e.vars)
	*logLines = append(*logLines, lines...)
	if err != nil {
		var evalErr *EvalError
		if errors.As(err, &evalErr) {
			return &ActionError{Cause: evalErr}
		}
		return err
	}
	return nil
}

// haltOnError applies the configured halt-on-action-error policy: halt
// and publish EngineHalted when enabled (the default), or log and
// swallow the error so simulation continues when disabled.
func (e *Engine) haltOnError(err error) error {
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		return err
	}
	if e.haltOnActionError {
		e.halted = true
		e.haltErr = actionErr
		e.bus.Publish(EngineHalted{Reason: HaltActionError})
		return actionErr
	}
	e.log.WithError(actionErr).Warn("fsm: action error, continuing (halt_on_action_error disabled)")
	return nil
}
