package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func toggleModel() *FsmModel {
	return NewBuilder().
		State("off", Initial()).
		State("on").
		Transition("off", "on", OnEvent("flip")).
		Transition("on", "off", OnEvent("flip")).
		Build()
}

func TestEngineTogglesOnEvent(t *testing.T) {
	model := toggleModel()
	e, err := NewEngine(model)
	require.NoError(t, err)
	require.Equal(t, "off", e.GetCurrentStateName())

	flip := "flip"
	require.NoError(t, e.Step(&flip))
	require.Equal(t, "on", e.GetCurrentStateName())
	require.NoError(t, e.Step(&flip))
	require.Equal(t, "off", e.GetCurrentStateName())
}

func TestEngineStepWithNoMatchingEventIsANoop(t *testing.T) {
	e, err := NewEngine(toggleModel())
	require.NoError(t, err)

	other := "unrelated"
	require.NoError(t, e.Step(&other))
	require.Equal(t, "off", e.GetCurrentStateName())
}

func TestEngineGuardedTransitionWaitsForCondition(t *testing.T) {
	zero := IntValue(0)
	model := NewBuilder().
		State("waiting", Initial()).
		State("ready").
		Transition("waiting", "ready", OnEvent("check"), Guard("javascript", "count >= 3")).
		Variable("count", VarInt, &zero).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	check := "check"
	require.NoError(t, e.Step(&check))
	require.Equal(t, "waiting", e.GetCurrentStateName())

	require.NoError(t, e.SetVariable("count", IntValue(3)))
	require.NoError(t, e.Step(&check))
	require.Equal(t, "ready", e.GetCurrentStateName())
}

func TestEngineTransitionActionRunsBetweenExitAndEntry(t *testing.T) {
	var order []string
	model := NewBuilder().
		State("a", Initial(), Exit("javascript", "log('exit-a')")).
		State("b", Entry("javascript", "log('entry-b')")).
		Transition("a", "b", OnEvent("go"), Action("javascript", "log('action')")).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	sub := e.Subscribe(8)
	go_ := "go"
	require.NoError(t, e.Step(&go_))

	for i := 0; i < 2; i++ {
		ev := <-sub
		if ll, ok := ev.(LogLines); ok {
			order = ll.Lines
		}
	}
	require.Equal(t, []string{"exit-a", "action", "entry-b"}, order)
}

func TestEngineHierarchicalExitOrderIsInnermostFirst(t *testing.T) {
	sub := NewBuilder().
		State("charging", Initial(), Exit("javascript", "log('exit-charging')")).
		Build()

	model := NewBuilder().
		State("running", Initial(), SubMachine(sub), Exit("javascript", "log('exit-running')")).
		State("stopped").
		Transition("running", "stopped", OnEvent("halt")).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)
	require.Equal(t, "running.charging", e.GetCurrentStateName())

	sub2 := e.Subscribe(8)
	halt := "halt"
	require.NoError(t, e.Step(&halt))

	var lines []string
	for i := 0; i < 2; i++ {
		if ll, ok := (<-sub2).(LogLines); ok {
			lines = ll.Lines
		}
	}
	require.Equal(t, []string{"exit-charging", "exit-running"}, lines)
	require.Equal(t, "stopped", e.GetCurrentStateName())
}

func TestEngineHaltsOnActionErrorByDefault(t *testing.T) {
	model := NewBuilder().
		State("a", Initial(), Exit("javascript", "this is )( invalid")).
		State("b").
		Transition("a", "b", OnEvent("go")).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	sub := e.Subscribe(8)
	go_ := "go"
	err = e.Step(&go_)
	require.Error(t, err)
	require.True(t, e.IsHalted())

	halted := false
drain:
	for {
		select {
		case ev := <-sub:
			if _, ok := ev.(EngineHalted); ok {
				halted = true
			}
		default:
			break drain
		}
	}
	require.True(t, halted)
}

func TestEngineContinuesPastActionErrorWhenConfigured(t *testing.T) {
	model := NewBuilder().
		State("a", Initial(), Exit("javascript", "this is )( invalid")).
		State("b").
		Transition("a", "b", OnEvent("go")).
		Build()

	e, err := NewEngine(model, WithHaltOnActionError(false))
	require.NoError(t, err)

	go_ := "go"
	require.NoError(t, e.Step(&go_))
	require.False(t, e.IsHalted())
}

func TestEngineBreakpointOnEntryPausesBeforeDuringActions(t *testing.T) {
	model := NewBuilder().
		State("a", Initial()).
		State("b", Breakpoint(), During("javascript", "log('during-b')")).
		Transition("a", "b", OnEvent("go")).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	go_ := "go"
	require.NoError(t, e.Step(&go_))
	require.True(t, e.IsPausedAtBreakpoint())
	require.Equal(t, uint64(0), e.Snapshot().Tick)

	require.NoError(t, e.ContinueFromBreakpoint())
	require.False(t, e.IsPausedAtBreakpoint())
	require.Equal(t, uint64(1), e.Snapshot().Tick)
}

func TestEngineStepWhilePausedAtBreakpointIsANoop(t *testing.T) {
	model := NewBuilder().
		State("a", Initial()).
		State("b", Breakpoint()).
		Transition("a", "b", OnEvent("go")).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	go_ := "go"
	require.NoError(t, e.Step(&go_))
	require.True(t, e.IsPausedAtBreakpoint())
	require.Equal(t, uint64(0), e.Snapshot().Tick)

	require.NoError(t, e.Step(nil))
	require.True(t, e.IsPausedAtBreakpoint())
	require.Equal(t, uint64(0), e.Snapshot().Tick)
	require.Equal(t, "b", e.GetCurrentStateName())
}

func TestEngineInjectEventQueueFull(t *testing.T) {
	e, err := NewEngine(toggleModel(), WithPendingQueueCapacity(1))
	require.NoError(t, err)

	require.NoError(t, e.InjectEvent("flip"))
	err = e.InjectEvent("flip")
	require.Error(t, err)

	var qf *QueueFullError
	require.ErrorAs(t, err, &qf)
}

func TestEngineStopTickHalts(t *testing.T) {
	e, err := NewEngine(toggleModel())
	require.NoError(t, err)
	e.SetStopTick(2)

	sub := e.Subscribe(8)
	require.NoError(t, e.Step(nil))
	require.False(t, e.IsHalted())
	require.NoError(t, e.Step(nil))
	require.True(t, e.IsHalted())

	haltSeen := false
	for i := 0; i < 4; i++ {
		select {
		case ev := <-sub:
			if _, ok := ev.(EngineHalted); ok {
				haltSeen = true
			}
		default:
		}
	}
	require.True(t, haltSeen)
}

func TestEngineResetRestoresInitialVariablesAndChain(t *testing.T) {
	zero := IntValue(0)
	model := NewBuilder().
		State("a", Initial()).
		State("b").
		Transition("a", "b", OnEvent("go"), Action("javascript", "count = count + 1")).
		Variable("count", VarInt, &zero).
		Build()

	e, err := NewEngine(model)
	require.NoError(t, err)

	go_ := "go"
	require.NoError(t, e.Step(&go_))
	require.Equal(t, "b", e.GetCurrentStateName())
	require.Equal(t, IntValue(1), e.GetVariables()["count"])

	e.Reset()
	require.Equal(t, "a", e.GetCurrentStateName())
	require.Equal(t, IntValue(0), e.GetVariables()["count"])
	require.Equal(t, uint64(0), e.Snapshot().Tick)
}

func TestEngineRejectsInvalidModel(t *testing.T) {
	m := NewFsmModel()
	m.AddState(&State{Name: "lonely"})

	_, err := NewEngine(m)
	require.Error(t, err)

	var invalid *ModelInvalidError
	require.ErrorAs(t, err, &invalid)
}
