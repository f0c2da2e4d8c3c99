package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedModel(t *testing.T) {
	m := NewBuilder().
		State("idle", Initial()).
		State("running").
		Transition("idle", "running", OnEvent("start")).
		Build()

	diags := Validate(m)
	require.Empty(t, diags)
}

func TestValidateCollectsAllDiagnostics(t *testing.T) {
	m := NewFsmModel()
	m.AddState(&State{Name: "a"})
	m.AddState(&State{Name: "b"})
	// No initial state, and a transition referencing an unknown state:
	// both should be reported in a single Validate call.
	m.AddTransition(Transition{SourceName: "a", TargetName: "missing"})

	diags := Validate(m)

	var kinds []DiagnosticKind
	for _, d := range diags {
		kinds = append(kinds, d.Kind)
	}
	require.Contains(t, kinds, DiagNoInitialState)
	require.Contains(t, kinds, DiagDanglingTransition)
}

func TestValidateDetectsMultipleInitialStates(t *testing.T) {
	m := NewFsmModel()
	m.AddState(&State{Name: "a", IsInitial: true})
	m.AddState(&State{Name: "b", IsInitial: true})

	diags := Validate(m)
	found := false
	for _, d := range diags {
		if d.Kind == DiagMultipleInitialStates {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateRecursesIntoSubMachines(t *testing.T) {
	sub := NewFsmModel()
	sub.AddState(&State{Name: "charging"})
	sub.InitialStateName = "missing"

	m := NewFsmModel()
	m.AddState(&State{Name: "running", IsInitial: true, SubMachine: sub})

	diags := Validate(m)
	found := false
	for _, d := range diags {
		if d.Kind == DiagDanglingTransition && d.Path == "running" {
			found = true
		}
	}
	require.True(t, found, "dangling initial_state_name inside a sub-machine must be reported at its qualified path")
}

func TestValidateRejectsUnknownActionLanguage(t *testing.T) {
	m := NewFsmModel()
	m.AddState(&State{
		Name:        "a",
		IsInitial:   true,
		EntryAction: &CodeBlock{Language: "python", Source: "x = 1"},
	})

	diags := Validate(m)
	found := false
	for _, d := range diags {
		if d.Kind == DiagUnknownActionLanguage {
			found = true
		}
	}
	require.True(t, found)
}
