package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueMatches(t *testing.T) {
	require.True(t, IntValue(3).Matches(VarInt))
	require.False(t, IntValue(3).Matches(VarFloat))
	require.True(t, NoneValue().Matches(VarInt), "None must satisfy any declared type")
	require.True(t, StrValue("x").Matches(VarAny))
}

func TestValueAsFloat64(t *testing.T) {
	f, ok := IntValue(2).AsFloat64()
	require.True(t, ok)
	require.Equal(t, 2.0, f)

	f, ok = BoolValue(true).AsFloat64()
	require.True(t, ok)
	require.Equal(t, 1.0, f)

	_, ok = StrValue("x").AsFloat64()
	require.False(t, ok)
}

func TestValueFromInterfaceRoundTrip(t *testing.T) {
	require.Equal(t, IntValue(5), ValueFromInterface(int64(5)))
	require.Equal(t, FloatValue(2.5), ValueFromInterface(2.5))
	require.Equal(t, BoolValue(true), ValueFromInterface(true))
	require.Equal(t, StrValue("hi"), ValueFromInterface("hi"))
	require.Equal(t, NoneValue(), ValueFromInterface(nil))
}

func TestFsmModelAddState(t *testing.T) {
	m := NewFsmModel()
	m.AddState(&State{Name: "idle", IsInitial: true})
	m.AddState(&State{Name: "running"})

	require.Equal(t, "idle", m.InitialStateName)
	require.Len(t, m.States, 2)
}
