package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVariableStoreDefaultsAndOverrides(t *testing.T) {
	initial := IntValue(0)
	decls := []VariableDecl{{Name: "count", Type: VarInt, Initial: &initial}}
	vs := NewVariableStore(decls, map[string]Value{"count": IntValue(7)})

	require.Equal(t, IntValue(7), vs.Get("count"))
	require.Equal(t, NoneValue(), vs.Get("undeclared"))
}

func TestVariableStoreSetCheckedRejectsMismatch(t *testing.T) {
	decls := []VariableDecl{{Name: "count", Type: VarInt}}
	vs := NewVariableStore(decls, nil)

	err := vs.SetChecked("count", StrValue("nope"))
	require.Error(t, err)

	var mismatch *VarTypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "count", mismatch.Name)
}

func TestVariableStoreCloneIsIndependent(t *testing.T) {
	decls := []VariableDecl{{Name: "count", Type: VarInt}}
	vs := NewVariableStore(decls, nil)
	vs.Set("count", IntValue(1))

	clone := vs.Clone()
	clone.Set("count", IntValue(99))

	require.Equal(t, IntValue(1), vs.Get("count"))
	require.Equal(t, IntValue(99), clone.Get("count"))
}

func TestVariableStoreSnapshotIsACopy(t *testing.T) {
	vs := NewVariableStore(nil, map[string]Value{"x": IntValue(1)})
	snap := vs.Snapshot()
	vs.Set("x", IntValue(2))

	require.Equal(t, IntValue(1), snap["x"])
	require.Equal(t, IntValue(2), vs.Get("x"))
}
