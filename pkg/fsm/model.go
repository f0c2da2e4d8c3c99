// Package fsm implements the hierarchical finite-state-machine core: a
// validated intermediate representation, a pluggable guard/action
// evaluator, a tick-driven simulation engine, an ordered event bus, and
// a time-indexed variable logger.
package fsm

import "fmt"

// CodeBlock is a fragment of host-language-neutral source attached to a
// state (entry/during/exit) or transition (condition/action). Language
// selects the evaluator backend that interprets Source.
type CodeBlock struct {
	Language string
	Source   string
}

// VarType is a declared variable type, used to type-check SetVariable
// and action-produced writes when the evaluator supports it.
type VarType int

const (
	VarInt VarType = iota
	VarFloat
	VarBool
	VarString
	VarAny
)

func (t VarType) String() string {
	switch t {
	case VarInt:
		return "int"
	case VarFloat:
		return "float"
	case VarBool:
		return "bool"
	case VarString:
		return "string"
	case VarAny:
		return "any"
	default:
		return "unknown"
	}
}

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

// Value is the tagged union backing VariableStore: Int(i64) | Float(f64)
// | Bool(bool) | Str(string) | None.
type Value struct {
	Kind ValueKind
	I    int64
	F    float64
	B    bool
	S    string
}

func NoneValue() Value          { return Value{Kind: KindNone} }
func IntValue(i int64) Value    { return Value{Kind: KindInt, I: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, F: f} }
func BoolValue(b bool) Value    { return Value{Kind: KindBool, B: b} }
func StrValue(s string) Value   { return Value{Kind: KindString, S: s} }

// Matches reports whether the value's kind is compatible with the
// declared type t ("any" matches everything, None always matches).
func (v Value) Matches(t VarType) bool {
	if t == VarAny || v.Kind == KindNone {
		return true
	}
	switch t {
	case VarInt:
		return v.Kind == KindInt
	case VarFloat:
		return v.Kind == KindFloat
	case VarBool:
		return v.Kind == KindBool
	case VarString:
		return v.Kind == KindString
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindString:
		return v.S
	default:
		return "<none>"
	}
}

// AsFloat64 coerces numeric/bool values to float64 for the data logger;
// ok is false for string/none values.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat:
		return v.F, true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Interface converts a Value to its native Go representation, for
// binding into an evaluator runtime.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindInt:
		return v.I
	case KindFloat:
		return v.F
	case KindBool:
		return v.B
	case KindString:
		return v.S
	default:
		return nil
	}
}

// ValueFromInterface converts a native Go value (as produced by an
// evaluator runtime) back into a Value.
func ValueFromInterface(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return NoneValue()
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		// goja exports integer arithmetic results as int64 (handled
		// above); a float64 stays Float even when it holds a whole
		// number, to avoid silently truncating real fractional results.
		return FloatValue(t)
	case bool:
		return BoolValue(t)
	case string:
		return StrValue(t)
	default:
		return StrValue(fmt.Sprintf("%v", t))
	}
}

// VariableDecl is an IR-declared variable, optionally with a default.
type VariableDecl struct {
	Name    string
	Type    VarType
	Initial *Value
}

// State is one node of an FsmModel: a leaf state, or a superstate when
// SubMachine is non-nil.
type State struct {
	Name              string
	IsInitial         bool
	IsFinal           bool
	EntryAction       *CodeBlock
	DuringAction      *CodeBlock
	ExitAction        *CodeBlock
	SubMachine        *FsmModel
	BreakpointOnEntry bool
}

// Transition is one ordered edge of an FsmModel. Event == nil means
// "always eligible when in source".
type Transition struct {
	SourceName       string
	TargetName       string
	Event            *string
	Condition        *CodeBlock
	Action           *CodeBlock
	BreakpointOnFire bool
}

// FsmModel is the validated, language-neutral FSM intermediate
// representation. It is immutable after construction; external code
// builds it via NewFsmModel + AddState/AddTransition or by decoding it
// from JSON/YAML (irio.go), then calls Validate before use.
type FsmModel struct {
	States            map[string]*State
	Transitions       []Transition
	InitialStateName  string
	VariablesDeclared []VariableDecl
}

// NewFsmModel returns an empty model ready for AddState/AddTransition.
func NewFsmModel() *FsmModel {
	return &FsmModel{States: make(map[string]*State)}
}

// AddState registers a state, keyed by its name.
func (m *FsmModel) AddState(s *State) {
	if m.States == nil {
		m.States = make(map[string]*State)
	}
	m.States[s.Name] = s
	if s.IsInitial {
		m.InitialStateName = s.Name
	}
}

// AddTransition appends a transition; order defines tie-break priority.
func (m *FsmModel) AddTransition(t Transition) {
	m.Transitions = append(m.Transitions, t)
}

// DeclareVariable registers a declared variable and its type.
func (m *FsmModel) DeclareVariable(name string, t VarType, initial *Value) {
	m.VariablesDeclared = append(m.VariablesDeclared, VariableDecl{Name: name, Type: t, Initial: initial})
}
