package fsm

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"
)

// wireModel/wireState/wireTransition mirror FsmModel/State/Transition
// but use plain, serializable fields (string VarType/ValueKind, no
// internal map ordering requirements) so both encoding/json and
// gopkg.in/yaml.v2 can decode an external IR document uniformly. The
// authoring document's states are an ordered list rather than a map,
// so declaration order can still be inspected by tooling that cares.
type wireModel struct {
	States           []wireState      `json:"states" yaml:"states"`
	Transitions      []wireTransition `json:"transitions" yaml:"transitions"`
	InitialStateName string           `json:"initial_state" yaml:"initial_state"`
	Variables        []wireVariable   `json:"variables" yaml:"variables"`
}

type wireState struct {
	Name              string      `json:"name" yaml:"name"`
	Initial           bool        `json:"initial" yaml:"initial"`
	Final             bool        `json:"final" yaml:"final"`
	Entry             *wireCode   `json:"entry" yaml:"entry"`
	During            *wireCode   `json:"during" yaml:"during"`
	Exit              *wireCode   `json:"exit" yaml:"exit"`
	SubMachine        *wireModel  `json:"sub_machine" yaml:"sub_machine"`
	BreakpointOnEntry bool        `json:"breakpoint_on_entry" yaml:"breakpoint_on_entry"`
}

type wireTransition struct {
	Source           string    `json:"source" yaml:"source"`
	Target           string    `json:"target" yaml:"target"`
	Event            *string   `json:"event" yaml:"event"`
	Condition        *wireCode `json:"condition" yaml:"condition"`
	Action           *wireCode `json:"action" yaml:"action"`
	BreakpointOnFire bool      `json:"breakpoint_on_fire" yaml:"breakpoint_on_fire"`
}

type wireCode struct {
	Language string `json:"language" yaml:"language"`
	Source   string `json:"source" yaml:"source"`
}

type wireVariable struct {
	Name    string      `json:"name" yaml:"name"`
	Type    string      `json:"type" yaml:"type"`
	Initial interface{} `json:"initial" yaml:"initial"`
}

// DecodeModelJSON parses an external IR document in JSON form.
func DecodeModelJSON(data []byte) (*FsmModel, error) {
	var w wireModel
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("fsm: decode json ir: %w", err)
	}
	return w.toModel(), nil
}

// DecodeModelYAML parses an external IR document in YAML form.
func DecodeModelYAML(data []byte) (*FsmModel, error) {
	var w wireModel
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("fsm: decode yaml ir: %w", err)
	}
	return w.toModel(), nil
}

func (w *wireModel) toModel() *FsmModel {
	m := NewFsmModel()
	m.InitialStateName = w.InitialStateName

	for _, ws := range w.States {
		s := &State{
			Name:              ws.Name,
			IsInitial:         ws.Initial,
			IsFinal:           ws.Final,
			EntryAction:       ws.Entry.toCodeBlock(),
			DuringAction:      ws.During.toCodeBlock(),
			ExitAction:        ws.Exit.toCodeBlock(),
			BreakpointOnEntry: ws.BreakpointOnEntry,
		}
		if ws.SubMachine != nil {
			s.SubMachine = ws.SubMachine.toModel()
		}
		m.AddState(s)
	}

	for _, wt := range w.Transitions {
		m.AddTransition(Transition{
			SourceName:       wt.Source,
			TargetName:       wt.Target,
			Event:            wt.Event,
			Condition:        wt.Condition.toCodeBlock(),
			Action:           wt.Action.toCodeBlock(),
			BreakpointOnFire: wt.BreakpointOnFire,
		})
	}

	for _, wv := range w.Variables {
		vt := parseVarType(wv.Type)
		var initial *Value
		if wv.Initial != nil {
			v := ValueFromInterface(coerceWireScalar(wv.Initial, vt))
			initial = &v
		}
		m.DeclareVariable(wv.Name, vt, initial)
	}

	return m
}

func (c *wireCode) toCodeBlock() *CodeBlock {
	if c == nil {
		return nil
	}
	return &CodeBlock{Language: c.Language, Source: c.Source}
}

func parseVarType(s string) VarType {
	switch s {
	case "int":
		return VarInt
	case "float":
		return VarFloat
	case "bool":
		return VarBool
	case "string":
		return VarString
	default:
		return VarAny
	}
}

// coerceWireScalar normalizes a decoded JSON/YAML scalar to the Go
// native type ValueFromInterface expects: encoding/json decodes every
// number as float64 and yaml.v2 decodes integral numbers as int, so an
// int-declared variable's initial value is converted to int64.
func coerceWireScalar(x interface{}, t VarType) interface{} {
	if t == VarInt {
		if f, ok := x.(float64); ok {
			return int64(f)
		}
		if i, ok := x.(int); ok {
			return int64(i)
		}
	}
	return x
}
