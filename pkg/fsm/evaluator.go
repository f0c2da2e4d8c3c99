package fsm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Evaluator abstracts guard and action evaluation over a CodeBlock so
// the engine is decoupled from any one host-language semantics.
// Implementations are variants keyed by CodeBlock.Language, not
// subclasses of one base type.
type Evaluator interface {
	// EvalGuard evaluates code as a boolean expression against vars.
	// It must not mutate vars.
	EvalGuard(code CodeBlock, vars *VariableStore) (bool, error)
	// ExecAction runs code as a statement sequence against vars,
	// returning human-readable log lines and mutating vars in place.
	ExecAction(code CodeBlock, vars *VariableStore) ([]string, error)
}

// GojaEvaluator evaluates "javascript"-language CodeBlocks in a
// sandboxed embedded ECMAScript runtime (github.com/dop251/goja). Any
// other Language yields EvalError{Kind: Other} rather than a panic —
// the pluggable-backend contract from spec §4.2.
type GojaEvaluator struct{}

// NewGojaEvaluator returns the default evaluator backend.
func NewGojaEvaluator() *GojaEvaluator { return &GojaEvaluator{} }

func (e *GojaEvaluator) EvalGuard(code CodeBlock, vars *VariableStore) (bool, error) {
	if code.Source == "" {
		return true, nil
	}
	if code.Language != "javascript" {
		return false, unsupportedLanguageErr(code)
	}

	rt := goja.New()
	bindVars(rt, vars)

	val, err := rt.RunString(code.Source)
	if err != nil {
		return false, classifyGojaError(code, err)
	}
	return val.ToBoolean(), nil
}

func (e *GojaEvaluator) ExecAction(code CodeBlock, vars *VariableStore) ([]string, error) {
	if code.Source == "" {
		return nil, nil
	}
	if code.Language != "javascript" {
		return nil, unsupportedLanguageErr(code)
	}

	rt := goja.New()
	bindVars(rt, vars)

	var logLines []string
	if err := rt.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		logLines = append(logLines, strings.Join(parts, " "))
		return goja.Undefined()
	}); err != nil {
		return nil, &EvalError{Kind: EvalOther, Source: code.Source, Cause: err}
	}

	if _, err := rt.RunString(code.Source); err != nil {
		return logLines, classifyGojaError(code, err)
	}

	unbindVars(rt, vars)
	return logLines, nil
}

func unsupportedLanguageErr(code CodeBlock) *EvalError {
	return &EvalError{
		Kind:   EvalOther,
		Source: code.Source,
		Cause:  fmt.Errorf("unsupported action language %q", code.Language),
	}
}

// bindVars exposes every tracked variable as a global in rt so
// CodeBlock source can read (and, for actions, write) them directly by
// name.
func bindVars(rt *goja.Runtime, vars *VariableStore) {
	for _, name := range vars.Names() {
		_ = rt.Set(name, vars.Get(name).Interface())
	}
}

// unbindVars reads every tracked variable's global back out of rt
// after an action runs, capturing any mutation the script made.
func unbindVars(rt *goja.Runtime, vars *VariableStore) {
	for _, name := range vars.Names() {
		v := rt.Get(name)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		vars.Set(name, ValueFromInterface(v.Export()))
	}
}

// classifyGojaError maps a goja error into the EvalError kind taxonomy
// (SyntaxError, NameError, TypeError, DivideByZero, Other).
func classifyGojaError(code CodeBlock, err error) *EvalError {
	kind := EvalOther
	msg := err.Error()

	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg = exc.Value().String()
	}

	switch {
	case strings.Contains(msg, "SyntaxError"):
		kind = EvalSyntaxError
	case strings.Contains(msg, "ReferenceError"):
		kind = EvalNameError
	case strings.Contains(msg, "TypeError"):
		kind = EvalTypeError
	case strings.Contains(msg, "division by zero") || strings.Contains(msg, "DivideByZero"):
		kind = EvalDivideByZero
	}

	return &EvalError{Kind: kind, Source: code.Source, Cause: fmt.Errorf("%s", msg)}
}
