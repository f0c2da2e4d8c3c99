package fsm

import "fmt"

// DiagnosticKind classifies a model validation finding.
type DiagnosticKind int

const (
	DiagDuplicateState DiagnosticKind = iota
	DiagNoInitialState
	DiagMultipleInitialStates
	DiagDanglingTransition
	DiagEmptyIdentifier
	DiagCyclicSubMachine
	DiagUnknownActionLanguage
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagDuplicateState:
		return "DuplicateState"
	case DiagNoInitialState:
		return "NoInitialState"
	case DiagMultipleInitialStates:
		return "MultipleInitialStates"
	case DiagDanglingTransition:
		return "DanglingTransition"
	case DiagEmptyIdentifier:
		return "EmptyIdentifier"
	case DiagCyclicSubMachine:
		return "CyclicSubMachine"
	case DiagUnknownActionLanguage:
		return "UnknownActionLanguage"
	default:
		return "Unknown"
	}
}

// Diagnostic is one validation finding. Path names the offending
// state/transition using a dotted hierarchical name so findings inside
// nested sub-machines remain locatable.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
	Path    string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s (%s)", d.Kind, d.Message, d.Path)
}

// ModelInvalidError wraps the full set of diagnostics from a failed
// Validate call.
type ModelInvalidError struct {
	Diagnostics []Diagnostic
}

func (e *ModelInvalidError) Error() string {
	return fmt.Sprintf("fsm: model invalid: %d diagnostic(s), first: %s", len(e.Diagnostics), e.Diagnostics[0])
}

// EvalErrorKind classifies a failure raised by an Evaluator.
type EvalErrorKind int

const (
	EvalSyntaxError EvalErrorKind = iota
	EvalNameError
	EvalTypeError
	EvalDivideByZero
	EvalOther
)

func (k EvalErrorKind) String() string {
	switch k {
	case EvalSyntaxError:
		return "SyntaxError"
	case EvalNameError:
		return "NameError"
	case EvalTypeError:
		return "TypeError"
	case EvalDivideByZero:
		return "DivideByZero"
	case EvalOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// EvalError is raised by an Evaluator's EvalGuard/ExecAction.
type EvalError struct {
	Kind     EvalErrorKind
	Source   string
	Location string
	Cause    error
}

func (e *EvalError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("fsm: eval %s at %s: %v", e.Kind, e.Location, e.Cause)
	}
	return fmt.Sprintf("fsm: eval %s: %v", e.Kind, e.Cause)
}

func (e *EvalError) Unwrap() error { return e.Cause }

// ActionError wraps an EvalError raised by an entry/during/exit/
// transition action. When halt_on_action_error is enabled at engine
// construction it halts the engine and is returned from Step;
// otherwise the engine logs it and continues.
type ActionError struct {
	Cause *EvalError
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("fsm: action error: %v", e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// QueueFullError is returned by InjectEvent when the pending-event
// queue is at capacity.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("fsm: pending event queue full (capacity %d)", e.Capacity)
}

// HaltedError is returned by operations attempted after the engine has
// halted.
type HaltedError struct{}

func (e *HaltedError) Error() string { return "fsm: engine halted" }

// VarTypeMismatchError is returned by SetVariable when the value's kind
// is incompatible with the variable's declared type.
type VarTypeMismatchError struct {
	Name     string
	Declared VarType
	Got      ValueKind
}

func (e *VarTypeMismatchError) Error() string {
	return fmt.Sprintf("fsm: variable %q declared %s, got incompatible value kind %d", e.Name, e.Declared, e.Got)
}
