package fsm

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// knownLanguages lists the action/guard languages an evaluator backend
// is registered for. "javascript" is the only one GojaEvaluator
// accepts; validation flags anything else so a model author learns
// about an unsupported language before simulation rather than at
// eval time.
var knownLanguages = map[string]bool{
	"javascript": true,
	"":           true, // no code block supplied
}

// Validate checks an FsmModel's structural invariants, recursing into
// every sub_machine, and returns every diagnostic found rather than
// stopping at the first (spec requirement: validation is total).
func Validate(model *FsmModel) []Diagnostic {
	var diags []Diagnostic
	validateLevel(model, "", &diags, map[*FsmModel]bool{})
	return diags
}

func validateLevel(model *FsmModel, path string, diags *[]Diagnostic, onStack map[*FsmModel]bool) {
	if model == nil {
		return
	}
	if onStack[model] {
		*diags = append(*diags, Diagnostic{
			Kind:    DiagCyclicSubMachine,
			Message: "sub-machine reference cycle detected",
			Path:    path,
		})
		return
	}
	onStack[model] = true
	defer delete(onStack, model)

	initialCount := 0
	seenNames := map[string]bool{}
	for name, st := range model.States {
		qualified := qualify(path, name)
		if name == "" || !identifierPattern.MatchString(name) {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagEmptyIdentifier,
				Message: fmt.Sprintf("state name %q is not a valid identifier", name),
				Path:    qualified,
			})
		}
		if st.Name != name {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagDuplicateState,
				Message: fmt.Sprintf("state stored under key %q has mismatched Name %q", name, st.Name),
				Path:    qualified,
			})
		}
		if seenNames[name] {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagDuplicateState,
				Message: fmt.Sprintf("duplicate state name %q", name),
				Path:    qualified,
			})
		}
		seenNames[name] = true

		if st.IsInitial {
			initialCount++
		}

		if st.EntryAction != nil && !knownLanguages[st.EntryAction.Language] {
			*diags = append(*diags, unknownLanguageDiag(qualified, "entry", st.EntryAction.Language))
		}
		if st.DuringAction != nil && !knownLanguages[st.DuringAction.Language] {
			*diags = append(*diags, unknownLanguageDiag(qualified, "during", st.DuringAction.Language))
		}
		if st.ExitAction != nil && !knownLanguages[st.ExitAction.Language] {
			*diags = append(*diags, unknownLanguageDiag(qualified, "exit", st.ExitAction.Language))
		}

		if st.SubMachine != nil {
			validateLevel(st.SubMachine, qualified, diags, onStack)
		}
	}

	if initialCount == 0 {
		*diags = append(*diags, Diagnostic{
			Kind:    DiagNoInitialState,
			Message: "no initial state defined at this level",
			Path:    path,
		})
	} else if initialCount > 1 {
		*diags = append(*diags, Diagnostic{
			Kind:    DiagMultipleInitialStates,
			Message: fmt.Sprintf("%d initial states defined at this level, expected at most one", initialCount),
			Path:    path,
		})
	}

	if model.InitialStateName != "" {
		if _, ok := model.States[model.InitialStateName]; !ok {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagDanglingTransition,
				Message: fmt.Sprintf("initial_state_name %q does not reference a state at this level", model.InitialStateName),
				Path:    path,
			})
		}
	}

	for i, t := range model.Transitions {
		if _, ok := model.States[t.SourceName]; !ok {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagDanglingTransition,
				Message: fmt.Sprintf("transition[%d] source %q is not a declared state", i, t.SourceName),
				Path:    path,
			})
		}
		if _, ok := model.States[t.TargetName]; !ok {
			*diags = append(*diags, Diagnostic{
				Kind:    DiagDanglingTransition,
				Message: fmt.Sprintf("transition[%d] target %q is not a declared state", i, t.TargetName),
				Path:    path,
			})
		}
		if t.Condition != nil && !knownLanguages[t.Condition.Language] {
			*diags = append(*diags, unknownLanguageDiag(path, fmt.Sprintf("transition[%d] condition", i), t.Condition.Language))
		}
		if t.Action != nil && !knownLanguages[t.Action.Language] {
			*diags = append(*diags, unknownLanguageDiag(path, fmt.Sprintf("transition[%d] action", i), t.Action.Language))
		}
	}
}

func unknownLanguageDiag(path, role, language string) Diagnostic {
	return Diagnostic{
		Kind:    DiagUnknownActionLanguage,
		Message: fmt.Sprintf("%s action uses unknown language %q", role, language),
		Path:    path,
	}
}

func qualify(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
