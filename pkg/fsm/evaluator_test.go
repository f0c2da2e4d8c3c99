package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGojaEvaluatorEvalGuard(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore([]VariableDecl{{Name: "count", Type: VarInt}}, map[string]Value{"count": IntValue(5)})

	ok, err := eval.EvalGuard(CodeBlock{Language: "javascript", Source: "count > 3"}, vs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.EvalGuard(CodeBlock{Language: "javascript", Source: "count > 10"}, vs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGojaEvaluatorEvalGuardEmptySourceIsUnconditional(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore(nil, nil)

	ok, err := eval.EvalGuard(CodeBlock{}, vs)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGojaEvaluatorExecActionMutatesStore(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore([]VariableDecl{{Name: "count", Type: VarInt}}, map[string]Value{"count": IntValue(1)})

	lines, err := eval.ExecAction(CodeBlock{Language: "javascript", Source: "count = count + 1; log('bumped', count);"}, vs)
	require.NoError(t, err)
	require.Equal(t, IntValue(2), vs.Get("count"))
	require.Equal(t, []string{"bumped 2"}, lines)
}

func TestGojaEvaluatorClassifiesSyntaxError(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore(nil, nil)

	_, err := eval.EvalGuard(CodeBlock{Language: "javascript", Source: "this is not )( js"}, vs)
	require.Error(t, err)

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.Equal(t, EvalSyntaxError, evalErr.Kind)
}

func TestGojaEvaluatorClassifiesReferenceError(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore(nil, nil)

	_, err := eval.EvalGuard(CodeBlock{Language: "javascript", Source: "undeclaredThing > 1"}, vs)
	require.Error(t, err)

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.Equal(t, EvalNameError, evalErr.Kind)
}

func TestGojaEvaluatorRejectsUnsupportedLanguage(t *testing.T) {
	eval := NewGojaEvaluator()
	vs := NewVariableStore(nil, nil)

	_, err := eval.EvalGuard(CodeBlock{Language: "python", Source: "True"}, vs)
	require.Error(t, err)

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.Equal(t, EvalOther, evalErr.Kind)
}
