package js

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExpressionWithVariables(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 2, 1)

	res, err := runtime.Evaluate("nrOfCompletedInstances >= 2", map[string]any{
		"nrOfCompletedInstances": 2,
	})

	require.NoError(t, err)
	assert.Equal(t, true, res)
}

func TestEvaluateReturnsArrays(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 2, 1)

	res, err := runtime.Evaluate("items.concat(['Toe'])", map[string]any{
		"items": []any{"Tic", "Tac"},
	})

	require.NoError(t, err)
	assert.Equal(t, []any{"Tic", "Tac", "Toe"}, res)
}

func TestEvaluateDoesNotLeakVariablesBetweenCalls(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 1, 1)

	_, err := runtime.Evaluate("a", map[string]any{"a": 1})
	require.NoError(t, err)

	_, err = runtime.Evaluate("a", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateSkipsNamesThatAreNotIdentifiers(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 1, 1)

	res, err := runtime.Evaluate("x + 1", map[string]any{"x": 1, "not valid": 2, "class": 3})

	require.NoError(t, err)
	assert.EqualValues(t, 2, res)
}

func TestRunScript(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 1, 0)

	res, err := runtime.RunScript("var x = 40; x + 2")

	require.NoError(t, err)
	assert.EqualValues(t, 42, res)
}

func TestSyntaxErrorIsReported(t *testing.T) {
	runtime := NewJsRuntime(t.Context(), 1, 0)

	_, err := runtime.Evaluate("1 +", nil)

	assert.Error(t, err)
}
