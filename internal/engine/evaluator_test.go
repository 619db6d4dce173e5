package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEvaluator_PassthroughForPlainString(t *testing.T) {
	ev := NewExprEvaluator()
	out, err := ev.Evaluate("just a string", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "just a string", out)
}

func TestExprEvaluator_FullExpressionYieldsNativeType(t *testing.T) {
	ev := NewExprEvaluator()
	out, err := ev.Evaluate("${1 + 2}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestExprEvaluator_VarPlaceholderYieldsNativeType(t *testing.T) {
	ev := NewExprEvaluator()
	context := map[string]any{"input": map[string]any{"user": map[string]any{"name": "ada"}}}
	out, err := ev.Evaluate("{{input.user.name}}", context)
	require.NoError(t, err)
	assert.Equal(t, "ada", out)
}

func TestExprEvaluator_MissingPathResolvesToNil(t *testing.T) {
	ev := NewExprEvaluator()
	out, err := ev.Evaluate("{{input.does.not.exist}}", map[string]any{"input": map[string]any{}})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExprEvaluator_MixedTextRendersAsString(t *testing.T) {
	ev := NewExprEvaluator()
	context := map[string]any{"input": map[string]any{"name": "ada"}}
	out, err := ev.Evaluate("hello {{input.name}}, total is ${2 * 3}", context)
	require.NoError(t, err)
	assert.Equal(t, "hello ada, total is 6", out)
}

func TestExprEvaluator_InvalidExpressionResolvesToNilNotError(t *testing.T) {
	ev := NewExprEvaluator()
	out, err := ev.Evaluate("${this is not valid expr (((}", map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExprEvaluator_RecursesIntoMapsAndSlices(t *testing.T) {
	ev := NewExprEvaluator()
	context := map[string]any{"x": 5}
	value := map[string]any{
		"scalar": "${x * 2}",
		"list":   []any{"${x}", "plain"},
	}
	out, err := ev.Evaluate(value, context)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, m["scalar"])
	list, ok := m["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, 5, list[0])
	assert.Equal(t, "plain", list[1])
}
