package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMathCalculator(t *testing.T) {
	tool := MathCalculatorTool()

	for _, tc := range []struct {
		operation string
		want      float64
	}{
		{"add", 7},
		{"+", 7},
		{"subtract", 3},
		{"multiply", 10},
		{"/", 2.5},
	} {
		result, err := tool.Handler(context.Background(), map[string]any{
			"a": 5.0, "b": 2.0, "operation": tc.operation,
		})
		require.NoError(t, err)
		payload := result.(map[string]any)
		assert.Equal(t, tc.want, payload["operation_result"], tc.operation)
	}
}

func TestMathCalculatorDivideByZero(t *testing.T) {
	tool := MathCalculatorTool()
	result, err := tool.Handler(context.Background(), map[string]any{
		"a": 1.0, "b": 0.0, "operation": "divide",
	})
	require.NoError(t, err)
	payload := result.(map[string]any)
	assert.Contains(t, payload["error"], "zero")
}

func TestMathCalculatorUnknownOperation(t *testing.T) {
	tool := MathCalculatorTool()
	result, err := tool.Handler(context.Background(), map[string]any{
		"a": 1.0, "b": 2.0, "operation": "pow",
	})
	require.NoError(t, err)
	payload := result.(map[string]any)
	assert.Contains(t, payload["error"], "Unsupported operation")
}

func TestCurrentTime(t *testing.T) {
	tool := CurrentTimeTool()
	result, err := tool.Handler(context.Background(), map[string]any{})
	require.NoError(t, err)
	payload := result.(map[string]any)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, payload["current_time"])
}
