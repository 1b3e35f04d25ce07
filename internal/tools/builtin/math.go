package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"fable/internal/tools"
)

// MathCalculatorTool performs the four basic arithmetic operations.
func MathCalculatorTool() *tools.Tool {
	return &tools.Tool{
		Name:        "math_calculator",
		Description: "Basic math calculator, supports addition, subtraction, multiplication, and division operations",
		Parameters: tools.ObjectSchema(map[string]any{
			"a":         tools.NumberProperty("The first number"),
			"b":         tools.NumberProperty("The second number"),
			"operation": tools.StringProperty("Operation type: add(+), subtract(-), multiply(*), divide(/)"),
		}, "a", "b", "operation"),
		Handler: mathCalculator,
	}
}

func mathCalculator(_ context.Context, args map[string]any) (any, error) {
	a, okA := toFloat(args["a"])
	b, okB := toFloat(args["b"])
	if !okA || !okB {
		return map[string]any{"error": "operands must be numbers"}, nil
	}
	operation, _ := args["operation"].(string)

	var result float64
	var name string
	switch operation {
	case "add", "+":
		result, name = a+b, "Addition"
	case "subtract", "-":
		result, name = a-b, "Subtraction"
	case "multiply", "*":
		result, name = a*b, "Multiplication"
	case "divide", "/":
		if b == 0 {
			return map[string]any{"error": "Divisor cannot be zero"}, nil
		}
		result, name = a/b, "Division"
	default:
		return map[string]any{
			"error": fmt.Sprintf("Unsupported operation type: %s, supported operations: add(+), subtract(-), multiply(*), divide(/)", operation),
		}, nil
	}

	return map[string]any{
		"operation_result":      result,
		"operation_description": fmt.Sprintf("%v %s %v = %v", a, name, b, result),
	}, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
