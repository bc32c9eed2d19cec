package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/ahrav/go-council/internal/domain"
)

var errNotFinite = errors.New("division by zero or overflow")

type calculatorArgs struct {
	Expression string `yaml:"expression" validate:"required,max=1000"`
}

// evaluate computes a numeric expression. Only arithmetic and the builtin
// math functions are available; the expression sees no variables.
func evaluate(expression string) (string, error) {
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.Function("pow", pow),
	)
	if err != nil {
		return "", err
	}
	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return "", err
	}
	return formatResult(out)
}

func pow(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(params))
	}
	base, err := toFloat(params[0])
	if err != nil {
		return nil, err
	}
	exp, err := toFloat(params[1])
	if err != nil {
		return nil, err
	}
	return math.Pow(base, exp), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func formatResult(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", errNotFinite
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e16 {
			return strconv.FormatFloat(n, 'f', 1, 64), nil
		}
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	case bool:
		if n {
			return "True", nil
		}
		return "False", nil
	}
	return fmt.Sprint(v), nil
}

func calculatorTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "calculator",
		Description: "Evaluate a mathematical expression. Supports basic arithmetic (+, -, *, /, **, %), abs(), round(), min(), max(), pow().",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The math expression to evaluate (e.g., '2**128', '(3.14 * 5**2)')",
				},
			},
			"required": []string{"expression"},
		},
		Handler: func(_ context.Context, raw map[string]any) (string, error) {
			var args calculatorArgs
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			result, err := evaluate(args.Expression)
			if err != nil {
				return "Calculation error: " + err.Error(), nil
			}
			return result, nil
		},
	}
}
