package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// expressionCostLimit bounds the work a single expression may do per evaluation
const expressionCostLimit = 1000000

// NewExpressionEnv creates the CEL environment user-defined rules compile against.
//
// Variables:
//
//	text  string        the listing text as supplied
//	lower string        text lower-cased
//	words int           whitespace-separated word count
//	lines list(string)  text split on newlines
func NewExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("lower", cel.StringType),
		cel.Variable("words", cel.IntType),
		cel.Variable("lines", cel.ListType(cel.StringType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileExpression type-checks an expression and builds a cost-limited program.
// The expression must produce a bool or a severity string.
func compileExpression(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.StringType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool or string, got %s", out)
	}

	prog, err := env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// expressionFacts builds the CEL activation for a listing text
func expressionFacts(text string) map[string]any {
	return map[string]any{
		"text":  text,
		"lower": strings.ToLower(text),
		"words": int64(len(strings.Fields(text))),
		"lines": strings.Split(text, "\n"),
	}
}

// expressionCheck adapts a compiled definition into a CheckFunc.
// Runtime errors become warnings; an expression never passes by failing.
func expressionCheck(d Definition, prog cel.Program) CheckFunc {
	failSeverity := d.FailSeverity
	if failSeverity == "" {
		failSeverity = SeverityWarning
	}
	passMessage := d.PassMessage
	if passMessage == "" {
		passMessage = d.Name + " check passed"
	}
	failMessage := d.FailMessage
	if failMessage == "" {
		failMessage = d.Name + " check did not pass"
	}

	return func(text string) Verdict {
		out, _, err := prog.Eval(expressionFacts(text))
		if err != nil {
			return warning(fmt.Sprintf("%s could not be evaluated: %v", d.Name, err))
		}

		switch v := out.Value().(type) {
		case bool:
			if v {
				return pass(passMessage)
			}
			return Verdict{Severity: failSeverity, Message: failMessage}
		case string:
			sev, err := ParseSeverity(v)
			if err != nil {
				return warning(fmt.Sprintf("%s returned %q: %v", d.Name, v, err))
			}
			if sev == SeverityPass {
				return pass(passMessage)
			}
			return Verdict{Severity: sev, Message: failMessage}
		default:
			return warning(fmt.Sprintf("%s returned unsupported value %v", d.Name, out))
		}
	}
}
