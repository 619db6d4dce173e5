package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

// Evaluator is the expression/template evaluation capability the engine
// depends on as an interface, not an import (§9 design note). A fresh
// context is built per dispatch step and handed to Evaluate; non-string
// values pass through unchanged, and a template whose path cannot be
// resolved yields nil rather than an error.
type Evaluator interface {
	Evaluate(value any, context map[string]any) (any, error)
}

// ExprEvaluator is the default Evaluator, built on github.com/expr-lang/expr.
// Two placeholder forms are recognized, matching the "${expr}" / "{{var}}"
// convention used across the workflow-engine examples this engine was
// modeled on: "${...}" is a full expr-lang expression, "{{...}}" is a bare
// dotted-path lookup. A value that is exactly one placeholder (with no
// surrounding text) evaluates to the expression's native type; a value
// that mixes literal text with placeholders is rendered as a string.
type ExprEvaluator struct {
	exprPattern *regexp.Regexp
	varPattern  *regexp.Regexp
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		exprPattern: regexp.MustCompile(`\$\{([^}]+)\}`),
		varPattern:  regexp.MustCompile(`\{\{([^}]+)\}\}`),
	}
}

func (ev *ExprEvaluator) Evaluate(value any, context map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return ev.evalString(v, context)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := ev.Evaluate(item, context)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := ev.Evaluate(item, context)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func (ev *ExprEvaluator) evalString(s string, context map[string]any) (any, error) {
	if !strings.Contains(s, "${") && !strings.Contains(s, "{{") {
		return s, nil
	}

	if m := ev.exprPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return ev.runExpr(m[1], context), nil
	}
	if m := ev.varPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return lookupPath(context, strings.TrimSpace(m[1])), nil
	}

	result := s
	for _, m := range ev.exprPattern.FindAllStringSubmatch(result, -1) {
		val := ev.runExpr(m[1], context)
		result = strings.Replace(result, m[0], renderValue(val), 1)
	}
	for _, m := range ev.varPattern.FindAllStringSubmatch(result, -1) {
		val := lookupPath(context, strings.TrimSpace(m[1]))
		result = strings.Replace(result, m[0], renderValue(val), 1)
	}
	return result, nil
}

// runExpr compiles and runs an expr-lang expression; any failure (compile
// or runtime) resolves to nil per the missing-paths-are-null contract,
// rather than surfacing as an evaluator error.
func (ev *ExprEvaluator) runExpr(expression string, context map[string]any) any {
	program, err := expr.Compile(expression, expr.Env(context), expr.AsAny())
	if err != nil {
		program, err = expr.Compile(expression, expr.AsAny())
		if err != nil {
			return nil
		}
	}
	result, err := expr.Run(program, context)
	if err != nil {
		return nil
	}
	return result
}

func renderValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// lookupPath resolves a dotted path ("input.user.name") against a nested
// map, returning nil on any missing segment.
func lookupPath(context map[string]any, path string) any {
	segments := strings.Split(path, ".")
	var cur any = context
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}
