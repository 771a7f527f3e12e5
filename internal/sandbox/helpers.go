package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"

	"github.com/wardenhq/warden/internal/codecheck"
)

// toolkit builds the fixed predeclared environment available to every
// tool body. Nothing outside this set is resolvable from sandboxed code.
func (e *Executor) toolkit() starlark.StringDict {
	return starlark.StringDict{
		// Restricted numeric/date/JSON modules from the Starlark stdlib.
		"math": starlarkmath.Module,
		"json": starlarkjson.Module,
		"time": starlarktime.Module,

		// String/collection helpers.
		"parse_number": starlark.NewBuiltin("parse_number", parseNumber),
		"unique":       starlark.NewBuiltin("unique", uniqueValues),
		"flatten":      starlark.NewBuiltin("flatten", flattenValues),

		// Composition helpers taking a data value plus a secondary code
		// expression; each re-validates its expression before evaluating.
		"transform":   starlark.NewBuiltin("transform", e.transformBuiltin),
		"map_with":    starlark.NewBuiltin("map_with", e.mapWithBuiltin),
		"filter_with": starlark.NewBuiltin("filter_with", e.filterWithBuiltin),
	}
}

func parseNumber(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "s", &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return starlark.MakeInt64(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse_number: not a number: %q", s)
	}
	return starlark.Float(f), nil
}

func uniqueValues(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values); err != nil {
		return nil, err
	}
	iter := values.Iterate()
	defer iter.Done()

	seen := make(map[string]bool)
	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		key := x.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, x)
	}
	return starlark.NewList(out), nil
}

func flattenValues(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values); err != nil {
		return nil, err
	}
	iter := values.Iterate()
	defer iter.Done()

	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		if inner, ok := x.(starlark.Iterable); ok {
			innerIter := inner.Iterate()
			var y starlark.Value
			for innerIter.Next(&y) {
				out = append(out, y)
			}
			innerIter.Done()
			continue
		}
		out = append(out, x)
	}
	return starlark.NewList(out), nil
}

func (e *Executor) transformBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	var expr string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "expr", &expr); err != nil {
		return nil, err
	}
	if err := checkExpr(expr); err != nil {
		return nil, err
	}
	return e.evalExpr(expr, value)
}

func (e *Executor) mapWithBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	var expr string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "expr", &expr); err != nil {
		return nil, err
	}
	if err := checkExpr(expr); err != nil {
		return nil, err
	}
	iter := values.Iterate()
	defer iter.Done()

	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		v, err := e.evalExpr(expr, x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return starlark.NewList(out), nil
}

func (e *Executor) filterWithBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	var expr string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "expr", &expr); err != nil {
		return nil, err
	}
	if err := checkExpr(expr); err != nil {
		return nil, err
	}
	iter := values.Iterate()
	defer iter.Done()

	var out []starlark.Value
	var x starlark.Value
	for iter.Next(&x) {
		v, err := e.evalExpr(expr, x)
		if err != nil {
			return nil, err
		}
		if bool(v.Truth()) {
			out = append(out, x)
		}
	}
	return starlark.NewList(out), nil
}

// checkExpr statically validates an embedded expression before any
// evaluator is built from it.
func checkExpr(expr string) error {
	if res := codecheck.Validate(expr); !res.Valid {
		return fmt.Errorf("embedded expression rejected: %s", strings.Join(res.Reasons(), "; "))
	}
	return nil
}

// evalExpr evaluates a single expression with x bound to the data value.
// The expression runs on its own thread with an independent step cap and
// wall-clock deadline, so a runaway sub-expression cannot exceed the
// expression budget even inside a long tool-body budget.
func (e *Executor) evalExpr(expr string, x starlark.Value) (starlark.Value, error) {
	thread := &starlark.Thread{Name: "warden-expr"}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}
	timer := time.AfterFunc(e.exprTimeout, func() {
		thread.Cancel("expression deadline exceeded")
	})
	defer timer.Stop()

	env := make(starlark.StringDict, len(e.predeclared)+1)
	for k, v := range e.predeclared {
		env[k] = v
	}
	env["x"] = x

	return starlark.EvalOptions(fileOptions, thread, "<expr>", expr, env)
}
