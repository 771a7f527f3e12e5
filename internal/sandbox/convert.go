package sandbox

import (
	"fmt"

	"go.starlark.net/starlark"
)

// toStarlark converts a JSON-decoded Go value into its Starlark
// equivalent. Tool arguments arrive as encoding/json output, so only the
// types that decoder produces are supported.
func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		// encoding/json decodes every number as float64; surface whole
		// numbers as ints so arithmetic in tool code stays integral.
		if v == float64(int64(v)) {
			return starlark.MakeInt64(int64(v)), nil
		}
		return starlark.Float(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported argument type %T", v)
}

// stringify coerces a successful result to text. Strings pass through
// verbatim; everything else uses Starlark's deterministic repr.
func stringify(v starlark.Value) string {
	switch v := v.(type) {
	case starlark.NoneType:
		return ""
	case starlark.String:
		return string(v)
	default:
		return v.String()
	}
}
