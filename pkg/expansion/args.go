package expansion

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// EvalArgs evaluates the raw argument text between a reference's markers as
// an object literal and returns the resulting mapping. Evaluation happens
// with a nil EvalContext, so the expression has no access to variables or
// functions beyond literal syntax. Malformed input never fails the caller's
// scan: any parse or evaluation problem, or a non-object result, reports
// ok=false so the surrounding line is treated as ordinary text.
func EvalArgs(raw string) (map[string]any, bool) {
	src := normalizeQuotes(raw)

	expr, diags := hclsyntax.ParseExpression([]byte(src), "args", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, false
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, false
	}

	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, false
	}

	native, err := ctyToNative(val)
	if err != nil {
		return nil, false
	}
	args, ok := native.(map[string]any)
	if !ok {
		return nil, false
	}
	return args, true
}

// normalizeQuotes rewrites single-quoted string literals to double-quoted
// ones so that the common `{ template: 'x.tmpl' }` form parses as a regular
// expression-language string. Text inside double-quoted strings is left
// untouched.
func normalizeQuotes(raw string) string {
	var (
		b        strings.Builder
		inDouble bool
		inSingle bool
		escaped  bool
	)
	for _, r := range raw {
		switch {
		case escaped:
			if inSingle && r == '\'' {
				b.WriteRune('\'')
			} else {
				b.WriteRune('\\')
				b.WriteRune(r)
			}
			escaped = false
		case r == '\\' && (inSingle || inDouble):
			escaped = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteRune('"')
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteRune('"')
		case r == '"' && inSingle:
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ctyToNative recursively converts a cty.Value into its natural Go
// counterpart: string, float64, bool, []any or map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = nv
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported argument value type: %s", ty.FriendlyName())
}
