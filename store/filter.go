package store

import (
	"encoding/json"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Filter is a compiled CEL expression evaluated against stored JSON values.
// The decoded document is exposed to the expression as the `value` variable,
// e.g. `value.severity == "high" && value.status == "pendiente"`.
type Filter struct {
	program cel.Program
}

// CompileFilter compiles a CEL filter expression. An empty expression
// returns a nil filter, which matches everything.
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("value", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create CEL environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile filter %q", expr)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build CEL program")
	}
	return &Filter{program: program}, nil
}

// Match reports whether the JSON document satisfies the filter.
// Documents that fail to decode are excluded rather than failing the query.
func (f *Filter) Match(value []byte) bool {
	if f == nil {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return false
	}
	out, _, err := f.program.Eval(map[string]any{"value": doc})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// ApplyFilter compiles the expression and keeps only matching values.
// Drivers share this helper so filter semantics stay identical across engines.
func ApplyFilter(expr string, values [][]byte) ([][]byte, error) {
	filter, err := CompileFilter(expr)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return values, nil
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
