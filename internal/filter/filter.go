// Package filter defines the contract between the result rewriter and the
// query engine that filters list values, and ships a CEL-backed engine.
package filter

import "github.com/hanpama/splgraph/internal/treepath"

// Engine filters a list of records with a query string. The rewriter calls
// the four methods in order for every annotated field:
//
//	in, _ := e.FormatInput(items)
//	vs, _ := e.FormatVariables(variables)
//	out, _ := e.Filter(query, in, vs)
//	items, _ = e.FormatOutput(out)
//
// Any method may fail; the caller skips the field on the first error.
type Engine interface {
	FormatInput(items []any) (any, error)
	FormatVariables(vars map[string]any) (any, error)
	Filter(query string, input any, vars any) (any, error)
	FormatOutput(out any) ([]any, error)
}

// Func adapts a plain function to Engine. Input and variables are deep
// copied before fn sees them and the output is passed through unchanged.
type Func func(query string, items []any, vars map[string]any) ([]any, error)

func (f Func) FormatInput(items []any) (any, error) {
	return treepath.Clone(items), nil
}

func (f Func) FormatVariables(vars map[string]any) (any, error) {
	if vars == nil {
		return map[string]any{}, nil
	}
	return treepath.Clone(vars), nil
}

func (f Func) Filter(query string, input any, vars any) (any, error) {
	items, _ := input.([]any)
	vm, _ := vars.(map[string]any)
	return f(query, items, vm)
}

func (f Func) FormatOutput(out any) ([]any, error) {
	if out == nil {
		return []any{}, nil
	}
	items, ok := out.([]any)
	if !ok {
		return nil, &OutputError{Got: out}
	}
	if items == nil {
		items = []any{}
	}
	return items, nil
}
