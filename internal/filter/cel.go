package filter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"

	"github.com/hanpama/splgraph/internal/treepath"
)

const defaultProgramCacheSize = 256

type queryMode int

const (
	// modePredicate evaluates the query once per item.
	modePredicate queryMode = iota
	// modeList evaluates the query once and replaces the list.
	modeList
	// modeDynamic decides at evaluation time.
	modeDynamic
)

type compiledQuery struct {
	program cel.Program
	mode    queryMode
}

// CELEngine evaluates queries written in the Common Expression Language.
//
// A query sees three variables: items (the list being filtered), vars (the
// operation variables) and item (the record under test). A query of type
// bool is a predicate evaluated once per item and the accepted items are
// kept in order. A query of list type is evaluated once and its result
// replaces the input:
//
//	item.age > 25
//	items.filter(u, u.age > vars.minAge).sortBy(u, u.name)
//	items.slice(0, 2)
//
// Queries of dynamic type are evaluated once with item bound to null; a
// list result is used as is, anything else falls back to the predicate form.
type CELEngine struct {
	env       *cel.Env
	costLimit uint64
	cacheSize int

	mu       sync.RWMutex
	compiled map[string]*compiledQuery
}

// CELOption configures a CELEngine.
type CELOption func(*CELEngine)

// WithCostLimit bounds the evaluation cost of a single program run.
// Zero disables the limit.
func WithCostLimit(limit uint64) CELOption {
	return func(e *CELEngine) { e.costLimit = limit }
}

// WithProgramCacheSize sets how many compiled queries are kept. The cache is
// dropped as a whole when it fills up.
func WithProgramCacheSize(n int) CELOption {
	return func(e *CELEngine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// NewCELEngine creates an engine with the list extension library loaded.
func NewCELEngine(opts ...CELOption) (*CELEngine, error) {
	e := &CELEngine{
		cacheSize: defaultProgramCacheSize,
		compiled:  make(map[string]*compiledQuery),
	}
	for _, opt := range opts {
		opt(e)
	}
	env, err := cel.NewEnv(
		cel.Variable("items", cel.ListType(cel.DynType)),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("item", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
		ext.Lists(),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e.env = env
	return e, nil
}

func (e *CELEngine) FormatInput(items []any) (any, error) {
	if items == nil {
		return []any{}, nil
	}
	return treepath.Clone(items), nil
}

func (e *CELEngine) FormatVariables(vars map[string]any) (any, error) {
	if vars == nil {
		return map[string]any{}, nil
	}
	return treepath.Clone(vars), nil
}

// Filter compiles query on first use and evaluates it over input.
func (e *CELEngine) Filter(query string, input any, vars any) (any, error) {
	items, ok := input.([]any)
	if !ok {
		return nil, fmt.Errorf("filter input must be a list, got %T", input)
	}
	cq, err := e.compile(query)
	if err != nil {
		return nil, err
	}

	switch cq.mode {
	case modeList:
		return e.evalList(cq, items, vars)
	case modeDynamic:
		out, _, err := cq.program.Eval(map[string]any{"items": items, "vars": vars, "item": nil})
		if err == nil {
			if _, ok := out.(traits.Lister); ok {
				return out, nil
			}
		}
	}
	return e.evalPredicate(cq, items, vars)
}

func (e *CELEngine) evalList(cq *compiledQuery, items []any, vars any) (any, error) {
	out, _, err := cq.program.Eval(map[string]any{"items": items, "vars": vars, "item": nil})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *CELEngine) evalPredicate(cq *compiledQuery, items []any, vars any) (any, error) {
	kept := make([]any, 0, len(items))
	for i, item := range items {
		out, _, err := cq.program.Eval(map[string]any{"items": items, "vars": vars, "item": item})
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		b, ok := out.(types.Bool)
		if !ok {
			return nil, fmt.Errorf("item %d: predicate must evaluate to bool, got %s", i, out.Type().TypeName())
		}
		if b {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// FormatOutput converts the result of Filter into plain Go values.
func (e *CELEngine) FormatOutput(out any) ([]any, error) {
	switch v := out.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	case ref.Val:
		native, err := toNative(v)
		if err != nil {
			return nil, err
		}
		list, ok := native.([]any)
		if !ok {
			return nil, &OutputError{Got: native}
		}
		return list, nil
	default:
		return nil, &OutputError{Got: out}
	}
}

func (e *CELEngine) compile(query string) (*compiledQuery, error) {
	e.mu.RLock()
	cq, ok := e.compiled[query]
	e.mu.RUnlock()
	if ok {
		return cq, nil
	}

	ast, iss := e.env.Compile(query)
	if iss != nil && iss.Err() != nil {
		return nil, &CompileError{Query: query, Err: iss.Err()}
	}
	var mode queryMode
	switch out := ast.OutputType(); {
	case out.IsExactType(cel.BoolType):
		mode = modePredicate
	case out.IsExactType(cel.DynType):
		mode = modeDynamic
	case out.Kind() == types.ListKind:
		mode = modeList
	default:
		return nil, &CompileError{Query: query, Err: fmt.Errorf("query must evaluate to bool or list, got %s", out)}
	}

	var progOpts []cel.ProgramOption
	if e.costLimit > 0 {
		progOpts = append(progOpts, cel.CostLimit(e.costLimit))
	}
	prg, err := e.env.Program(ast, progOpts...)
	if err != nil {
		return nil, &CompileError{Query: query, Err: err}
	}
	cq = &compiledQuery{program: prg, mode: mode}

	e.mu.Lock()
	if len(e.compiled) >= e.cacheSize {
		e.compiled = make(map[string]*compiledQuery)
	}
	e.compiled[query] = cq
	e.mu.Unlock()
	return cq, nil
}

func toNative(v ref.Val) (any, error) {
	if types.IsError(v) {
		if err, ok := v.Value().(error); ok {
			return nil, err
		}
		return nil, errors.New(fmt.Sprint(v))
	}
	switch tv := v.(type) {
	case types.Null:
		return nil, nil
	case traits.Mapper:
		out := make(map[string]any)
		it := tv.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			key, ok := k.Value().(string)
			if !ok {
				key = fmt.Sprint(k.Value())
			}
			val, err := toNative(tv.Get(k))
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	case traits.Lister:
		n, _ := tv.Size().(types.Int)
		out := make([]any, 0, int(n))
		for i := types.Int(0); i < n; i++ {
			val, err := toNative(tv.Get(i))
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	default:
		return v.Value(), nil
	}
}
