package spl

import (
	"fmt"

	"github.com/hanpama/splgraph/internal/executor"
	"github.com/hanpama/splgraph/internal/filter"
	language "github.com/hanpama/splgraph/internal/language"
	"github.com/hanpama/splgraph/internal/treepath"
)

// Rewriter applies @SPL directives to execution results.
type Rewriter struct {
	engine filter.Engine
}

// NewRewriter returns a Rewriter that filters lists with engine.
func NewRewriter(engine filter.Engine) *Rewriter {
	return &Rewriter{engine: engine}
}

// Rewrite filters every list addressed by an @SPL directive in p.Document.
//
// The original result is never modified. When at least one directive was
// applied, Rewrite returns a copy of result whose Data is the rewritten tree;
// otherwise it returns result itself. Errors are left as they are. The
// returned diagnostics are in document order, one per directive.
func (r *Rewriter) Rewrite(p executor.Params, result *executor.ExecutionResult) (*executor.ExecutionResult, []Diagnostic) {
	if result == nil || result.Data == nil || p.Document == nil {
		return result, nil
	}
	data := treepath.Clone(result.Data)
	changed := false
	var diags []Diagnostic
	seen := make(map[string]struct{})

	Walk(p.Document, p.OperationName, func(path treepath.Path, query string, _ *language.Field) {
		key := path.String() + "\x00" + query
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		d := r.apply(data, path, query, p.Variables)
		if d.Kind == KindProcessed {
			changed = true
		}
		diags = append(diags, d)
	})

	if !changed {
		return result, diags
	}
	out := result.Clone()
	out.Data = data
	return out, diags
}

func (r *Rewriter) apply(data any, path treepath.Path, query string, vars map[string]any) (d Diagnostic) {
	value, ok := treepath.Get(data, path)
	if !ok {
		return undefined(path, query)
	}
	items, ok := value.([]any)
	if !ok {
		return notArray(path, query, value)
	}

	defer func() {
		if rec := recover(); rec != nil {
			d = failed(path, query, fmt.Errorf("filter engine panic: %v", rec))
		}
	}()
	out, err := r.filter(query, items, vars)
	if err != nil {
		return failed(path, query, err)
	}
	treepath.Set(data, path, out)
	return processed(path, query, len(items), len(out))
}

func (r *Rewriter) filter(query string, items []any, vars map[string]any) ([]any, error) {
	if r.engine == nil {
		return nil, fmt.Errorf("no filter engine configured")
	}
	if vars == nil {
		vars = map[string]any{}
	}
	in, err := r.engine.FormatInput(items)
	if err != nil {
		return nil, fmt.Errorf("format input: %w", err)
	}
	vs, err := r.engine.FormatVariables(vars)
	if err != nil {
		return nil, fmt.Errorf("format variables: %w", err)
	}
	res, err := r.engine.Filter(query, in, vs)
	if err != nil {
		return nil, err
	}
	out, err := r.engine.FormatOutput(res)
	if err != nil {
		return nil, fmt.Errorf("format output: %w", err)
	}
	return out, nil
}
