package spl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/splgraph/internal/executor"
	"github.com/hanpama/splgraph/internal/filter"
	language "github.com/hanpama/splgraph/internal/language"
	"github.com/hanpama/splgraph/internal/treepath"
)

// ageAbove understands queries of the form "age > N" and fails otherwise.
func ageAbove() filter.Func {
	return func(query string, items []any, vars map[string]any) ([]any, error) {
		var n int
		if _, err := fmt.Sscanf(query, "age > %d", &n); err != nil {
			return nil, fmt.Errorf("unsupported query %q", query)
		}
		out := []any{}
		for _, it := range items {
			if m, ok := it.(map[string]any); ok && m["age"].(int) > n {
				out = append(out, it)
			}
		}
		return out, nil
	}
}

func params(t *testing.T, query string) executor.Params {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return executor.Params{Document: doc}
}

func sampleUsers() []any {
	return []any{
		map[string]any{"id": 1, "age": 30},
		map[string]any{"id": 2, "age": 20},
		map[string]any{"id": 3, "age": 35},
	}
}

func TestRewrite_FiltersAnnotatedList(t *testing.T) {
	r := NewRewriter(ageAbove())
	original := &executor.ExecutionResult{
		Data:   map[string]any{"users": sampleUsers()},
		Errors: []executor.GraphQLError{{Message: "unrelated"}},
	}

	got, diags := r.Rewrite(params(t, `{ users @SPL(query: "age > 25") { id name age } }`), original)

	require.NotSame(t, original, got)
	want := map[string]any{"users": []any{
		map[string]any{"id": 1, "age": 30},
		map[string]any{"id": 3, "age": 35},
	}}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, original.Errors, got.Errors)
	assert.Equal(t, map[string]any{"users": sampleUsers()}, original.Data, "original data must not change")

	require.Len(t, diags, 1)
	assert.Equal(t, KindProcessed, diags[0].Kind)
	assert.Equal(t, SeverityInfo, diags[0].Severity)
	assert.Equal(t, treepath.Path{"users"}, diags[0].Path)
	assert.Equal(t, 3, diags[0].Before)
	assert.Equal(t, 2, diags[0].After)
}

func TestRewrite_NullTarget(t *testing.T) {
	r := NewRewriter(ageAbove())
	original := &executor.ExecutionResult{Data: map[string]any{"users": nil}}

	got, diags := r.Rewrite(params(t, `{ users @SPL(query: "age > 25") { id } }`), original)

	assert.Same(t, original, got)
	assert.Equal(t, map[string]any{"users": nil}, got.Data)
	require.Len(t, diags, 1)
	assert.Equal(t, KindNotArray, diags[0].Kind)
	assert.Equal(t, SeverityWarn, diags[0].Severity)
	assert.Equal(t, "null", diags[0].Type)
}

func TestRewrite_SkippedTargets(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		wantKind Kind
		wantType string
	}{
		{name: "missing", data: map[string]any{}, wantKind: KindUndefined},
		{name: "object", data: map[string]any{"users": map[string]any{"id": 1}}, wantKind: KindNotArray, wantType: "object"},
		{name: "string", data: map[string]any{"users": "nope"}, wantKind: KindNotArray, wantType: "string"},
		{name: "number", data: map[string]any{"users": 4}, wantKind: KindNotArray, wantType: "number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := &executor.ExecutionResult{Data: tt.data}
			got, diags := NewRewriter(ageAbove()).Rewrite(params(t, `{ users @SPL(query: "age > 25") { id } }`), original)

			assert.Same(t, original, got)
			require.Len(t, diags, 1)
			assert.Equal(t, tt.wantKind, diags[0].Kind)
			assert.Equal(t, tt.wantType, diags[0].Type)
			assert.Contains(t, diags[0].Message, `"users"`)
		})
	}
}

func TestRewrite_SiblingFailureIsIsolated(t *testing.T) {
	r := NewRewriter(ageAbove())
	original := &executor.ExecutionResult{Data: map[string]any{
		"good": sampleUsers(),
		"bad":  sampleUsers(),
	}}
	p := params(t, `{
		bad: users @SPL(query: "not a query") { id }
		good: users @SPL(query: "age > 32") { id }
	}`)

	got, diags := r.Rewrite(p, original)

	require.NotSame(t, original, got)
	data := got.Data.(map[string]any)
	assert.Equal(t, sampleUsers(), data["bad"])
	assert.Equal(t, []any{map[string]any{"id": 3, "age": 35}}, data["good"])

	require.Len(t, diags, 2)
	assert.Equal(t, KindFailed, diags[0].Kind)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, "not a query", diags[0].Query)
	assert.Error(t, diags[0].Err)
	assert.Equal(t, KindProcessed, diags[1].Kind)
}

func TestRewrite_EnginePanicIsRecovered(t *testing.T) {
	boom := filter.Func(func(string, []any, map[string]any) ([]any, error) {
		panic("boom")
	})
	original := &executor.ExecutionResult{Data: map[string]any{"users": sampleUsers()}}

	var got *executor.ExecutionResult
	var diags []Diagnostic
	require.NotPanics(t, func() {
		got, diags = NewRewriter(boom).Rewrite(params(t, `{ users @SPL(query: "x") { id } }`), original)
	})

	assert.Same(t, original, got)
	require.Len(t, diags, 1)
	assert.Equal(t, KindFailed, diags[0].Kind)
	assert.ErrorContains(t, diags[0].Err, "boom")
}

type stageEngine struct {
	filter.Func
	failInput bool
}

func (e stageEngine) FormatInput(items []any) (any, error) {
	if e.failInput {
		return nil, errors.New("bad input")
	}
	return e.Func.FormatInput(items)
}

func TestRewrite_FormatErrorsAreReported(t *testing.T) {
	original := &executor.ExecutionResult{Data: map[string]any{"users": sampleUsers()}}

	got, diags := NewRewriter(stageEngine{Func: ageAbove(), failInput: true}).
		Rewrite(params(t, `{ users @SPL(query: "age > 1") { id } }`), original)

	assert.Same(t, original, got)
	require.Len(t, diags, 1)
	assert.ErrorContains(t, diags[0].Err, "format input: bad input")
}

func TestRewrite_AliasTargetsResponseKey(t *testing.T) {
	original := &executor.ExecutionResult{Data: map[string]any{
		"adults": sampleUsers(),
		"users":  sampleUsers(),
	}}

	got, _ := NewRewriter(ageAbove()).Rewrite(params(t, `{
		adults: users @SPL(query: "age > 25") { id }
		users { id }
	}`), original)

	data := got.Data.(map[string]any)
	assert.Len(t, data["adults"], 2)
	assert.Equal(t, sampleUsers(), data["users"])
}

func TestRewrite_NestedAndUnannotated(t *testing.T) {
	original := &executor.ExecutionResult{Data: map[string]any{
		"org": map[string]any{
			"name":    "acme",
			"members": sampleUsers(),
			"alumni":  sampleUsers(),
		},
	}}

	got, diags := NewRewriter(ageAbove()).Rewrite(params(t, `{
		org { name members @SPL(query: "age > 33") { id } alumni { id } }
	}`), original)

	want := map[string]any{"org": map[string]any{
		"name":    "acme",
		"members": []any{map[string]any{"id": 3, "age": 35}},
		"alumni":  sampleUsers(),
	}}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, diags, 1)
	assert.Equal(t, "org.members", diags[0].Path.String())
}

func TestRewrite_PassesVariables(t *testing.T) {
	var gotVars map[string]any
	engine := filter.Func(func(query string, items []any, vars map[string]any) ([]any, error) {
		gotVars = vars
		return items, nil
	})
	p := params(t, `query ($min: Int) { users @SPL(query: "x") { id } }`)
	p.Variables = map[string]any{"min": 3}

	_, _ = NewRewriter(engine).Rewrite(p, &executor.ExecutionResult{Data: map[string]any{"users": []any{}}})

	assert.Equal(t, map[string]any{"min": 3}, gotVars)
}

func TestRewrite_DuplicateSelectionAppliedOnce(t *testing.T) {
	calls := 0
	engine := filter.Func(func(query string, items []any, vars map[string]any) ([]any, error) {
		calls++
		return items[1:], nil
	})
	p := params(t, `{ users @SPL(query: "x") { id } ...F } fragment F on Query { users @SPL(query: "x") { age } }`)

	got, diags := NewRewriter(engine).Rewrite(p, &executor.ExecutionResult{Data: map[string]any{"users": sampleUsers()}})

	assert.Equal(t, 1, calls)
	assert.Len(t, diags, 1)
	assert.Len(t, got.Data.(map[string]any)["users"], 2)
}

func TestRewrite_NoOps(t *testing.T) {
	r := NewRewriter(ageAbove())
	withData := &executor.ExecutionResult{Data: map[string]any{"users": sampleUsers()}}
	noData := &executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: "failed"}}}

	got, diags := r.Rewrite(executor.Params{}, withData)
	assert.Same(t, withData, got)
	assert.Empty(t, diags)

	got, diags = r.Rewrite(params(t, `{ users @SPL(query: "age > 1") { id } }`), noData)
	assert.Same(t, noData, got)
	assert.Empty(t, diags)

	got, diags = r.Rewrite(params(t, `{ users { id } }`), withData)
	assert.Same(t, withData, got)
	assert.Empty(t, diags)

	got, _ = r.Rewrite(params(t, `{ users { id } }`), nil)
	assert.Nil(t, got)
}

func TestRewrite_NoEngine(t *testing.T) {
	original := &executor.ExecutionResult{Data: map[string]any{"users": sampleUsers()}}

	got, diags := NewRewriter(nil).Rewrite(params(t, `{ users @SPL(query: "x") { id } }`), original)

	assert.Same(t, original, got)
	require.Len(t, diags, 1)
	assert.Equal(t, KindFailed, diags[0].Kind)
}
