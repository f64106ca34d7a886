package executor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/splgraph/internal/schema"
)

const petsSDL = `
enum Color { RED GREEN }

input Range { min: Int = 0, max: Int! }

input Pick @oneOf { id: ID, name: String }

interface Named { name: String }

type Dog implements Named { name: String, barks: Boolean }

type Cat implements Named { name: String }

union Pet = Dog | Cat

type Query {
  echo(color: Color, range: Range, ids: [ID!], n: Int = 7, pick: Pick): String
  strict(n: Int!): String
  named: [Named]
  pets: [Pet]
}
`

func fromSource(key string) MockResolver {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		return source.(map[string]any)[key], nil
	}
}

func newPetsExecutor(t *testing.T) (*Executor, *MockRuntime) {
	t.Helper()
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)
	pets := []any{
		map[string]any{"__typename": "Dog", "name": "Rex", "barks": true},
		map[string]any{"__typename": "Cat", "name": "Tom"},
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.echo":   NewMockValueResolver("ok"),
		"Query.strict": NewMockValueResolver("ok"),
		"Query.named":  NewMockValueResolver(pets),
		"Query.pets":   NewMockValueResolver(pets),
		"Dog.name":     fromSource("name"),
		"Dog.barks":    fromSource("barks"),
		"Cat.name":     fromSource("name"),
	})
	return NewExecutor(rt, sch), rt
}

func TestArguments_Coercion(t *testing.T) {
	exec, rt := newPetsExecutor(t)

	res := exec.Execute(context.Background(), Params{
		Document:  mustParse(t, `query ($max: Int!) { echo(color: RED, range: {max: $max}, ids: 3) }`),
		Variables: map[string]any{"max": float64(5)},
	})
	require.Empty(t, res.Errors)

	want := map[string]any{
		"color": "RED",
		"range": map[string]any{"min": 0, "max": 5},
		"ids":   []any{"3"},
		"n":     7,
	}
	if diff := cmp.Diff(want, rt.GetCalls()[0].Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestArguments_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "unknown enum value", query: `{ echo(color: BLUE) }`, want: "argument 'color' cannot be coerced: BLUE is not a value of enum Color"},
		{name: "unknown input field", query: `{ echo(range: {max: 1, step: 2}) }`, want: `argument 'range' cannot be coerced: field "step" is not defined by input object Range`},
		{name: "missing input field", query: `{ echo(range: {min: 1}) }`, want: "argument 'range' cannot be coerced: field Range.max of required type was not provided"},
		{name: "oneOf with two fields", query: `{ echo(pick: {id: 1, name: "a"}) }`, want: "argument 'pick' cannot be coerced: exactly one field of oneOf input object Pick must be set"},
		{name: "missing required", query: `{ strict }`, want: "argument 'n' of required type was not provided"},
		{name: "int overflow", query: `{ strict(n: 3000000000) }`, want: "argument 'n' cannot be coerced: 3000000000 overflows Int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, rt := newPetsExecutor(t)

			res := exec.Execute(context.Background(), Params{Document: mustParse(t, tt.query)})

			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.want, res.Errors[0].Message)
			assert.Empty(t, rt.GetCalls(), "resolver must not run")
		})
	}
}

func TestVariables_Errors(t *testing.T) {
	exec, _ := newPetsExecutor(t)

	res := exec.Execute(context.Background(), Params{Document: mustParse(t, `query ($n: Int!) { strict(n: $n) }`)})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "variable $n of required type Int! was not provided", res.Errors[0].Message)

	res = exec.Execute(context.Background(), Params{
		Document:  mustParse(t, `query ($n: Int!) { strict(n: $n) }`),
		Variables: map[string]any{"n": 1.5},
	})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "variable $n of type Int!: cannot use non-integer 1.5 as Int", res.Errors[0].Message)
}

func TestCollectFields_AbstractFragments(t *testing.T) {
	exec, _ := newPetsExecutor(t)

	res := exec.Execute(context.Background(), Params{Document: mustParse(t, `
		{
			named { ... on Named { name } ... on Dog { barks } }
			pets { __typename ...CatBits ... on Dog @skip(if: true) { barks } }
		}
		fragment CatBits on Cat { name }
	`)})
	require.Empty(t, res.Errors)

	want := map[string]any{
		"named": []any{
			map[string]any{"name": "Rex", "barks": true},
			map[string]any{"name": "Tom"},
		},
		"pets": []any{
			map[string]any{"__typename": "Dog"},
			map[string]any{"__typename": "Cat", "name": "Tom"},
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectFields_IncludeVariable(t *testing.T) {
	exec, _ := newPetsExecutor(t)

	doc := mustParse(t, `query ($on: Boolean!) { echo @include(if: $on) strict(n: 1) }`)

	res := exec.Execute(context.Background(), Params{Document: doc, Variables: map[string]any{"on": false}})
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{"strict": "ok"}, res.Data)

	res = exec.Execute(context.Background(), Params{Document: doc, Variables: map[string]any{"on": true}})
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{"echo": "ok", "strict": "ok"}, res.Data)
}
