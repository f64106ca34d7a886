package introspection

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/splgraph/internal/executor"
	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

const testSDL = `
"Trims a list field."
directive @trim(limit: Int = 10) on FIELD

type User {
  id: ID!
  name: String
  nick: String @deprecated(reason: "use name")
  tags: [String!]!
}

type Query {
  hello: String
  users: [User!]
}

type Subscription {
  ticks: Int
}
`

func newExecutor(t *testing.T, base executor.Runtime) (*executor.Executor, *schema.Schema) {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	rt, extended, err := Wrap(base, sch)
	require.NoError(t, err)
	return executor.NewExecutor(rt, extended), sch
}

func execute(t *testing.T, exec *executor.Executor, query string) map[string]any {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := exec.Execute(context.Background(), executor.Params{Document: doc})
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

func TestSchemaRootTypes(t *testing.T) {
	exec, _ := newExecutor(t, executor.NewMockRuntime(nil))

	got := execute(t, exec, `{ __schema { queryType { name } mutationType { name } subscriptionType { name } } }`)

	want := map[string]any{"__schema": map[string]any{
		"queryType":        map[string]any{"name": "Query"},
		"mutationType":     nil,
		"subscriptionType": map[string]any{"name": "Subscription"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("__schema mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaDirectives(t *testing.T) {
	exec, _ := newExecutor(t, executor.NewMockRuntime(nil))

	got := execute(t, exec, `{ __schema { directives { name description locations args { name defaultValue type { name } } } } }`)

	dirs := got["__schema"].(map[string]any)["directives"].([]any)
	var names []any
	for _, d := range dirs {
		names = append(names, d.(map[string]any)["name"])
	}
	assert.Equal(t, []any{"include", "skip", "trim"}, names)

	want := map[string]any{
		"name":        "trim",
		"description": "Trims a list field.",
		"locations":   []any{"FIELD"},
		"args": []any{map[string]any{
			"name":         "limit",
			"defaultValue": "10",
			"type":         map[string]any{"name": "Int"},
		}},
	}
	if diff := cmp.Diff(want, dirs[2]); diff != "" {
		t.Fatalf("directive mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeFields(t *testing.T) {
	exec, _ := newExecutor(t, executor.NewMockRuntime(nil))

	got := execute(t, exec, `{
		active: __type(name: "User") { kind fields { name } }
		all: __type(name: "User") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } }
	}`)

	want := map[string]any{
		"active": map[string]any{
			"kind": "OBJECT",
			"fields": []any{
				map[string]any{"name": "id"},
				map[string]any{"name": "name"},
				map[string]any{"name": "tags"},
			},
		},
		"all": map[string]any{
			"fields": []any{
				map[string]any{"name": "id", "isDeprecated": false, "deprecationReason": nil},
				map[string]any{"name": "name", "isDeprecated": false, "deprecationReason": nil},
				map[string]any{"name": "nick", "isDeprecated": true, "deprecationReason": "use name"},
				map[string]any{"name": "tags", "isDeprecated": false, "deprecationReason": nil},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("__type mismatch (-want +got):\n%s", diff)
	}
}

func TestWrappedTypes(t *testing.T) {
	exec, _ := newExecutor(t, executor.NewMockRuntime(nil))

	got := execute(t, exec, `{ __type(name: "User") { fields { name type { kind name ofType { kind name ofType { kind name ofType { kind name } } } } } } }`)

	fields := got["__type"].(map[string]any)["fields"].([]any)
	tags := fields[2].(map[string]any)
	want := map[string]any{
		"name": "tags",
		"type": map[string]any{
			"kind": "NON_NULL",
			"name": nil,
			"ofType": map[string]any{
				"kind": "LIST",
				"name": nil,
				"ofType": map[string]any{
					"kind":   "NON_NULL",
					"name":   nil,
					"ofType": map[string]any{"kind": "SCALAR", "name": "String"},
				},
			},
		},
	}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Fatalf("type mismatch (-want +got):\n%s", diff)
	}
}

func TestMetaTypesAreListed(t *testing.T) {
	exec, _ := newExecutor(t, executor.NewMockRuntime(nil))

	got := execute(t, exec, `{ __type(name: "__Schema") { kind } query: __type(name: "Query") { fields { name } } missing: __type(name: "Nope") { name } }`)

	assert.Equal(t, map[string]any{"kind": "OBJECT"}, got["__type"])
	assert.Nil(t, got["missing"])
	assert.Equal(t, []any{
		map[string]any{"name": "hello"},
		map[string]any{"name": "users"},
	}, got["query"].(map[string]any)["fields"])
}

func TestDelegatesToBase(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	exec, _ := newExecutor(t, rt)

	got := execute(t, exec, `{ hello __typename }`)

	assert.Equal(t, map[string]any{"hello": "world", "__typename": "Query"}, got)
}

func TestOriginalSchemaUntouched(t *testing.T) {
	_, sch := newExecutor(t, executor.NewMockRuntime(nil))

	assert.Len(t, sch.GetQueryType().Fields, 2)
	assert.NotContains(t, sch.Types, "__Schema")
}

func TestHandBuiltSchema(t *testing.T) {
	sch := schema.NewSchema("").
		SetQueryType("Query").
		AddType(schema.NewType("Query", schema.TypeKindObject, "").
			AddField(schema.NewField("hello", "", schema.NamedType("String"))))
	rt, extended, err := Wrap(executor.NewMockRuntime(nil), sch)
	require.NoError(t, err)
	exec := executor.NewExecutor(rt, extended)

	got := execute(t, exec, `{ __type(name: "__TypeKind") { kind } }`)

	assert.Equal(t, map[string]any{"__type": map[string]any{"kind": "ENUM"}}, got)
}

func TestSubscribeForwarding(t *testing.T) {
	mock := executor.NewMockRuntime(nil)
	mock.SetSubscription("Subscription", "ticks", 1, 2)
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)

	rt, _, err := Wrap(mock, sch)
	require.NoError(t, err)
	ch, err := rt.Subscribe(context.Background(), "Subscription", "ticks", nil)
	require.NoError(t, err)
	var got []any
	for ev := range ch {
		got = append(got, ev)
	}
	assert.Equal(t, []any{1, 2}, got)

	var bare executor.Runtime = struct{ executor.Runtime }{mock}
	rt, _, err = Wrap(bare, sch)
	require.NoError(t, err)
	_, err = rt.Subscribe(context.Background(), "Subscription", "ticks", nil)
	assert.ErrorIs(t, err, executor.ErrSubscriptionsUnsupported)
}
