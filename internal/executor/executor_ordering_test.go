package executor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/splgraph/internal/schema"
)

func str(name string) *schema.Field { return schema.NewField(name, "", schema.NamedType("String")) }

func TestOrdering_SyncBeforeBatch(t *testing.T) {
	sch := newTestSchema(testObject("Query", str("a"), str("b").SetAsync(true), str("c")))
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": NewMockValueResolver("A"),
		"Query.b": NewMockValueResolver("B"),
		"Query.c": NewMockValueResolver("C"),
	})

	res := NewExecutor(rt, sch).Execute(context.Background(), Params{Document: mustParse(t, "{ a b c }")})

	want := &ExecutionResult{Data: map[string]any{"a": "A", "b": "B", "c": "C"}, Errors: []GraphQLError{}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	wantCalls := []Call{
		{Kind: CallKindSync, ObjectType: "Query", Field: "a", Args: map[string]any{}},
		{Kind: CallKindSync, ObjectType: "Query", Field: "c", Args: map[string]any{}},
		{Kind: CallKindAsync, ObjectType: "Query", Field: "b", Args: map[string]any{}, BatchID: 1},
	}
	if diff := cmp.Diff(wantCalls, rt.GetCalls()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestOrdering_MergedSelections(t *testing.T) {
	sch := newTestSchema(
		testObject("Query", schema.NewField("obj", "", schema.NamedType("Obj"))),
		testObject("Obj", schema.NewField("a", "", schema.NamedType("Sub"))),
		testObject("Sub", str("x"), str("y")),
	)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.obj": NewMockValueResolver(map[string]any{}),
		"Obj.a":     NewMockValueResolver(map[string]any{}),
		"Sub.x":     NewMockValueResolver("X"),
		"Sub.y":     NewMockValueResolver("Y"),
	})

	res := NewExecutor(rt, sch).Execute(context.Background(), Params{Document: mustParse(t, "{ obj { a { x } a { y } } }")})

	require.Equal(t, map[string]any{"obj": map[string]any{"a": map[string]any{"x": "X", "y": "Y"}}}, res.Data)
	var fields []string
	for _, c := range rt.GetCalls() {
		fields = append(fields, c.ObjectType+"."+c.Field)
	}
	require.Equal(t, []string{"Query.obj", "Obj.a", "Sub.x", "Sub.y"}, fields, "a is resolved once for both selections")
}

func TestOrdering_OneBatchPerAsyncDepth(t *testing.T) {
	node := testObject("Node",
		str("name"),
		schema.NewField("child", "", schema.NamedType("Node")).SetAsync(true),
	)
	sch := newTestSchema(
		testObject("Query", schema.NewField("roots", "", schema.ListType(schema.NamedType("Node"))).SetAsync(true)),
		node,
	)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.roots": NewMockValueResolver([]any{map[string]any{"name": "r1"}, map[string]any{"name": "r2"}}),
		"Node.name": func(_ context.Context, source any, _ map[string]any) (any, error) {
			return source.(map[string]any)["name"], nil
		},
		"Node.child": func(_ context.Context, source any, _ map[string]any) (any, error) {
			return map[string]any{"name": source.(map[string]any)["name"].(string) + "'"}, nil
		},
	})

	res := NewExecutor(rt, sch).Execute(context.Background(), Params{Document: mustParse(t, "{ roots { name child { name child { name } } } }")})

	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"roots": []any{
		map[string]any{"name": "r1", "child": map[string]any{"name": "r1'", "child": map[string]any{"name": "r1''"}}},
		map[string]any{"name": "r2", "child": map[string]any{"name": "r2'", "child": map[string]any{"name": "r2''"}}},
	}}, res.Data)

	batches := map[int]int{}
	for _, c := range rt.GetCalls() {
		if c.Kind == CallKindAsync {
			batches[c.BatchID]++
		}
	}
	require.Equal(t, map[int]int{1: 1, 2: 2, 3: 2}, batches)
}
