package spl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/splgraph/internal/language"
	"github.com/hanpama/splgraph/internal/treepath"
)

type visit struct {
	Path  string
	Query string
}

func walkAll(t *testing.T, query, operationName string) []visit {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	var got []visit
	Walk(doc, operationName, func(path treepath.Path, q string, _ *language.Field) {
		got = append(got, visit{Path: path.String(), Query: q})
	})
	return got
}

func TestWalk(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		operation string
		want      []visit
	}{
		{
			name:  "top level",
			query: `{ users @SPL(query: "a") { id } }`,
			want:  []visit{{"users", "a"}},
		},
		{
			name:  "alias names the path",
			query: `{ adults: users @SPL(query: "a") { id } }`,
			want:  []visit{{"adults", "a"}},
		},
		{
			name:  "nested under object and list",
			query: `{ viewer { team { members @SPL(query: "m") { friends @SPL(query: "f") { id } } } } }`,
			want:  []visit{{"viewer.team.members", "m"}, {"viewer.team.members.friends", "f"}},
		},
		{
			name:  "siblings in declaration order",
			query: `{ b: users @SPL(query: "1") { id } a: users @SPL(query: "2") { id } plain { id } }`,
			want:  []visit{{"b", "1"}, {"a", "2"}},
		},
		{
			name:  "unannotated fields are not visited",
			query: `{ users { id friends { id } } }`,
			want:  nil,
		},
		{
			name:  "inline fragment",
			query: `{ node { ... on Team { members @SPL(query: "x") { id } } } }`,
			want:  []visit{{"node.members", "x"}},
		},
		{
			name:  "fragment spread",
			query: `{ viewer { ...Members } } fragment Members on Viewer { list: members @SPL(query: "x") { id } }`,
			want:  []visit{{"viewer.list", "x"}},
		},
		{
			name:  "recursive fragment spread",
			query: `{ viewer { ...A } } fragment A on Viewer { items @SPL(query: "x") { ...A } }`,
			want:  []visit{{"viewer.items", "x"}},
		},
		{
			name:      "named operation",
			query:     `query One { a @SPL(query: "1") { id } } query Two { b @SPL(query: "2") { id } }`,
			operation: "Two",
			want:      []visit{{"b", "2"}},
		},
		{
			name:  "ambiguous operation",
			query: `query One { a @SPL(query: "1") { id } } query Two { b @SPL(query: "2") { id } }`,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, walkAll(t, tt.query, tt.operation))
		})
	}
}

func TestWalk_PathsAreIndependent(t *testing.T) {
	doc, err := language.ParseQuery(`{ a { b @SPL(query: "1") { id } c @SPL(query: "2") { id } } }`)
	require.NoError(t, err)

	var paths []treepath.Path
	Walk(doc, "", func(path treepath.Path, _ string, _ *language.Field) {
		paths = append(paths, path)
	})

	require.Len(t, paths, 2)
	assert.Equal(t, treepath.Path{"a", "b"}, paths[0])
	assert.Equal(t, treepath.Path{"a", "c"}, paths[1])
}

func TestWalk_NilInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		Walk(nil, "", func(treepath.Path, string, *language.Field) { t.Fatal("unexpected visit") })
	})
	doc, err := language.ParseQuery(`{ a @SPL(query: "1") { id } }`)
	require.NoError(t, err)
	assert.NotPanics(t, func() { Walk(doc, "", nil) })
}
