package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	executor "github.com/hanpama/splgraph/internal/executor"
	filter "github.com/hanpama/splgraph/internal/filter"
	reqid "github.com/hanpama/splgraph/internal/reqid"
	schema "github.com/hanpama/splgraph/internal/schema"
	spl "github.com/hanpama/splgraph/internal/spl"
)

const testSDL = `
type User {
  name: String!
  age: Int!
}

type Query {
  hello: String
  users: [User!]
}

type Subscription {
  usersChanged: [User!]
}
`

func field(name string) executor.MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return source.(map[string]any)[name], nil
	}
}

func testUsers() []any {
	return []any{
		map[string]any{"name": "ann", "age": 20},
		map[string]any{"name": "bob", "age": 30},
	}
}

func newTestRuntime() *executor.MockRuntime {
	return executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello":               executor.NewMockValueResolver("world"),
		"Query.users":               executor.NewMockValueResolver(testUsers()),
		"Subscription.usersChanged": field("usersChanged"),
		"User.name":                 field("name"),
		"User.age":                  field("age"),
	})
}

func newTestHandler(t *testing.T, rt executor.Runtime, opts ...Option) *Handler {
	t.Helper()
	sch, err := schema.BuildFromSDL(spl.DirectiveTypeDefs, testSDL)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	engine, err := filter.NewCELEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	exec := executor.NewExecutor(rt, sch, executor.WithPlugins(spl.NewPlugin(engine)))
	h, err := New(exec, opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func postJSON(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestNewRequiresExecutor(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil executor")
	}
}

func TestExecuteQuery(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `{"query":"{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got map[string]any
	decode(t, w, &got)
	want := map[string]any{"data": map[string]any{"hello": "world"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestSPLDirectiveRewritesResponse(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `{"query":"query($min: Int) { users @SPL(query: \"item.age > vars.min\") { name age } }","variables":{"min":25}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got map[string]any
	decode(t, w, &got)
	want := map[string]any{"data": map[string]any{"users": []any{map[string]any{"name": "bob", "age": float64(30)}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `{"query":"{ nope }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got struct {
		Data   any
		Errors []responseError
	}
	decode(t, w, &got)
	if got.Data != nil {
		t.Fatalf("expected null data, got %v", got.Data)
	}
	if len(got.Errors) != 1 || len(got.Errors[0].Locations) != 1 {
		t.Fatalf("expected one located error, got %+v", got.Errors)
	}
	if loc := got.Errors[0].Locations[0]; loc.Line != 1 || loc.Column != 3 {
		t.Fatalf("unexpected location %+v", loc)
	}
}

func TestSyntaxError(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `{"query":"{ hello "}`)
	var got struct{ Errors []responseError }
	decode(t, w, &got)
	if len(got.Errors) == 0 {
		t.Fatalf("expected syntax error")
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	tests := []struct {
		name   string
		method string
		ctype  string
		body   string
		status int
	}{
		{name: "invalid json", method: "POST", ctype: "application/json", body: `{`, status: http.StatusBadRequest},
		{name: "missing query", method: "POST", ctype: "application/json", body: `{}`, status: http.StatusBadRequest},
		{name: "empty batch", method: "POST", ctype: "application/json", body: `[]`, status: http.StatusBadRequest},
		{name: "content type", method: "POST", ctype: "text/plain", body: `{"query":"{ hello }"}`, status: http.StatusBadRequest},
		{name: "method", method: "PUT", ctype: "application/json", body: `{"query":"{ hello }"}`, status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.ctype)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `[{"query":"{ hello }"},{"query":"{ users @SPL(query: \"item.name == 'ann'\") { name age } }"}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got []map[string]any
	decode(t, w, &got)
	want := []map[string]any{
		{"data": map[string]any{"hello": "world"}},
		{"data": map[string]any{"users": []any{map[string]any{"name": "ann", "age": float64(20)}}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestGet(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	q := url.Values{}
	q.Set("query", "query($n: String) { users @SPL(query: \"item.name == vars.n\") { name age } }")
	q.Set("variables", `{"n":"bob"}`)
	req := httptest.NewRequest("GET", "/?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got map[string]any
	decode(t, w, &got)
	want := map[string]any{"data": map[string]any{"users": []any{map[string]any{"name": "bob", "age": float64(30)}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscriptionOverHTTPRejected(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	w := postJSON(t, h, `{"query":"subscription { usersChanged { name } }"}`)
	var got struct{ Errors []responseError }
	decode(t, w, &got)
	if len(got.Errors) != 1 || got.Errors[0].Message != "subscriptions are only available over WebSocket" {
		t.Fatalf("unexpected errors %+v", got.Errors)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, newTestRuntime(), WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSSpecificOrigin(t *testing.T) {
	h := newTestHandler(t, newTestRuntime(), WithCORS("http://allowed.test"))

	for origin, want := range map[string]string{
		"http://allowed.test": "http://allowed.test",
		"http://other.test":   "",
	} {
		req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: got %q want %q", origin, got, want)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, newTestRuntime(), WithMaxBodyBytes(10))

	w := postJSON(t, h, `{"query":"1234567890"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	rt := newTestRuntime()
	var capturedID int64
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		capturedID, _ = reqid.FromContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	w := postJSON(t, h, `{"query":"{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if capturedID == 0 {
		t.Fatalf("missing request id in context")
	}
}

func TestPretty(t *testing.T) {
	h := newTestHandler(t, newTestRuntime(), WithPretty())

	w := postJSON(t, h, `{"query":"{ hello }"}`)
	if !bytes.Contains(w.Body.Bytes(), []byte("\n  \"data\"")) {
		t.Fatalf("expected indented body, got %q", w.Body.String())
	}
}

func TestContentTypeWithParameters(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestPreflightWithoutCORS(t *testing.T) {
	h := newTestHandler(t, newTestRuntime())

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}
