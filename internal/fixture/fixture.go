// Package fixture serves GraphQL operations from a static document.
//
// A fixture is a JSON or YAML object keyed by root type name. Every value
// below a root type is the raw value of the field with the same name:
//
//	Query:
//	  users:
//	    - {id: 1, name: Alice, age: 30}
//	Subscription:
//	  userAdded:
//	    - {id: 4, name: Dan, age: 41}
//
// Subscription fields hold a list of events that are replayed in order.
package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/splgraph/internal/executor"
)

// Decode parses a JSON or YAML document into plain Go values. Mappings become
// map[string]any and sequences []any.
func Decode(data []byte) (any, error) {
	var out any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return normalize(out), nil
}

// Runtime implements executor.Runtime and executor.SubscriptionRuntime over a
// fixture document.
type Runtime struct {
	root     map[string]any
	interval time.Duration
}

var (
	_ executor.Runtime             = (*Runtime)(nil)
	_ executor.SubscriptionRuntime = (*Runtime)(nil)
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithEventInterval spaces replayed subscription events by d.
func WithEventInterval(d time.Duration) Option {
	return func(r *Runtime) { r.interval = d }
}

// New returns a Runtime serving root.
func New(root map[string]any, opts ...Option) *Runtime {
	if root == nil {
		root = map[string]any{}
	}
	r := &Runtime{root: root}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the fixture file at path.
func Load(path string, opts ...Option) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	if doc == nil {
		return New(nil, opts...), nil
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fixture %s: top level must be an object, got %T", path, doc)
	}
	return New(root, opts...), nil
}

// ResolveSync returns source[field]. Root fields are read from the entry of
// their root type.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if source == nil {
		source = r.root[objectType]
	}
	m, ok := source.(map[string]any)
	if !ok {
		return nil, nil
	}
	return m[field], nil
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	out := make([]executor.AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		v, err := r.ResolveSync(ctx, t.ObjectType, t.Field, t.Source, t.Args)
		out[i] = executor.AsyncResolveResult{Value: v, Error: err}
	}
	return out
}

// ResolveType reads the __typename member of value.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s: value has no __typename", abstractType)
}

func (r *Runtime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return value, nil
}

func (r *Runtime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return value, nil
}

// SerializeLeafValue passes leaves through, converting between integral and
// floating point numbers for Int and Float.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	switch scalarOrEnumTypeName {
	case "Int":
		if f, ok := value.(float64); ok {
			if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
				return nil, fmt.Errorf("Int cannot represent non-integer value: %v", f)
			}
			return int(f), nil
		}
	case "Float":
		if i, ok := value.(int); ok {
			return float64(i), nil
		}
	}
	return value, nil
}

// Subscribe replays the events listed under objectType.field. Each event is
// delivered as {field: event} so that the root field resolves to it.
func (r *Runtime) Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error) {
	fields, _ := r.root[objectType].(map[string]any)
	raw, ok := fields[field]
	if !ok {
		return nil, fmt.Errorf("no events for %s.%s", objectType, field)
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("events for %s.%s must be a list, got %T", objectType, field, raw)
	}

	ch := make(chan any)
	go func() {
		defer close(ch)
		for i, entry := range entries {
			if i > 0 && r.interval > 0 {
				t := time.NewTimer(r.interval)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			select {
			case ch <- map[string]any{field: entry}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
