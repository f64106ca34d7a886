package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockResolver resolves one field for one source value.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Call kinds recorded by MockRuntime.
const (
	CallKindSync      = "sync"
	CallKindAsync     = "async"
	CallKindSubscribe = "subscribe"
)

// NewMockValueResolver returns a MockResolver that always returns val.
func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

// Call records one resolver invocation. Async calls made in the same
// BatchResolveAsync share a BatchID; sync and subscribe calls use 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime is an in-memory Runtime for tests. Resolvers and subscription
// events are keyed by "Type.field"; a field without a resolver resolves to
// null. Abstract values are typed by their "__typename" key.
type MockRuntime struct {
	mu            sync.Mutex
	resolvers     map[string]MockResolver
	subscriptions map[string][]any
	calls         []Call
	batches       int
}

var (
	_ Runtime             = (*MockRuntime)(nil)
	_ SubscriptionRuntime = (*MockRuntime)(nil)
)

// NewMockRuntime returns a MockRuntime serving the given resolvers.
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers:     make(map[string]MockResolver, len(resolvers)),
		subscriptions: make(map[string][]any),
	}
	for k, r := range resolvers {
		m.resolvers[k] = r
	}
	return m
}

// SetResolver registers or replaces the resolver of objectType.field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[objectType+"."+field] = resolver
}

// SetSubscription registers the source events Subscribe replays for the
// root field objectType.field.
func (m *MockRuntime) SetSubscription(objectType, field string, events ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[objectType+"."+field] = events
}

// GetCalls returns the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MockRuntime) record(c Call) MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.resolvers[c.ObjectType+"."+c.Field]
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	r := m.record(Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args})
	if r == nil {
		return nil, nil
	}
	return r(ctx, source, args)
}

// BatchResolveAsync resolves tasks grouped by field, groups in order of first
// appearance, and records one Call per task.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	batch := m.batches
	m.mu.Unlock()

	var order []string
	groups := make(map[string][]int)
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		for _, i := range groups[key] {
			t := tasks[i]
			r := m.record(Call{Kind: CallKindAsync, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, BatchID: batch})
			if r == nil {
				continue
			}
			v, err := r(ctx, t.Source, t.Args)
			results[i] = AsyncResolveResult{Value: v, Error: err}
		}
	}
	return results
}

// Subscribe replays the registered events on a closed, buffered channel.
func (m *MockRuntime) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (<-chan any, error) {
	m.record(Call{Kind: CallKindSubscribe, ObjectType: objectType, Field: field, Args: args})
	m.mu.Lock()
	events, ok := m.subscriptions[objectType+"."+field]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no subscription registered for %s.%s", objectType, field)
	}
	ch := make(chan any, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", errors.New("cannot resolve type")
}

func (m *MockRuntime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return value, nil
}

func (m *MockRuntime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return value, nil
}

func (m *MockRuntime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	return value, nil
}
