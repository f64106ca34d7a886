package executor

import "context"

// Runtime is the data side of execution: field resolution, batching,
// abstract type resolution and leaf serialization.
//
// Contract:
//   - At each depth the Executor drains synchronous fields through ResolveSync
//     and then makes at most one BatchResolveAsync call with every async task
//     found at that depth. ResolveSync is never called for an async field.
//   - objectType and field name the GraphQL type and field ("User", "posts");
//     root fields use the root type name and a nil source. args hold coerced
//     Go values and must not be mutated, and neither may source.
//   - A returned error becomes a located GraphQL error. In a Non-Null position
//     the null propagates to the nearest nullable ancestor, and tasks queued
//     below it are dropped before the next batch.
//   - BatchResolveAsync returns exactly one result per task, results[i] for
//     tasks[i]. Results fail independently.
//   - Methods may be called concurrently for different operations. The
//     Executor never retries.
//
// The fixture runtime serves a static document; other runtimes may call
// remote services and group tasks by (objectType, field) however suits the
// backend.
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately.
	//
	// Called only for fields declared as sync (Async == false). This should
	// perform any required computation synchronously and return the raw value
	// to be completed by the Executor (including nested selection sets).
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	//
	// The Executor calls this exactly once per depth with all async tasks
	// collected at that depth (after draining sync paths). Implementations may
	// further batch/group by (objectType, field) or backend-specific keys.
	//
	// Requirements:
	// - Return len(results) == len(tasks).
	// - Results MUST maintain the same order as tasks (results[i] corresponds to tasks[i]).
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType determines the concrete runtime type name for a value of an
	// abstract GraphQL type (interface or union).
	//
	// Must return a type name that is a possible type of the abstractType in the
	// provided schema; otherwise return an error.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// ResolveUnionConcreteValue converts a union envelope value into its concrete
	// representation prior to completion.
	ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error)

	// ResolveInterfaceConcreteValue converts an interface envelope value into its
	// concrete representation prior to completion.
	ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value according to the GraphQL schema and custom scalar mappings.
	//
	// For enums, return the symbolic name as string. For scalars, return the
	// appropriate Go type (e.g. float64 for Float, int32 for Int unless mapped,
	// string for String/ID, bool for Boolean). For custom scalars, apply any
	// runtime-defined encoding; bytes should be base64-encoded strings.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}

// SubscriptionRuntime is implemented by runtimes that can serve subscription
// operations. Subscribe returns the source event stream for a root
// subscription field; each event becomes the root value of one execution of
// the operation's selection set. The channel must be closed when the source
// ends, and implementations must stop sending once ctx is done.
type SubscriptionRuntime interface {
	Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (<-chan any, error)
}
