// Package executor runs GraphQL operations against a Runtime and hands every
// result to plugins before it leaves the package.
//
// # Execution
//
// Execution is breadth first. Fields marked schema.Field.Async are queued
// while a depth is expanded and resolved together with one
// Runtime.BatchResolveAsync call per depth; all other fields go through
// Runtime.ResolveSync and are completed on the spot, so a purely synchronous
// descent never adds a batch. For an operation whose deepest chain contains d
// async fields, BatchResolveAsync is called exactly d times.
//
// Before the first depth the executor picks the operation (by name, or the
// only one in the document), applies variable defaults and input coercion,
// and rejects the request if a variable cannot be coerced. Field arguments are
// coerced per field; a field with bad arguments is not resolved and becomes a
// located error.
//
// Field collection follows @skip and @include, expands each named fragment
// once, and matches type conditions against the concrete object type, the
// interfaces it implements and the unions that contain it.
//
// # Completion and errors
//
// Values are completed by type: leaves through Runtime.SerializeLeafValue,
// interfaces and unions through Runtime.ResolveType, lists element by element
// with indexed paths. A null or error in a Non-Null position nulls the
// nearest nullable ancestor, and async tasks queued under that ancestor are
// dropped before the next batch. Errors carry the response path and do not
// stop sibling fields.
//
// # Plugins
//
// Execute asks every registered Plugin for its ExecuteHooks, runs the
// operation and passes the result through each OnExecuteDone hook in
// registration order. A hook may replace the result with
// ExecuteDonePayload.SetResult; the last committed value wins. Subscribe does
// the same for a ResultStream, and HandleStreamOrSingle lets a hook apply one
// handler to both shapes.
//
// # Subscriptions
//
// Subscribe resolves the single root field through SubscriptionRuntime. Each
// source event then runs as its own operation with the event as root value,
// and results are delivered in event order until the source closes or the
// context ends.
package executor
