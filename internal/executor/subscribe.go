package executor

import (
	"context"
	"errors"
	"fmt"

	language "github.com/hanpama/splgraph/internal/language"
)

// ErrSubscriptionsUnsupported is returned by Subscribe when the runtime does
// not implement SubscriptionRuntime.
var ErrSubscriptionsUnsupported = errors.New("runtime does not support subscriptions")

// Subscribe starts a subscription operation and returns its result stream.
//
// The single root field is resolved through SubscriptionRuntime.Subscribe.
// Every source event is executed against the operation's selection set with
// the event as root value. Plugins see the stream once through OnExecuteDone
// and may wrap it to transform each increment.
func (e *Executor) Subscribe(ctx context.Context, p Params) (ResultStream, error) {
	if p.Document == nil {
		return nil, errors.New("missing query document")
	}
	operation := getOperation(p.Document, p.OperationName)
	if operation == nil {
		return nil, errors.New("operation not found")
	}
	if operation.Operation != language.Subscription {
		return nil, fmt.Errorf("operation %q is a %s, not a subscription", operation.Name, operation.Operation)
	}
	srt, ok := e.runtime.(SubscriptionRuntime)
	if !ok {
		return nil, ErrSubscriptionsUnsupported
	}
	rootType, err := e.rootType(language.Subscription)
	if err != nil {
		return nil, err
	}

	variables, err := coerceVariableValues(e.schema, operation, p.Variables)
	if err != nil {
		return nil, err
	}

	state := e.newState(ctx, p.Document, variables)
	fields := collectFields(state, rootType, operation.SelectionSet).orderedFields()
	if len(fields) != 1 {
		return nil, fmt.Errorf("subscription must select exactly one top level field, got %d", len(fields))
	}
	field := fields[0].Fields[0]
	fieldDef := rootType.Field(field.Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("Cannot query field '%s' on type '%s'", field.Name, rootType.Name)
	}
	args, ok := coerceArgumentValues(fieldDef, field.Arguments, variables, state, Path{fields[0].ResponseName})
	if !ok {
		return nil, state.errors[0]
	}

	events, err := srt.Subscribe(ctx, rootType.Name, field.Name, args)
	if err != nil {
		return nil, err
	}

	hooks := e.beginExecute(p)
	out := make(chan *ExecutionResult)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				res := e.executeOperation(ctx, p.Document, operation, variables, event)
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return finishStream(ctx, p, hooks, out), nil
}
