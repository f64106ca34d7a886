package executor

import "context"

// Plugin hooks into the execution lifecycle. OnExecute is called once per
// operation before execution starts; the hooks it returns are invoked for
// that operation only.
type Plugin interface {
	OnExecute(p Params) ExecuteHooks
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(p Params) ExecuteHooks

func (f PluginFunc) OnExecute(p Params) ExecuteHooks { return f(p) }

// ExecuteHooks are the per-operation callbacks returned by a Plugin.
type ExecuteHooks struct {
	// OnExecuteDone runs after the executor produced a result or, for
	// subscriptions, a result stream.
	OnExecuteDone func(payload *ExecuteDonePayload)
}

// ExecuteDonePayload carries the outcome of an execution to OnExecuteDone.
// Exactly one of Result and Stream is set.
type ExecuteDonePayload struct {
	Context context.Context
	Params  Params
	Result  *ExecutionResult
	Stream  ResultStream
}

// SetResult replaces the single result handed to later hooks and returned to
// the caller.
func (p *ExecuteDonePayload) SetResult(r *ExecutionResult) { p.Result = r }

// SetStream replaces the result stream.
func (p *ExecuteDonePayload) SetStream(s ResultStream) { p.Stream = s }

// ResultStream delivers the results of a subscription, one per source event.
// It is closed when the source ends or the context is cancelled.
type ResultStream <-chan *ExecutionResult

// ResultHandler inspects one result and may commit a replacement through set.
// Not calling set leaves the result as it is.
type ResultHandler func(result *ExecutionResult, set func(*ExecutionResult))

// HandleStreamOrSingle applies fn to the payload's single result, or installs
// a stream that applies fn to every increment in delivery order.
func HandleStreamOrSingle(payload *ExecuteDonePayload, fn ResultHandler) {
	if payload.Stream == nil {
		current := payload.Result
		fn(current, func(r *ExecutionResult) { current = r })
		payload.SetResult(current)
		return
	}
	payload.SetStream(mapStream(payload.Context, payload.Stream, fn))
}

func mapStream(ctx context.Context, in ResultStream, fn ResultHandler) ResultStream {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make(chan *ExecutionResult)
	go func() {
		defer close(out)
		for r := range in {
			current := r
			fn(current, func(next *ExecutionResult) { current = next })
			select {
			case out <- current:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (e *Executor) beginExecute(p Params) []ExecuteHooks {
	if len(e.plugins) == 0 {
		return nil
	}
	hooks := make([]ExecuteHooks, 0, len(e.plugins))
	for _, pl := range e.plugins {
		hooks = append(hooks, pl.OnExecute(p))
	}
	return hooks
}

func finishSingle(ctx context.Context, p Params, hooks []ExecuteHooks, result *ExecutionResult) *ExecutionResult {
	payload := &ExecuteDonePayload{Context: ctx, Params: p, Result: result}
	for _, h := range hooks {
		if h.OnExecuteDone != nil {
			h.OnExecuteDone(payload)
		}
	}
	return payload.Result
}

func finishStream(ctx context.Context, p Params, hooks []ExecuteHooks, stream ResultStream) ResultStream {
	payload := &ExecuteDonePayload{Context: ctx, Params: p, Stream: stream}
	for _, h := range hooks {
		if h.OnExecuteDone != nil {
			h.OnExecuteDone(payload)
		}
	}
	return payload.Stream
}
