package spl

import (
	"context"
	"time"

	"github.com/hanpama/splgraph/internal/eventbus"
	"github.com/hanpama/splgraph/internal/events"
	"github.com/hanpama/splgraph/internal/executor"
	"github.com/hanpama/splgraph/internal/filter"
)

// DiagnosticSink receives the diagnostics of every rewritten result.
type DiagnosticSink func(ctx context.Context, p executor.Params, d Diagnostic)

// Option configures a Plugin.
type Option func(*Plugin)

// WithDiagnosticSink registers sink in addition to the event bus.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(pl *Plugin) { pl.sink = sink }
}

// Plugin is an executor.Plugin that rewrites each execution result, and
// each increment of a subscription stream, with a Rewriter.
type Plugin struct {
	rewriter *Rewriter
	sink     DiagnosticSink
}

var _ executor.Plugin = (*Plugin)(nil)

// NewPlugin returns a Plugin filtering lists with engine.
func NewPlugin(engine filter.Engine, opts ...Option) *Plugin {
	pl := &Plugin{rewriter: NewRewriter(engine)}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

func (pl *Plugin) OnExecute(p executor.Params) executor.ExecuteHooks {
	return executor.ExecuteHooks{
		OnExecuteDone: func(payload *executor.ExecuteDonePayload) {
			ctx := payload.Context
			if ctx == nil {
				ctx = context.Background()
			}
			executor.HandleStreamOrSingle(payload, func(result *executor.ExecutionResult, set func(*executor.ExecutionResult)) {
				start := time.Now()
				next, diags := pl.rewriter.Rewrite(p, result)
				pl.report(ctx, p, diags)
				if len(diags) > 0 {
					eventbus.Publish(ctx, events.SPLRewrite{
						OperationName: p.OperationName,
						Directives:    len(diags),
						Changed:       next != result,
						Duration:      time.Since(start),
					})
				}
				if next != result {
					set(next)
				}
			})
		},
	}
}

func (pl *Plugin) report(ctx context.Context, p executor.Params, diags []Diagnostic) {
	for _, d := range diags {
		eventbus.Publish(ctx, events.SPLDirective{
			OperationName: p.OperationName,
			Path:          d.Path.String(),
			Query:         d.Query,
			Outcome:       string(d.Kind),
			Severity:      d.Severity.String(),
			Message:       d.Message,
			Type:          d.Type,
			Before:        d.Before,
			After:         d.After,
			Err:           d.Err,
		})
		if pl.sink != nil {
			pl.sink(ctx, p, d)
		}
	}
}
