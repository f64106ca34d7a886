// Package otel exports traces built from eventbus events.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/splgraph/internal/eventbus"
	events "github.com/hanpama/splgraph/internal/events"
	reqid "github.com/hanpama/splgraph/internal/reqid"
)

// Setup installs an OTLP/gRPC tracer provider and registers the event
// subscribers. With an empty endpoint nothing is installed. The returned
// function unsubscribes and flushes pending spans.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(otel.Tracer("splgraph"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register turns bus events into spans created by tracer. Spans of one
// request are correlated by request ID:
//
//	http.request
//	└── graphql.operation | graphql.subscription
//	    └── spl.rewrite
//
// Each @SPL directive is an event on the operation span.
func Register(tracer trace.Tracer) (unsubscribe func()) {
	t := &tracing{tracer: tracer}
	unsubs := []func(){
		eventbus.Subscribe(t.httpStart),
		eventbus.Subscribe(t.httpFinish),
		eventbus.Subscribe(t.operationStart),
		eventbus.Subscribe(t.operationFinish),
		eventbus.Subscribe(t.subscriptionStart),
		eventbus.Subscribe(t.subscriptionFinish),
		eventbus.Subscribe(t.directive),
		eventbus.Subscribe(t.rewrite),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// spans holds the open spans of one level, keyed by request ID.
type spans struct{ m sync.Map }

func (s *spans) put(ctx context.Context, span trace.Span) {
	rid, _ := reqid.FromContext(ctx)
	s.m.Store(rid, span)
}

func (s *spans) get(ctx context.Context) (trace.Span, bool) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.m.Load(rid)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (s *spans) take(ctx context.Context) (trace.Span, bool) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.m.LoadAndDelete(rid)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

type tracing struct {
	tracer     trace.Tracer
	requests   spans
	operations spans
}

// under returns ctx carrying the innermost open span of its request.
func (t *tracing) under(ctx context.Context, levels ...*spans) context.Context {
	for _, level := range levels {
		if span, ok := level.get(ctx); ok {
			return trace.ContextWithSpan(ctx, span)
		}
	}
	return ctx
}

func (t *tracing) httpStart(ctx context.Context, e events.HTTPStart) {
	_, span := t.tracer.Start(ctx, "http.request", trace.WithAttributes(
		semconv.HTTPMethodKey.String(e.Request.Method),
		attribute.String("http.target", e.Request.URL.Path),
	))
	t.requests.put(ctx, span)
}

func (t *tracing) httpFinish(ctx context.Context, e events.HTTPFinish) {
	if span, ok := t.requests.take(ctx); ok {
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		span.End()
	}
}

func (t *tracing) operationStart(ctx context.Context, e events.GraphQLStart) {
	_, span := t.tracer.Start(t.under(ctx, &t.requests), "graphql.operation", trace.WithAttributes(
		attribute.String("graphql.operation.name", e.OperationName),
		attribute.String("graphql.operation.type", e.OperationType),
	))
	t.operations.put(ctx, span)
}

func (t *tracing) operationFinish(ctx context.Context, e events.GraphQLFinish) {
	if span, ok := t.operations.take(ctx); ok {
		span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
		span.End()
	}
}

func (t *tracing) subscriptionStart(ctx context.Context, e events.SubscriptionStart) {
	_, span := t.tracer.Start(t.under(ctx, &t.requests), "graphql.subscription", trace.WithAttributes(
		attribute.String("graphql.operation.name", e.OperationName),
	))
	t.operations.put(ctx, span)
}

func (t *tracing) subscriptionFinish(ctx context.Context, e events.SubscriptionFinish) {
	if span, ok := t.operations.take(ctx); ok {
		span.SetAttributes(attribute.Int("graphql.subscription.results", e.Results))
		span.End()
	}
}

func (t *tracing) directive(ctx context.Context, e events.SPLDirective) {
	span, ok := t.operations.get(ctx)
	if !ok {
		return
	}
	span.AddEvent("spl.directive", trace.WithAttributes(
		attribute.String("spl.path", e.Path),
		attribute.String("spl.query", e.Query),
		attribute.String("spl.outcome", e.Outcome),
		attribute.Int("spl.items.before", e.Before),
		attribute.Int("spl.items.after", e.After),
	))
	if e.Err != nil {
		span.RecordError(e.Err)
	}
}

// rewrite records a finished rewrite pass after the fact, so the span is
// backdated by its duration.
func (t *tracing) rewrite(ctx context.Context, e events.SPLRewrite) {
	end := time.Now()
	_, span := t.tracer.Start(t.under(ctx, &t.operations, &t.requests), "spl.rewrite",
		trace.WithTimestamp(end.Add(-e.Duration)),
		trace.WithAttributes(
			attribute.Int("spl.directives", e.Directives),
			attribute.Bool("spl.changed", e.Changed),
		))
	span.End(trace.WithTimestamp(end))
}
