// Package metrics exposes Prometheus metrics for GraphQL operations and @SPL
// rewriting, fed from the event bus.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	eventbus "github.com/hanpama/splgraph/internal/eventbus"
	events "github.com/hanpama/splgraph/internal/events"
)

const namespace = "splgraph"

// Metrics contains the collectors registered by New.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	activeSubscriptions prometheus.Gauge
	directivesTotal     *prometheus.CounterVec
	rewriteDuration     *prometheus.HistogramVec
	itemsRemoved        prometheus.Counter
}

// New registers the collectors with registerer, or with the default
// registerer when it is nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status_code"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "requests_total",
				Help:      "Total number of GraphQL operations",
			},
			[]string{"operation_type", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "request_duration_seconds",
				Help:      "GraphQL operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation_type"},
		),
		activeSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "active_subscriptions",
				Help:      "Number of open GraphQL subscriptions",
			},
		),
		directivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spl",
				Name:      "directives_total",
				Help:      "Total number of @SPL directives evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		rewriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "spl",
				Name:      "rewrite_duration_seconds",
				Help:      "Time spent rewriting one execution result",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"changed"},
		),
		itemsRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spl",
				Name:      "items_removed_total",
				Help:      "Total number of list items removed by @SPL filtering",
			},
		),
	}
}

// Subscribe updates m from events published on the global bus.
func Subscribe(m *Metrics) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			m.httpRequestsTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.requestsTotal.WithLabelValues(operationType(e.OperationType), status).Inc()
			m.requestDuration.WithLabelValues(operationType(e.OperationType)).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			m.activeSubscriptions.Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			m.activeSubscriptions.Dec()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SPLDirective) {
			m.directivesTotal.WithLabelValues(e.Outcome).Inc()
			if e.Outcome == "processed" && e.Before > e.After {
				m.itemsRemoved.Add(float64(e.Before - e.After))
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SPLRewrite) {
			m.rewriteDuration.WithLabelValues(strconv.FormatBool(e.Changed)).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func operationType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
