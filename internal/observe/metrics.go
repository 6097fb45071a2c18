// Package observe wires the OpenTelemetry metric instruments for tool
// serving. A Prometheus exporter bridge is installed by [InitProvider] so
// the instruments become scrapeable through the standard /metrics endpoint.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/toolrack/toolrack"

// Metrics holds the metric instruments recorded across the catalog, search
// facade, and transports. The underlying OTel types are concurrency-safe.
type Metrics struct {
	// ToolCalls counts tool invocations by tool name and status
	// (ok, error, invalid).
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool execution latency by tool name.
	ToolDuration metric.Float64Histogram

	// SearchRequests counts catalog searches by strategy.
	SearchRequests metric.Int64Counter

	// ActiveSessions tracks live transport sessions by transport kind.
	ActiveSessions metric.Int64UpDownCounter
}

// durationBuckets covers sub-second tool calls up to the multi-minute
// execution deadline.
var durationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 240,
}

// NewMetrics creates all instruments on the given provider. Tests should
// pass a provider backed by a manual reader instead of touching the global.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("toolrack.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("toolrack.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchRequests, err = m.Int64Counter("toolrack.search.requests",
		metric.WithDescription("Total catalog searches by strategy."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("toolrack.active_sessions",
		metric.WithDescription("Number of live transport sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance, created on
// first call against the global OTel provider. Before [InitProvider] runs
// the global provider is a no-op, so recording is free.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall records one invocation outcome and, when a duration is
// known, its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	if seconds > 0 {
		m.ToolDuration.Record(ctx, seconds,
			metric.WithAttributes(attribute.String("tool", tool)),
		)
	}
}

// RecordSearch records one search request for the given strategy.
func (m *Metrics) RecordSearch(ctx context.Context, strategy string) {
	m.SearchRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// SessionOpened and SessionClosed bracket the lifetime of a transport
// session.
func (m *Metrics) SessionOpened(ctx context.Context, transport string) {
	m.ActiveSessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}

func (m *Metrics) SessionClosed(ctx context.Context, transport string) {
	m.ActiveSessions.Add(ctx, -1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}
