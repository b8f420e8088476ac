package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "mito-ai"

// Metrics holds the server's metric instruments.
type Metrics struct {
	CompletionsTotal  metric.Int64Counter
	CompletionErrors  metric.Int64Counter
	ProviderLatency   metric.Float64Histogram
	ActiveConnections metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CompletionsTotal, err = meter.Int64Counter("mito_ai.completions.total",
		metric.WithDescription("Number of completion requests served"))
	if err != nil {
		return nil, err
	}

	m.CompletionErrors, err = meter.Int64Counter("mito_ai.completions.errors",
		metric.WithDescription("Number of completion requests that failed"))
	if err != nil {
		return nil, err
	}

	m.ProviderLatency, err = meter.Float64Histogram("mito_ai.provider.latency_seconds",
		metric.WithDescription("Provider round-trip latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter("mito_ai.websocket.connections",
		metric.WithDescription("Open websocket connections"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
