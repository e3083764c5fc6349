package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"keygate/internal/api"
)

// GateMetrics records request gate outcomes. It satisfies
// api.DecisionRecorder.
type GateMetrics struct {
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewGateMetrics creates the gate instruments on the global MeterProvider.
func NewGateMetrics() (*GateMetrics, error) {
	meter := otel.Meter("keygate/gate")

	decisions, err := meter.Int64Counter(
		"gate.decisions",
		metric.WithDescription("Requests handled by the API key gate, by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"gate.request.duration",
		metric.WithDescription("Time from gate admission to the end of the response"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &GateMetrics{decisions: decisions, duration: duration}, nil
}

func (g *GateMetrics) RecordDecision(ctx context.Context, decision api.Decision, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(decision)))
	g.decisions.Add(ctx, 1, attrs)
	g.duration.Record(ctx, elapsed.Seconds(), attrs)
}

var _ api.DecisionRecorder = (*GateMetrics)(nil)
