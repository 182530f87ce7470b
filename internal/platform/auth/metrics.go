package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const authMetricNamespace = "github.com/jara-commerce/api/auth"

// OTelMetrics records token verification outcomes as OpenTelemetry instruments.
type OTelMetrics struct {
	verifications metric.Int64Counter
	latency       metric.Float64Histogram
}

// NewOTelMetrics builds a recorder on meter, falling back to the global provider when nil.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(authMetricNamespace)
	}
	verifications, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Token verifications by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("auth.verification.latency",
		metric.WithDescription("Token verification latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelMetrics{verifications: verifications, latency: latency}, nil
}

// RecordVerification implements MetricsRecorder.
func (m *OTelMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.verifications.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
