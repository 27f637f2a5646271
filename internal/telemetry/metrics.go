// Package telemetry exposes the capture pipeline's OpenTelemetry counters.
// Instruments come from the global meter provider; exporter wiring is the
// embedding application's concern.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"voicegate/internal/domain"
)

const meterName = "voicegate"

// Metrics holds the pipeline's instruments. A nil *Metrics is valid and
// records nothing, so tests and minimal embeddings can pass nil.
type Metrics struct {
	sessionsStarted metric.Int64Counter
	sessionsFailed  metric.Int64Counter
	finals          metric.Int64Counter
	parseErrors     metric.Int64Counter
	tooShort        metric.Int64Counter
}

func New() (*Metrics, error) {
	meter := otel.Meter(meterName)

	m := &Metrics{}
	var err error
	if m.sessionsStarted, err = meter.Int64Counter("voicegate.sessions.started",
		metric.WithDescription("Capture sessions that reached the active state")); err != nil {
		return nil, err
	}
	if m.sessionsFailed, err = meter.Int64Counter("voicegate.sessions.failed",
		metric.WithDescription("Capture sessions aborted by a pipeline error")); err != nil {
		return nil, err
	}
	if m.finals, err = meter.Int64Counter("voicegate.transcripts.final",
		metric.WithDescription("Final transcripts committed to the composer")); err != nil {
		return nil, err
	}
	if m.parseErrors, err = meter.Int64Counter("voicegate.messages.parse_errors",
		metric.WithDescription("Inbound vendor messages dropped as malformed")); err != nil {
		return nil, err
	}
	if m.tooShort, err = meter.Int64Counter("voicegate.sessions.too_short",
		metric.WithDescription("Captures discarded for being below the minimum duration")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) SessionStarted(ctx context.Context, strategy domain.CaptureStrategy) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", string(strategy.Kind)),
		attribute.String("vendor", string(strategy.Vendor)),
	))
}

func (m *Metrics) SessionFailed(ctx context.Context, code domain.ErrorCode) {
	if m == nil {
		return
	}
	m.sessionsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}

func (m *Metrics) FinalCommitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.finals.Add(ctx, 1)
}

func (m *Metrics) ParseError(ctx context.Context, vendor domain.VendorID) {
	if m == nil {
		return
	}
	m.parseErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("vendor", string(vendor))))
}

func (m *Metrics) TooShort(ctx context.Context) {
	if m == nil {
		return
	}
	m.tooShort.Add(ctx, 1)
}
