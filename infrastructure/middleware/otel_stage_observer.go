package middleware

import (
	"context"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-council/internal/ports"
)

// StageTurn is the stage name covering a whole conversation turn.
const StageTurn = "turn"

var _ ports.StageObserver = (*OTelStageObserver)(nil)

// OTelStageObserver traces each pipeline stage as an OpenTelemetry span and
// forwards stage latency, abstentions, and turn cost to a MetricsCollector.
// A single instance serves concurrent turns; per-stage state lives in the
// span carried by the context.
type OTelStageObserver struct {
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
	inFlight atomic.Int64
}

// NewOTelStageObserver creates a stage observer. metrics may be nil.
func NewOTelStageObserver(metrics ports.MetricsCollector) *OTelStageObserver {
	return &OTelStageObserver{
		metrics: metrics,
		tracer:  otel.Tracer("council-pipeline"),
	}
}

// PreStage starts a span named after the stage.
func (o *OTelStageObserver) PreStage(ctx context.Context, stage string, models []string) context.Context {
	ctx, span := o.tracer.Start(ctx, "council."+stage)
	span.SetAttributes(
		attribute.String("council.stage", stage),
		attribute.Int("council.models", len(models)),
		attribute.String("council.model_ids", strings.Join(models, ",")),
	)
	if stage == StageTurn {
		n := o.inFlight.Add(1)
		if o.metrics != nil {
			o.metrics.RecordGauge(MetricTurnsInFlight, float64(n), nil)
		}
	}
	return ctx
}

// PostStage finalizes the stage span and records metrics.
func (o *OTelStageObserver) PostStage(ctx context.Context, stage string, outcome ports.StageOutcome) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int("council.responses", outcome.Responses),
		attribute.Int("council.abstentions", len(outcome.Abstained)),
		attribute.Float64("council.cost_usd", outcome.Cost),
	)
	for _, model := range outcome.Abstained {
		span.AddEvent("model.abstained", trace.WithAttributes(attribute.String("model", model)))
	}

	if o.metrics != nil {
		labels := map[string]string{"stage": stage}
		o.metrics.RecordLatency(MetricStageDuration, outcome.Elapsed, labels)
		for _, model := range outcome.Abstained {
			o.metrics.RecordCounter(MetricAbstentionsTotal, 1, map[string]string{"stage": stage, "model": model})
		}
		if stage == StageTurn && outcome.Err == nil {
			o.metrics.RecordHistogram(MetricTurnCost, outcome.Cost, labels)
		}
	}
	if stage == StageTurn {
		n := o.inFlight.Add(-1)
		if o.metrics != nil {
			o.metrics.RecordGauge(MetricTurnsInFlight, float64(n), nil)
		}
	}

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
