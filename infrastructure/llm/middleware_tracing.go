package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-council/internal/domain"
)

// tracedProvider wraps each call in an OpenTelemetry span.
type tracedProvider struct {
	next   Provider
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that adds distributed tracing to
// requests using the globally registered tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next Provider) Provider {
		return &tracedProvider{
			next:   next,
			tracer: tracer,
		}
	}
}

// Send executes the request within an "llm.send" span carrying the model,
// the tool count, and the resulting token usage.
func (t *tracedProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	ctx, span := t.tracer.Start(ctx, "llm.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.next.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.turns", len(req.Turns)),
			attribute.Int("llm.tools", len(req.Tools)),
			attribute.String("llm.reasoning_effort", string(req.ReasoningEffort)),
		),
	)
	defer span.End()

	resp, err := t.next.Send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Name returns the wrapped provider's family name.
func (t *tracedProvider) Name() string { return t.next.Name() }
