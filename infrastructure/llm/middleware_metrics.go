package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricProviderRequest = "llm_request"
	MetricRequestsTotal   = "llm_requests_total"
	MetricTokensTotal     = "llm_tokens_total"
	MetricToolCallsTotal  = "llm_tool_calls_total"
)

// metricsProvider records latency, outcome, and token usage per call.
type metricsProvider struct {
	next      Provider
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
// This enables monitoring of usage, performance, and abstention causes
// across provider families.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next Provider) Provider {
		return &metricsProvider{
			next:      next,
			collector: collector,
		}
	}
}

// Send executes the request while collecting metrics labelled by
// provider, model, and status.
func (m *metricsProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	start := time.Now()
	resp, err := m.next.Send(ctx, req)

	if m.collector == nil {
		return resp, err
	}

	labels := map[string]string{
		"provider": m.next.Name(),
		"model":    req.Model,
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordLatency(MetricProviderRequest, time.Since(start), labels)
	m.collector.RecordCounter(MetricRequestsTotal, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricTokensTotal, float64(resp.Usage.InputTokens), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricTokensTotal, float64(resp.Usage.OutputTokens), withLabel(labels, "token_type", "output"))
		if n := len(resp.ToolCalls); n > 0 {
			m.collector.RecordCounter(MetricToolCallsTotal, float64(n), labels)
		}
	}

	return resp, err
}

// Name returns the wrapped provider's family name.
func (m *metricsProvider) Name() string { return m.next.Name() }

// requestStatus maps an outcome to a low-cardinality status label.
func requestStatus(ctx context.Context, err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Type.String() != "" {
		return pe.Type.String()
	}
	return "error"
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}
