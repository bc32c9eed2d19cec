package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

var errEmptyReply = errors.New("provider returned no reply")

// Outcome is one model's result from a fan-out: a response, or the
// abstention that replaced it.
type Outcome struct {
	Response *domain.ModelResponse
	Err      error
}

// Abstained reports whether the model produced no usable response.
func (o Outcome) Abstained() bool { return o.Err != nil || o.Response == nil }

// DispatchRequest is the request shared by every model in one fan-out.
type DispatchRequest struct {
	Turns           []domain.Turn
	SystemPrompt    string
	Tools           []domain.ToolDefinition
	ReasoningEffort domain.ReasoningEffort
	// Timeout bounds each model call independently. Zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration
}

// Dispatcher queries several models concurrently with independent failure
// isolation: one model's error, panic, or timeout only affects that model.
type Dispatcher struct {
	provider       ports.ChatProvider
	maxConcurrency int
	logger         zerolog.Logger
}

// NewDispatcher creates a dispatcher. maxConcurrency <= 0 runs every call
// at once.
func NewDispatcher(provider ports.ChatProvider, maxConcurrency int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{provider: provider, maxConcurrency: maxConcurrency, logger: logger}
}

// DispatchAll sends req to every distinct model and waits for all calls to
// settle. The returned map has an entry for every distinct model.
func (d *Dispatcher) DispatchAll(ctx context.Context, models []string, req DispatchRequest) map[string]Outcome {
	unique := uniqueModels(models)
	outcomes := make([]Outcome, len(unique))

	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for i, model := range unique {
		g.Go(func() error {
			outcomes[i] = d.Dispatch(ctx, model, req)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Outcome, len(unique))
	for i, model := range unique {
		out[model] = outcomes[i]
	}
	return out
}

// Dispatch queries a single model. The call races its deadline, so a
// provider that ignores cancellation still cannot hold the caller past it.
func (d *Dispatcher) Dispatch(ctx context.Context, model string, req DispatchRequest) Outcome {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := domain.NewAbstention(model, fmt.Errorf("panic: %v", r))
				d.logger.Warn().Str("model", model).Err(err).Msg("model call panicked")
				done <- Outcome{Err: err}
			}
		}()
		resp, err := d.provider.Send(ctx, domain.ChatRequest{
			Model:           model,
			Turns:           req.Turns,
			SystemPrompt:    req.SystemPrompt,
			Tools:           req.Tools,
			ReasoningEffort: req.ReasoningEffort,
		})
		if err != nil {
			done <- Outcome{Err: domain.NewAbstention(model, err)}
			return
		}
		if resp == nil {
			done <- Outcome{Err: domain.NewAbstention(model, errEmptyReply)}
			return
		}
		done <- Outcome{Response: resp}
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		err := domain.NewAbstention(model, ctx.Err())
		d.logger.Warn().Str("model", model).Err(err).Msg("model call timed out")
		return Outcome{Err: err}
	}
}

func uniqueModels(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
