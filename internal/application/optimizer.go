package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// ErrOptimizationFailed means the optimizer model abstained.
var ErrOptimizationFailed = errors.New("failed to optimize prompt")

// OptimizeRequest asks a model to rewrite a prompt.
type OptimizeRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	Model  string `json:"model" validate:"required,modelid"`
}

// PromptOptimizer rewrites user prompts with a single model call.
type PromptOptimizer struct {
	dispatcher *Dispatcher
	timeout    time.Duration
}

// NewPromptOptimizer creates an optimizer that shares the council's
// dispatcher and call timeout.
func NewPromptOptimizer(council *Council) *PromptOptimizer {
	return &PromptOptimizer{dispatcher: council.dispatcher, timeout: council.cfg.CallTimeout}
}

// NewPromptOptimizerWithProvider creates an optimizer over provider.
func NewPromptOptimizerWithProvider(provider ports.ChatProvider, timeout time.Duration) *PromptOptimizer {
	return &PromptOptimizer{dispatcher: NewDispatcher(provider, 0, zerolog.Nop()), timeout: timeout}
}

// Optimize returns the model's rewrite of req.Prompt.
func (o *PromptOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", toValidationError("optimize request", err)
	}

	out := o.dispatcher.Dispatch(ctx, req.Model, DispatchRequest{
		Turns:        []domain.Turn{domain.UserTurn(req.Prompt)},
		SystemPrompt: OptimizerSystemPrompt,
		Timeout:      o.timeout,
	})
	if out.Abstained() {
		return "", fmt.Errorf("%w: %v", ErrOptimizationFailed, out.Err)
	}
	return out.Response.Content, nil
}
