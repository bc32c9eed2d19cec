package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/testutils"
)

// TestPromptOptimizer_Optimize tests a successful rewrite.
func TestPromptOptimizer_Optimize(t *testing.T) {
	provider := testutils.NewScriptedProvider().Answer("gpt-4.1", "Explain Go's goroutines with examples.", domain.Usage{})
	optimizer := NewPromptOptimizer(newTestCouncil(provider))

	got, err := optimizer.Optimize(context.Background(), OptimizeRequest{Prompt: "goroutines?", Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "Explain Go's goroutines with examples.", got)

	call := provider.CallsFor("gpt-4.1")[0]
	assert.Equal(t, OptimizerSystemPrompt, call.SystemPrompt)
	assert.Equal(t, "goroutines?", call.Turns[0].Text)
}

// TestPromptOptimizer_Optimize_Errors tests invalid requests and abstentions.
func TestPromptOptimizer_Optimize_Errors(t *testing.T) {
	provider := testutils.NewScriptedProvider().Fail("gpt-4.1", errors.New("quota"))
	optimizer := NewPromptOptimizerWithProvider(provider, time.Second)

	_, err := optimizer.Optimize(context.Background(), OptimizeRequest{Prompt: "x", Model: "gpt-4.1"})
	assert.ErrorIs(t, err, ErrOptimizationFailed)

	_, err = optimizer.Optimize(context.Background(), OptimizeRequest{Model: "gpt-4.1"})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
