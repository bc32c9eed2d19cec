package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
)

// TestScriptedProvider_PatternSelection tests that the first matching pattern wins.
func TestScriptedProvider_PatternSelection(t *testing.T) {
	p := NewScriptedProvider().
		On("m", Reply{Pattern: "FINAL RANKING", Content: "ranking"}).
		Answer("m", "answer", domain.Usage{InputTokens: 3, OutputTokens: 4})

	tests := []struct {
		name string
		text string
		want string
	}{
		{"pattern match is case insensitive", "give a final ranking please", "ranking"},
		{"catch-all", "what is go?", "answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Send(context.Background(), domain.ChatRequest{
				Model: "m",
				Turns: []domain.Turn{domain.UserTurn(tt.text)},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Content)
		})
	}
	assert.Len(t, p.CallsFor("m"), 2)
}

// TestScriptedProvider_Abstentions tests the failure modes.
func TestScriptedProvider_Abstentions(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedProvider().
		Fail("broken", boom).
		On("slow", Reply{Content: "late", Delay: time.Second})

	_, err := p.Send(context.Background(), domain.ChatRequest{Model: "broken"})
	assert.True(t, domain.IsAbstention(err))
	assert.ErrorIs(t, err, boom)

	_, err = p.Send(context.Background(), domain.ChatRequest{Model: "unknown"})
	assert.ErrorIs(t, err, ErrNoScript)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Send(ctx, domain.ChatRequest{Model: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Len(t, p.Calls(), 3)
	p.Reset()
	assert.Empty(t, p.Calls())
}
