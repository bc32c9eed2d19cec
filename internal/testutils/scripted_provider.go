// Package testutils provides fakes shared by the council's package tests.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// ErrNoScript is the cause of an abstention for a model with no matching reply.
var ErrNoScript = errors.New("no scripted reply")

// Reply is one scripted outcome for a model.
type Reply struct {
	// Pattern is matched as a case-insensitive substring of the last turn's
	// text. An empty pattern matches every request.
	Pattern string

	Content   string
	Usage     domain.Usage
	ToolCalls []domain.ToolCallRecord

	// Err makes the model abstain with Err as the cause.
	Err error
	// Delay holds the reply back; a context deadline that fires first
	// turns the call into an abstention.
	Delay time.Duration
	// Panic makes Send panic, simulating a broken adapter.
	Panic bool
}

// ScriptedProvider is a deterministic ports.ChatProvider. Replies are
// configured per model and chosen by the first pattern that matches the
// request, so one model can answer Stage 1 and rank in Stage 2 differently.
// Every request is recorded.
type ScriptedProvider struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   []domain.ChatRequest
}

var _ ports.ChatProvider = (*ScriptedProvider)(nil)

// NewScriptedProvider creates a provider with no scripted models.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{replies: make(map[string][]Reply)}
}

// On adds a reply for model. Replies are tried in the order they were added.
func (s *ScriptedProvider) On(model string, reply Reply) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[model] = append(s.replies[model], reply)
	return s
}

// Answer scripts a catch-all text reply for model.
func (s *ScriptedProvider) Answer(model, content string, usage domain.Usage) *ScriptedProvider {
	return s.On(model, Reply{Content: content, Usage: usage})
}

// Fail scripts model to abstain on every request.
func (s *ScriptedProvider) Fail(model string, err error) *ScriptedProvider {
	return s.On(model, Reply{Err: err})
}

// Send implements ports.ChatProvider.
func (s *ScriptedProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	reply, ok := s.match(req)
	s.mu.Unlock()

	if !ok {
		return nil, domain.NewAbstention(req.Model, ErrNoScript)
	}

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return nil, domain.NewAbstention(req.Model, ctx.Err())
		}
	}
	if reply.Panic {
		panic("scripted panic for " + req.Model)
	}
	if reply.Err != nil {
		return nil, domain.NewAbstention(req.Model, reply.Err)
	}

	return &domain.ModelResponse{
		Content:   reply.Content,
		Usage:     reply.Usage,
		ToolCalls: append([]domain.ToolCallRecord(nil), reply.ToolCalls...),
	}, nil
}

func (s *ScriptedProvider) match(req domain.ChatRequest) (Reply, bool) {
	var text string
	if n := len(req.Turns); n > 0 {
		text = strings.ToLower(req.Turns[n-1].Text)
	}
	for _, r := range s.replies[req.Model] {
		if r.Pattern == "" || strings.Contains(text, strings.ToLower(r.Pattern)) {
			return r, true
		}
	}
	return Reply{}, false
}

// Calls returns every recorded request in arrival order.
func (s *ScriptedProvider) Calls() []domain.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatRequest(nil), s.calls...)
}

// CallsFor returns the recorded requests sent to model.
func (s *ScriptedProvider) CallsFor(model string) []domain.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatRequest
	for _, c := range s.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls but keeps the script.
func (s *ScriptedProvider) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
