package llm

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-council/internal/domain"
)

// MockProvider provides a configurable Provider for middleware tests.
// It allows control over response content, timing, and error conditions.
type MockProvider struct {
	mu sync.Mutex

	// Response configuration
	Family        string
	Content       string
	Usage         domain.Usage
	Error         error
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls, then succeeds.
	FailUntilAttempt int

	// Tracking
	CallCount      int
	LastRequest    domain.ChatRequest
	CallTimestamps []time.Time
}

// NewMockProvider creates a mock that succeeds with fixed content and usage.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Family:  "mock",
		Content: "test response",
		Usage:   domain.Usage{InputTokens: 10, OutputTokens: 20},
	}
}

// Send implements Provider with the configured behavior.
func (m *MockProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastRequest = req
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, failUntil, err := m.ResponseDelay, m.FailUntilAttempt, m.Error
	content, usage := m.Content, m.Usage
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failUntil > 0 && call <= failUntil {
		if err != nil {
			return nil, err
		}
		return nil, &testError{message: "simulated failure"}
	}
	if err != nil {
		return nil, err
	}

	return &domain.ModelResponse{Content: content, Usage: usage}, nil
}

// Name returns the configured family name.
func (m *MockProvider) Name() string { return m.Family }

// SetError changes the configured error.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// GetCallCount returns the number of times Send was called.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// testError provides a simple error type for testing.
type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}
