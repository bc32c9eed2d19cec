package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-council/internal/domain"
)

// ErrCircuitOpen is returned without calling the provider while its
// breaker is open. The dispatcher records it as an abstention.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is exported as the breaker state gauge value.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreakerMetrics receives per-family breaker activity.
type CircuitBreakerMetrics interface {
	RecordState(provider string, state CircuitBreakerState)
	RecordTrip(provider string)
	RecordSuccess(provider string)
	RecordFailure(provider string)
}

// CircuitBreaker opens after maxFailures consecutive failures and lets one
// trial call through once cooldown has passed. The lock is never held while
// the wrapped call runs.
type CircuitBreaker struct {
	mu           sync.RWMutex
	state        CircuitBreakerState
	failures     int
	maxFailures  int
	cooldown     time.Duration
	lastFailedAt time.Time
}

func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown}
}

// Call runs fn unless the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}

	cb.failures++
	cb.lastFailedAt = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// circuitBreakerProvider short-circuits calls to a provider family that keeps
// failing for transient reasons.
type circuitBreakerProvider struct {
	next    Provider
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware breaks each wrapped provider family independently.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware reporting
// to metrics, which may be nil.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	return func(next Provider) Provider {
		return &circuitBreakerProvider{
			next:    next,
			cb:      NewCircuitBreaker(maxFailures, cooldown),
			metrics: metrics,
		}
	}
}

// Send executes the request through the circuit breaker. Only transient
// failures count toward opening the circuit; a rejected request or a
// caller cancellation passes through without tripping it.
func (c *circuitBreakerProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	var resp *domain.ModelResponse
	var sendErr error
	err := c.cb.Call(func() error {
		resp, sendErr = c.next.Send(ctx, req)
		if sendErr != nil && IsTransient(sendErr) && !errors.Is(sendErr, context.Canceled) {
			return sendErr
		}
		return nil
	})

	if c.metrics != nil {
		name := c.next.Name()
		switch {
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip(name)
		case err != nil:
			c.metrics.RecordFailure(name)
		default:
			c.metrics.RecordSuccess(name)
		}
		c.metrics.RecordState(name, c.cb.State())
	}

	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("%s: %w", c.next.Name(), ErrCircuitOpen)
	}
	return resp, sendErr
}

// Name returns the wrapped provider's family name.
func (c *circuitBreakerProvider) Name() string { return c.next.Name() }
