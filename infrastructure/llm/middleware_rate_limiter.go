package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-council/internal/domain"
)

// rateLimitedProvider paces requests to one provider family with a token
// bucket.
type rateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using a token bucket algorithm.
// The limit parameter sets requests per second, while burst allows
// temporary spikes above the sustained rate. Each wrapped provider gets
// its own bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	return func(next Provider) Provider {
		return &rateLimitedProvider{
			next:    next,
			limiter: rate.NewLimiter(limit, burst),
		}
	}
}

// Send waits for a token before forwarding the request. A wait cut short
// by the caller's deadline fails the call, which the Router turns into an
// abstention.
func (r *rateLimitedProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Send(ctx, req)
}

// Name returns the wrapped provider's family name.
func (r *rateLimitedProvider) Name() string { return r.next.Name() }
