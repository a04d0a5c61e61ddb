// internal/llmclient/ratelimit.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opsmedic/codemedic/api/schemas"
)

// RateLimitedClient throttles Generate calls on a wrapped backend so a
// tight repair loop cannot hammer a shared inference endpoint. Ping and
// Close pass through unthrottled.
type RateLimitedClient struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ schemas.LLMClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient wraps inner with a token bucket refilled at
// requestsPerMinute, with a burst of one.
func NewRateLimitedClient(inner schemas.LLMClient, requestsPerMinute float64, logger *zap.Logger) *RateLimitedClient {
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
		logger:  logger.Named("llm.ratelimit"),
	}
}

// Generate blocks until the limiter grants a slot or the context expires,
// then delegates to the wrapped client.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}
	return c.inner.Generate(ctx, req)
}

// Ping delegates to the wrapped client.
func (c *RateLimitedClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close delegates to the wrapped client.
func (c *RateLimitedClient) Close() error {
	return c.inner.Close()
}
