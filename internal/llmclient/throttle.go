package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/config"
)

// Throttled wraps a TextGenerator with the resource discipline owed to a
// shared, rate-limited external service: a token-bucket rate limit, a bounded
// in-flight count, and a per-call timeout. Expiry of the per-call timeout
// surfaces as ErrGeneration, which callers absorb per finding.
type Throttled struct {
	inner       schemas.TextGenerator
	limiter     *rate.Limiter
	inFlight    *semaphore.Weighted
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewThrottled builds the throttling wrapper from LLM configuration.
func NewThrottled(inner schemas.TextGenerator, cfg config.LLMConfig, logger *zap.Logger) *Throttled {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	callTimeout := cfg.APITimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}

	return &Throttled{
		inner:       inner,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), maxInFlight),
		inFlight:    semaphore.NewWeighted(int64(maxInFlight)),
		callTimeout: callTimeout,
		logger:      logger.Named("llm_throttle"),
	}
}

// Generate acquires an in-flight slot and a rate token, then delegates with a
// per-call deadline attached.
func (t *Throttled) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := t.inFlight.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer t.inFlight.Release(1)

	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: rate limit wait: %v", schemas.ErrGeneration, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	out, err := t.inner.Generate(callCtx, req)
	if err != nil {
		// The parent context staying live means the per-call deadline fired,
		// not a caller cancellation.
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			t.logger.Warn("Generation call exceeded per-call timeout", zap.Duration("timeout", t.callTimeout))
			return "", fmt.Errorf("%w: call exceeded %s", schemas.ErrGeneration, t.callTimeout)
		}
		return "", err
	}
	return out, nil
}
