package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryProvider retries transient failures with capped exponential
// backoff and ±20% jitter. A schema-invalid reply is retried once.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return r.do(ctx, func() (*Response, bool, error) {
		resp, err := r.inner.Generate(ctx, req)
		return resp, false, err
	})
}

// Stream retries only while nothing has reached onDelta; after that a
// retry would repeat text the learner already saw.
func (r *RetryProvider) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	return r.do(ctx, func() (*Response, bool, error) {
		emitted := false
		resp, err := r.inner.Stream(ctx, req, func(delta string) error {
			emitted = true
			return onDelta(delta)
		})
		return resp, emitted, err
	})
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// do runs attempt until it succeeds, fails for good, or attempts run out.
// attempt reports whether a failure is final regardless of its error.
func (r *RetryProvider) do(ctx context.Context, attempt func() (*Response, bool, error)) (*Response, error) {
	var (
		lastErr        error
		invalidRetried bool
	)
	for n := range max(r.config.MaxAttempts, 1) {
		resp, final, err := attempt()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var inv *ErrInvalidResponse
		switch {
		case final || !transient(err):
			return nil, err
		case errors.As(err, &inv):
			if invalidRetried {
				return nil, err
			}
			invalidRetried = true
		}
		if n == r.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(n, err)):
		}
	}
	return nil, lastErr
}

func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait)
	for range attempt {
		wait *= r.config.Multiplier
	}
	wait = min(wait, float64(r.config.MaxWait))
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(max(wait, 0))
}
