package livecheck

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/obentoo/tapcheck/internal/common/logger"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// BaseDelay is the initial delay before first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 4s)
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
// Uses exponential backoff with delays of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
	}
}

// RetryingResolver repeats resolutions that failed with a retryable
// fetch error. Config, decode and no-match errors are returned at once.
type RetryingResolver struct {
	next   VersionResolver
	config RetryConfig
	// wait sleeps for d or until ctx is done; replaceable in tests
	wait func(ctx context.Context, d time.Duration) error
}

// NewRetryingResolver wraps next with exponential backoff.
func NewRetryingResolver(next VersionResolver, config RetryConfig) *RetryingResolver {
	return &RetryingResolver{
		next:   next,
		config: config,
		wait:   sleepContext,
	}
}

// Resolve calls the wrapped resolver up to MaxRetries+1 times.
func (r *RetryingResolver) Resolve(ctx context.Context, desc PackageDescriptor, src Source) (ResolvedVersion, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			logger.Debug("%s: retrying in %s (attempt %d/%d): %v", desc.Name, delay, attempt, r.config.MaxRetries, lastErr)
			if err := r.wait(ctx, delay); err != nil {
				return ResolvedVersion{}, fetchError(errorURL(lastErr), ReasonCancelled, 0, err)
			}
		}

		v, err := r.next.Resolve(ctx, desc, src)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return ResolvedVersion{}, lastErr
}

// calculateDelay calculates the delay for a given retry attempt.
// Uses exponential backoff: delay = baseDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryingResolver) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 || r.config.BaseDelay <= 0 {
		return 0
	}
	delay := r.config.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
		if r.config.MaxDelay > 0 && delay >= r.config.MaxDelay {
			break
		}
	}
	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// errorURL returns the URL a resolution error refers to, if any.
func errorURL(err error) string {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.URL
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
