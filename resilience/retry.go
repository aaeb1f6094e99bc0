package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// RetryConfig controls Retry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after each retry.
	BackoffMultiplier float64
	// Jitter spreads each wait by up to ±10%.
	Jitter bool
	// RetryableErrors decides whether an error is worth another attempt.
	RetryableErrors func(err error) bool
}

// DefaultRetryConfig returns a short retry policy suited to cache reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors retries everything except cancellations and an
// open circuit.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCircuitBreakerOpen),
		errors.Is(err, ErrCircuitBreakerTimeout):
		return false
	}
	return true
}

// RetryStats describes the attempts made by RetryWithStats.
type RetryStats struct {
	Attempts     int
	TotalBackoff time.Duration
	LastError    error
}

// Retry calls fn until it succeeds, returns a non-retryable error, the retry
// budget is spent, or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithStats(ctx, config, fn)
	return err
}

// RetryWithStats is Retry, additionally reporting what happened.
func RetryWithStats(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) (RetryStats, error) {
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = DefaultRetryableErrors
	}
	var stats RetryStats
	for attempt := 0; ; attempt++ {
		stats.Attempts++
		err := fn(ctx)
		stats.LastError = err
		if err == nil || attempt >= config.MaxRetries || !retryable(err) {
			return stats, err
		}
		wait := calculateBackoff(attempt, config)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stats, errors.WithSecondaryError(ctx.Err(), err)
		case <-timer.C:
			stats.TotalBackoff += wait
		}
	}
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.Jitter {
		backoff *= 0.9 + rand.Float64()*0.2
	}
	return time.Duration(backoff)
}
