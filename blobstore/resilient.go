package blobstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/resilience"
)

// ResilientConfig configures NewResilient.
type ResilientConfig struct {
	Breaker resilience.CircuitBreakerConfig
	Retry   resilience.RetryConfig
}

// DefaultResilientConfig returns the default breaker and retry settings.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Breaker: resilience.DefaultCircuitBreakerConfig(),
		Retry:   resilience.DefaultRetryConfig(),
	}
}

// Resilient wraps a Storage with retries inside a circuit breaker. A
// missing blob is an answer, not a failure: it is neither retried nor
// counted against the circuit.
type Resilient struct {
	next    Storage
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

var _ Storage = (*Resilient)(nil)

// NewResilient decorates next. Classifiers set in cfg are honoured but
// ErrNotFound is always excluded.
func NewResilient(next Storage, cfg ResilientConfig, opts ...resilience.BreakerOption) *Resilient {
	isFailure := cfg.Breaker.IsFailure
	cfg.Breaker.IsFailure = func(err error) bool {
		if err == nil || IsNotFound(err) || errors.Is(err, context.Canceled) {
			return false
		}
		if isFailure != nil {
			return isFailure(err)
		}
		return true
	}
	retryable := cfg.Retry.RetryableErrors
	if retryable == nil {
		retryable = resilience.DefaultRetryableErrors
	}
	cfg.Retry.RetryableErrors = func(err error) bool {
		return !IsNotFound(err) && retryable(err)
	}
	return &Resilient{
		next:    next,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker, opts...),
		retry:   cfg.Retry,
	}
}

// Breaker exposes the circuit breaker for diagnostics.
func (r *Resilient) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

func (r *Resilient) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return resilience.Retry(ctx, r.retry, func(ctx context.Context) error {
		return r.breaker.Execute(ctx, fn)
	})
}

func (r *Resilient) Put(ctx context.Context, container, path string, data []byte, meta Metadata) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.next.Put(ctx, container, path, data, meta)
	})
}

func (r *Resilient) Get(ctx context.Context, container, path string) ([]byte, Metadata, error) {
	var (
		data []byte
		meta Metadata
	)
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		data, meta, err = r.next.Get(ctx, container, path)
		return err
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	return data, meta, nil
}

func (r *Resilient) Delete(ctx context.Context, container, path string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.next.Delete(ctx, container, path)
	})
}

func (r *Resilient) DeletePrefix(ctx context.Context, container, prefix string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.next.DeletePrefix(ctx, container, prefix)
	})
}
