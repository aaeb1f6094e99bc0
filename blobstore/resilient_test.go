package blobstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/resilience"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection reset")

// flakyStorage fails the first failures calls to Get, then delegates.
type flakyStorage struct {
	*Memory
	failures int32
	calls    atomic.Int32
}

func (f *flakyStorage) Get(ctx context.Context, container, path string) ([]byte, Metadata, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, Metadata{}, errFlaky
	}
	return f.Memory.Get(ctx, container, path)
}

func testResilientConfig() ResilientConfig {
	return ResilientConfig{
		Breaker: resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute},
		Retry: resilience.RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1,
		},
	}
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStorage{Memory: NewMemory(), failures: 1}
	require.NoError(t, inner.Put(ctx, "cache", "a", []byte("1"), Metadata{}))

	r := NewResilient(inner, testResilientConfig())
	data, _, err := r.Get(ctx, "cache", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.Breaker().State())
}

func TestResilientDoesNotRetryNotFound(t *testing.T) {
	inner := &flakyStorage{Memory: NewMemory()}
	r := NewResilient(inner, testResilientConfig())
	for i := 0; i < 5; i++ {
		_, _, err := r.Get(context.Background(), "cache", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(5), inner.calls.Load())
	assert.Equal(t, resilience.StateClosed, r.Breaker().State())
}

func TestResilientOpensCircuit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inner := &flakyStorage{Memory: NewMemory(), failures: 100}
	r := NewResilient(inner, testResilientConfig(), resilience.WithClock(clock))

	_, _, err := r.Get(context.Background(), "cache", "a")
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, r.Breaker().State())
	calls := inner.calls.Load()
	assert.Equal(t, int32(2), calls)

	_, _, err = r.Get(context.Background(), "cache", "a")
	assert.ErrorIs(t, err, resilience.ErrCircuitBreakerOpen)
	assert.Equal(t, calls, inner.calls.Load())
}

func TestResilientPassesWritesThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	r := NewResilient(inner, DefaultResilientConfig())
	require.NoError(t, r.Put(ctx, "cache", "releases/1/a", []byte("1"), Metadata{}))
	require.NoError(t, r.Put(ctx, "cache", "releases/1/b", []byte("1"), Metadata{}))
	require.NoError(t, r.Delete(ctx, "cache", "releases/1/a"))
	assert.Equal(t, []string{"releases/1/b"}, inner.Paths("cache"))
	require.NoError(t, r.DeletePrefix(ctx, "cache", "releases/1/"))
	assert.Empty(t, inner.Paths("cache"))
}
