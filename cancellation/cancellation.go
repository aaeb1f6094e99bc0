// Package cancellation composes cancellation signals for cached calls and
// maps cancellations to the response outer layers should give.
package cancellation

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/cache"
)

// StatusClientClosedRequest is the non-standard status reported when the
// caller went away before the response was ready.
const StatusClientClosedRequest = 499

// ErrRequestTimeout is the cause recorded by WithRequestTimeout.
var ErrRequestTimeout = errors.New("request timed out")

// Merge returns a context which is done as soon as parent or any of others
// is done, carrying the cause of whichever finished first. Values and the
// deadline come from parent only. The returned cancel func releases the
// watchers on others and must be called.
func Merge(parent context.Context, others ...context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stops := make([]func() bool, 0, len(others))
	for _, other := range others {
		if other == nil {
			continue
		}
		stops = append(stops, context.AfterFunc(other, func() {
			cancel(context.Cause(other))
		}))
	}
	return ctx, func() {
		for _, stop := range stops {
			stop()
		}
		cancel(context.Canceled)
	}
}

// WithRequestTimeout bounds ctx by d, recording ErrRequestTimeout as the
// cause when the deadline passes.
func WithRequestTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, d, ErrRequestTimeout)
}

// Err returns nil while ctx is live, otherwise its cause marked with
// cache.ErrCancelled.
func Err(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return errors.Mark(cause, cache.ErrCancelled)
}

// IsCancelled reports whether err came from a cancelled or timed out
// request, whether or not it was marked by the cache.
func IsCancelled(err error) bool {
	return err != nil && (cache.IsCancelled(err) || errors.Is(err, ErrRequestTimeout))
}

// Status maps err to the status and message a handler should respond with.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, http.StatusText(http.StatusOK)
	case IsCancelled(err):
		return StatusClientClosedRequest, "Request cancelled"
	case cache.IsConfigurationError(err):
		return http.StatusInternalServerError, "Cache misconfigured"
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
