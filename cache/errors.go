package cache

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration marks a bad directive, policy or registration. These
	// are raised when the directive is built, never downgraded to a miss.
	ErrConfiguration = errors.New("cache: configuration error")

	// ErrCancelled marks a cache operation abandoned because its context was
	// cancelled or timed out. Outer layers map it to a "request cancelled"
	// response rather than a server error.
	ErrCancelled = errors.New("cache: operation cancelled")

	// ErrServiceExists is returned when a name is registered twice.
	ErrServiceExists = errors.New("cache: service already registered")

	// ErrInvalidKey is returned for keys with an empty or malformed path.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrItemTooLarge is returned when an encoded value exceeds the blob
	// service's configured maximum item size.
	ErrItemTooLarge = errors.New("cache: item exceeds maximum size")
)

func configErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// IsConfigurationError reports whether err was caused by invalid cache configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsCancelled reports whether err is a cancellation, either marked by this
// package or a bare context error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// translateIOError marks context errors as ErrCancelled and wraps everything
// else with msg. A nil error stays nil.
func translateIOError(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return errors.Mark(errors.Wrap(err, msg), ErrCancelled)
	}
	return errors.Wrap(err, msg)
}
