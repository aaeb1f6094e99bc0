package cache

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Invoker produces the value a cached call returns on a miss.
type Invoker[T any] func(ctx context.Context) (T, error)

// Dispatcher runs cached calls against the services in its registries.
type Dispatcher struct {
	enabled   atomic.Bool
	memory    *Registry[MemoryService]
	blob      *Registry[BlobService]
	overrides *Overrides
	logger    logger.Logger
	telemetry *telemetry
}

type dispatcherConfig struct {
	enabled        bool
	logger         logger.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

func WithLogger(log logger.Logger) DispatcherOption {
	return func(c *dispatcherConfig) { c.logger = log }
}

// WithEnabled sets the initial state of the caching switch. Defaults to true.
func WithEnabled(enabled bool) DispatcherOption {
	return func(c *dispatcherConfig) { c.enabled = enabled }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(c *dispatcherConfig) { c.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) DispatcherOption {
	return func(c *dispatcherConfig) { c.meterProvider = mp }
}

// NewDispatcher returns an enabled dispatcher with empty registries.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{enabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger(logger.LevelInfo)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	log := cfg.logger.WithPrefix("[cache]")
	d := &Dispatcher{
		memory:    NewRegistry[MemoryService](),
		blob:      NewRegistry[BlobService](),
		overrides: &Overrides{},
		logger:    log,
		telemetry: newTelemetry(cfg.tracerProvider, cfg.meterProvider, log),
	}
	d.enabled.Store(cfg.enabled)
	return d
}

// Memory is the registry of memory services.
func (d *Dispatcher) Memory() *Registry[MemoryService] { return d.memory }

// Blob is the registry of blob services.
func (d *Dispatcher) Blob() *Registry[BlobService] { return d.blob }

// Overrides holds the expiry overrides applied to overridable directives.
func (d *Dispatcher) Overrides() *Overrides { return d.overrides }

// Enabled reports the caching switch. A disabled dispatcher invokes every
// operation directly.
func (d *Dispatcher) Enabled() bool { return d.enabled.Load() }

func (d *Dispatcher) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// Exec returns the cached result of invoke for the given bindings.
//
// Bindings are consulted in descending priority, ties in argument order.
// The first hit is returned; every higher-priority binding that missed is
// then written with that value. When all miss, invoke runs once and its
// result is written to all of them. A force-update binding skips its own
// lookup but still writes. A binding whose service is not registered is
// skipped, so a dispatcher with no services calls invoke every time.
//
// Errors from invoke are returned unchanged and never cached. Storage
// errors are returned; cancellations are marked with ErrCancelled.
func Exec[T any](ctx context.Context, d *Dispatcher, invoke Invoker[T], bindings ...Binding) (T, error) {
	if d == nil || !d.Enabled() || len(bindings) == 0 {
		return invoke(ctx)
	}
	ordered, err := orderBindings(bindings)
	if err != nil {
		var zero T
		return zero, err
	}
	ctx, span := d.telemetry.start(ctx, ordered)
	defer span.End()

	var result slot[T]
	err = d.exec(ctx, ordered, &result, func(ctx context.Context) error {
		v, err := invoke(ctx)
		if err != nil {
			return invocationError{err}
		}
		result.value = v
		return nil
	})
	if err != nil {
		var invokeErr invocationError
		if errors.As(err, &invokeErr) {
			d.telemetry.fail(span, invokeErr.err)
			var zero T
			return zero, invokeErr.err
		}
		if !errors.Is(err, ErrCancelled) && (ctx.Err() != nil || IsCancelled(err)) {
			err = errors.Mark(err, ErrCancelled)
		}
		d.telemetry.fail(span, err)
		var zero T
		return zero, err
	}
	return result.value, nil
}

// ExecSync is Exec for synchronous operations cached only in memory. It
// never blocks on I/O.
func ExecSync[T any](d *Dispatcher, invoke func() (T, error), bindings ...MemoryBinding) (T, error) {
	generic := make([]Binding, len(bindings))
	for i, b := range bindings {
		generic[i] = b
	}
	return Exec[T](context.Background(), d, func(context.Context) (T, error) {
		return invoke()
	}, generic...)
}

// invocationError carries an operation error through the binding chain so
// it is returned exactly as the operation produced it.
type invocationError struct{ err error }

func (e invocationError) Error() string { return e.err.Error() }

func orderBindings(bindings []Binding) ([]Binding, error) {
	for _, b := range bindings {
		if b == nil {
			return nil, configErrorf("cache: nil binding")
		}
		if err := ValidateKey(b.cacheKey()); err != nil {
			return nil, err
		}
	}
	ordered := slices.Clone(bindings)
	slices.SortStableFunc(ordered, func(a, b Binding) int {
		return int(b.config().priority) - int(a.config().priority)
	})
	return ordered, nil
}

func (d *Dispatcher) exec(ctx context.Context, bindings []Binding, dst sink, produce func(ctx context.Context) error) error {
	if len(bindings) == 0 {
		return produce(ctx)
	}
	b, rest := bindings[0], bindings[1:]
	if !b.resolved(d) {
		d.logger.Debug("no %s service %q registered, skipping %s", b.backend(), b.config().serviceName, b.cacheKey().Key())
		d.telemetry.lookup(ctx, b, resultSkipped)
		return d.exec(ctx, rest, dst, produce)
	}
	if !b.config().forceUpdate {
		found, err := b.lookup(ctx, d, dst)
		if err != nil {
			d.telemetry.lookup(ctx, b, resultError)
			return err
		}
		if found {
			d.logger.Trace("%s hit %s", b.backend(), b.cacheKey().Key())
			d.telemetry.lookup(ctx, b, resultHit)
			return nil
		}
		d.logger.Trace("%s miss %s", b.backend(), b.cacheKey().Key())
		d.telemetry.lookup(ctx, b, resultMiss)
	} else {
		d.telemetry.lookup(ctx, b, resultForced)
	}
	if err := d.exec(ctx, rest, dst, produce); err != nil {
		return err
	}
	if err := b.store(ctx, d, dst.get()); err != nil {
		d.telemetry.store(ctx, b, resultError)
		return err
	}
	d.telemetry.store(ctx, b, resultStored)
	return nil
}

// sink receives a looked-up value for one call.
type sink interface {
	assign(v any) bool
	decode(fn func(target any) (bool, error)) (bool, error)
	get() any
	typeName() string
}

type slot[T any] struct {
	value T
}

func (s *slot[T]) assign(v any) bool {
	typed, ok := v.(T)
	if ok {
		s.value = typed
	}
	return ok
}

// decode fills a fresh value so a failed decode leaves the slot untouched.
func (s *slot[T]) decode(fn func(target any) (bool, error)) (bool, error) {
	var v T
	found, err := fn(&v)
	if err != nil || !found {
		return false, err
	}
	s.value = v
	return true, nil
}

func (s *slot[T]) get() any { return s.value }

func (s *slot[T]) typeName() string {
	var zero T
	return fmt.Sprintf("%T", any(&zero))[1:]
}
