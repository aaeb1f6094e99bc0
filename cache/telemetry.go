package cache

import (
	"context"

	"github.com/dfe-analytical-services/ees-cache/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dfe-analytical-services/ees-cache/cache"

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultForced  = "forced"
	resultSkipped = "skipped"
	resultError   = "error"
	resultStored  = "stored"
)

type telemetry struct {
	tracer  trace.Tracer
	lookups metric.Int64Counter
	stores  metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, log logger.Logger) *telemetry {
	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}
	var err error
	t.lookups, err = meter.Int64Counter(
		"ees.cache.lookups",
		metric.WithDescription("Cache lookups by backend and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		log.Warn("cache lookup counter disabled: %s", err)
		t.lookups = noop.Int64Counter{}
	}
	t.stores, err = meter.Int64Counter(
		"ees.cache.stores",
		metric.WithDescription("Cache writes by backend and result"),
		metric.WithUnit("{store}"),
	)
	if err != nil {
		log.Warn("cache store counter disabled: %s", err)
		t.stores = noop.Int64Counter{}
	}
	return t
}

func (t *telemetry) start(ctx context.Context, bindings []Binding) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cache.Exec", trace.WithAttributes(
		attribute.Int("cache.bindings", len(bindings)),
		attribute.String("cache.key", bindings[0].cacheKey().Key()),
	))
}

func bindingAttributes(b Binding, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cache.backend", b.backend()),
		attribute.String("cache.service", b.config().serviceName),
		attribute.String("cache.result", result),
	}
}

func (t *telemetry) lookup(ctx context.Context, b Binding, result string) {
	attrs := bindingAttributes(b, result)
	t.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
	trace.SpanFromContext(ctx).AddEvent("cache.lookup", trace.WithAttributes(
		append(attrs, attribute.String("cache.key", b.cacheKey().Key()))...,
	))
}

func (t *telemetry) store(ctx context.Context, b Binding, result string) {
	attrs := bindingAttributes(b, result)
	t.stores.Add(ctx, 1, metric.WithAttributes(attrs...))
	trace.SpanFromContext(ctx).AddEvent("cache.store", trace.WithAttributes(
		append(attrs, attribute.String("cache.key", b.cacheKey().Key()))...,
	))
}

func (t *telemetry) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
