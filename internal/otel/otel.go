package otel

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
	"github.com/hanpama/graphstore/internal/reqid"
)

// Config selects the exporters Setup installs. An empty Endpoint disables
// tracing; Prometheus enables the metrics handler.
type Config struct {
	Endpoint   string
	Service    string
	Prometheus bool
}

// Telemetry holds the installed providers.
type Telemetry struct {
	// Metrics serves the Prometheus exposition format. It is nil unless
	// Config.Prometheus was set.
	Metrics http.Handler

	tp    *sdktrace.TracerProvider
	mp    *sdkmetric.MeterProvider
	unsub func()
}

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// With a zero Config nothing is installed and Shutdown is a no-op.
func Setup(cfg Config, bus *eventbus.Bus) (*Telemetry, error) {
	t := &Telemetry{unsub: func() {}}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.Service),
	)

	if cfg.Prometheus {
		reg := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, err
		}
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exp),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(t.mp)
		t.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	if cfg.Endpoint != "" {
		exp, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(t.tp)
		t.unsub = newSubscriber(otel.Tracer("graphstore")).register(bus)
	}
	return t, nil
}

// Shutdown detaches the subscribers and flushes the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.unsub()
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

type subscriber struct {
	tracer      trace.Tracer
	sendSpans   sync.Map // rid -> trace.Span
	remoteSpans sync.Map // rid -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer}
}

// register subscribes to bus and returns a function removing every handler.
func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.SendStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "graphstore.send")
			span.SetAttributes(
				attribute.String("graphql.document", e.Document),
				attribute.String("graphql.operation.type", e.Kind),
				attribute.String("graphstore.policy", e.Policy),
			)
			s.sendSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.SendFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.sendSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.String("graphstore.source", e.Source),
				attribute.Bool("graphstore.partial", e.Partial),
				attribute.Int("graphql.error_count", e.Errors),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.NetworkStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.sendSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "graphstore.network", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				attribute.String("graphstore.transport", e.Transport),
				attribute.String("net.peer.name", e.Target),
				attribute.String("graphql.document", e.Document),
			)
			s.remoteSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.NetworkFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.remoteSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.String("graphstore.status", e.Status))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.GarbageCollect) {
			trace.SpanFromContext(ctx).AddEvent("graphstore.gc", trace.WithAttributes(
				attribute.Int("graphstore.gc.marked", e.Marked),
				attribute.Int("graphstore.gc.evicted", e.Evicted),
				attribute.Int64("graphstore.gc.duration_us", e.Duration.Microseconds()),
			))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
