// Package observe holds the run's logger and metric instruments.
package observe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/valpere/interlinear/internal/fallback"
)

const meterName = "github.com/valpere/interlinear"

// NewLogger returns a text logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewMeterProvider returns an SDK provider that writes every instrument to
// w as JSON each interval and once more on Shutdown.
func NewMeterProvider(w io.Writer, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	var opts []sdkmetric.PeriodicReaderOption
	if interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(interval))
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, opts...)),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", "interlinear"))),
	), nil
}

// Metrics records per-item durations, fallback activations and worker
// pool lifecycle events. The zero value and a nil *Metrics are no-ops.
type Metrics struct {
	itemDuration metric.Float64Histogram
	fallbacks    metric.Int64Counter
	poolEvents   metric.Int64Counter
}

// NewMetrics builds the instruments on mp, or on the global provider when
// mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	itemDuration, err := meter.Float64Histogram("interlinear.item.duration",
		metric.WithDescription("Time to produce one translation task"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter("interlinear.fallback.activations",
		metric.WithDescription("Jobs pinned to the fallback provider"))
	if err != nil {
		return nil, err
	}
	poolEvents, err := meter.Int64Counter("interlinear.pool.events",
		metric.WithDescription("Worker pool lifecycle events"))
	if err != nil {
		return nil, err
	}
	return &Metrics{itemDuration: itemDuration, fallbacks: fallbacks, poolEvents: poolEvents}, nil
}

// ItemDone records how long one item took. outcome is "ok", "degraded",
// "failed" or "memory".
func (m *Metrics) ItemDone(ctx context.Context, lang, outcome string, d time.Duration) {
	if m == nil || m.itemDuration == nil {
		return
	}
	m.itemDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("target_language", lang),
		attribute.String("outcome", outcome),
	))
}

// FallbackActivated implements fallback.Reporter.
func (m *Metrics) FallbackActivated(ctx context.Context, _ string, d fallback.Decision) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("concern", string(d.Concern)),
		attribute.String("trigger", string(d.Trigger)),
		attribute.String("provider", d.Provider),
	))
}

// PoolEvent counts one worker pool event. It matches workerpool.EventFunc.
func (m *Metrics) PoolEvent(event string) {
	if m == nil || m.poolEvents == nil {
		return
	}
	m.poolEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}
