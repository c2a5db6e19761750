package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/valpere/interlinear/internal/fallback"
)

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("[test] hidden")
	logger.Warn("[test] shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "[test] shown") || !strings.Contains(out, "key=value") {
		t.Errorf("output = %q", out)
	}
}

func TestMetrics_Noop(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.ItemDone(ctx, "ru", "ok", time.Second)
	m.FallbackActivated(ctx, "job", fallback.Decision{Concern: fallback.ConcernTranslation})
	m.PoolEvent("start")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ItemDone(context.Background(), "ru", "ok", time.Second)
	m.FallbackActivated(context.Background(), "job", fallback.Decision{})
	m.PoolEvent("stop")

	var r fallback.Reporter = m
	r.FallbackActivated(context.Background(), "job", fallback.Decision{})
}

func TestNewMetrics_GlobalProvider(t *testing.T) {
	if _, err := NewMetrics(nil); err != nil {
		t.Fatalf("NewMetrics(nil): %v", err)
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_RecordedBySDK(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.ItemDone(ctx, "ru", "ok", 1500*time.Millisecond)
	m.ItemDone(ctx, "ru", "failed", time.Second)
	m.FallbackActivated(ctx, "job", fallback.Decision{Concern: fallback.ConcernTranslation, Provider: "fallback"})
	m.PoolEvent("start")

	got := collect(t, reader)

	hist, ok := got["interlinear.item.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("item duration data = %T", got["interlinear.item.duration"].Data)
	}
	var count uint64
	var sum float64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	if count != 2 || sum != 2.5 {
		t.Errorf("duration count = %d sum = %v, want 2 and 2.5", count, sum)
	}

	for _, name := range []string{"interlinear.fallback.activations", "interlinear.pool.events"} {
		data, ok := got[name].Data.(metricdata.Sum[int64])
		if !ok || len(data.DataPoints) != 1 || data.DataPoints[0].Value != 1 {
			t.Errorf("%s = %+v", name, got[name].Data)
		}
	}
}

func TestNewMeterProvider_ExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	mp, err := NewMeterProvider(&buf, time.Hour)
	if err != nil {
		t.Fatalf("NewMeterProvider: %v", err)
	}
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.ItemDone(context.Background(), "ja", "ok", time.Second)

	if err := mp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "interlinear.item.duration") {
		t.Errorf("export missing item duration: %q", buf.String())
	}
}
