package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point carrying key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPromptDuration(ctx, 800*time.Millisecond)
	m.RecordPromptDuration(ctx, 1200*time.Millisecond)
	m.RecordListenDuration(ctx, 3*time.Second, true)
	m.RecordListenDuration(ctx, 12*time.Second, true)

	rm := collect(t, reader)

	for _, name := range []string{
		"freshtrack.dialogue.prompt.duration",
		"freshtrack.dialogue.listen.duration",
	} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestDialogueLifecycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDialogueStarted(ctx)
	m.RecordDialogueStarted(ctx)
	m.RecordDialogueStarted(ctx)
	m.RecordDialogueEnded(ctx, OutcomeCommitted, 30*time.Second)
	m.RecordDialogueEnded(ctx, OutcomeCancelled, 5*time.Second)

	rm := collect(t, reader)

	if got := sumWhere(t, rm, "freshtrack.dialogue.ended", "outcome", OutcomeCommitted); got != 1 {
		t.Errorf("committed = %d, want 1", got)
	}

	active := findMetric(rm, "freshtrack.dialogue.active")
	if active == nil {
		t.Fatal("active dialogues metric not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("active dialogues has no data")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active dialogues = %d, want 1", got)
	}

	started := findMetric(rm, "freshtrack.dialogue.started")
	if started == nil {
		t.Fatal("started metric not found")
	}
	if got := started.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 3 {
		t.Errorf("started = %d, want 3", got)
	}
}

func TestParseFailuresCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordParseFailure(ctx, "expiry")
	m.RecordParseFailure(ctx, "expiry")
	m.RecordParseFailure(ctx, "price")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "freshtrack.dialogue.parse_failures", "field", "expiry"); got != 2 {
		t.Errorf("expiry failures = %d, want 2", got)
	}
}

func TestItemsAddedCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordItemAdded(ctx, "redis", "voice")
	m.RecordItemAdded(ctx, "redis", "api")
	m.RecordItemAdded(ctx, "postgres", "voice")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "freshtrack.inventory.items_added", "backend", "postgres"); got != 1 {
		t.Errorf("postgres items = %d, want 1", got)
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "error")
	m.RecordProviderError(ctx, "elevenlabs", "tts")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "freshtrack.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "freshtrack.provider.errors", "provider", "elevenlabs"); got != 1 {
		t.Errorf("elevenlabs errors = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "freshtrack.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
