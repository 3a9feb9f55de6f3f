// Package observe provides application-wide observability primitives for
// freshtrack: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all freshtrack metrics.
const meterName = "github.com/freshtrack/freshtrack"

// Dialogue outcomes recorded by [Metrics.RecordDialogueEnded].
const (
	OutcomeCommitted = "committed"
	OutcomeCancelled = "cancelled"
	OutcomeAborted   = "aborted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Voice dialogue ---

	// DialogueDuration tracks how long a dialogue ran from start to its end.
	// Use with attribute.String("outcome", ...).
	DialogueDuration metric.Float64Histogram

	// Dialogues counts started dialogues.
	Dialogues metric.Int64Counter

	// DialogueOutcomes counts ended dialogues by outcome.
	DialogueOutcomes metric.Int64Counter

	// ActiveDialogues tracks dialogues between start and end.
	ActiveDialogues metric.Int64UpDownCounter

	// PromptDuration tracks how long speaking one prompt took.
	PromptDuration metric.Float64Histogram

	// ListenDuration tracks one recognition turn. Use with
	// attribute.Bool("heard", ...).
	ListenDuration metric.Float64Histogram

	// ParseFailures counts answers that could not be parsed, by field.
	ParseFailures metric.Int64Counter

	// --- Parsers and inventory ---

	// ParseRequests counts parse API calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.Bool("found", ...)
	ParseRequests metric.Int64Counter

	// ItemsAdded counts items written to the inventory store. Use with
	// attributes:
	//   attribute.String("backend", ...), attribute.String("source", ...)
	ItemsAdded metric.Int64Counter

	// StoreErrors counts failed inventory store calls by backend and op.
	StoreErrors metric.Int64Counter

	// --- Speech providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// --- HTTP ---

	// ActiveConnections tracks open voice WebSocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for speech
// turns, which range from a short prompt to a no-speech timeout.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 20,
}

// dialogueBuckets covers whole dialogues, usually well under two minutes.
var dialogueBuckets = []float64{
	5, 10, 20, 30, 45, 60, 90, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DialogueDuration, err = m.Float64Histogram("freshtrack.dialogue.duration",
		metric.WithDescription("Duration of voice dialogues by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dialogueBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PromptDuration, err = m.Float64Histogram("freshtrack.dialogue.prompt.duration",
		metric.WithDescription("Time spent speaking a dialogue prompt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ListenDuration, err = m.Float64Histogram("freshtrack.dialogue.listen.duration",
		metric.WithDescription("Time spent waiting for a final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("freshtrack.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Dialogues, err = m.Int64Counter("freshtrack.dialogue.started",
		metric.WithDescription("Total voice dialogues started."),
	); err != nil {
		return nil, err
	}
	if met.DialogueOutcomes, err = m.Int64Counter("freshtrack.dialogue.ended",
		metric.WithDescription("Total voice dialogues ended by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ParseFailures, err = m.Int64Counter("freshtrack.dialogue.parse_failures",
		metric.WithDescription("Dialogue answers that could not be parsed, by field."),
	); err != nil {
		return nil, err
	}
	if met.ParseRequests, err = m.Int64Counter("freshtrack.parse.requests",
		metric.WithDescription("Parse API requests by kind and whether a value was found."),
	); err != nil {
		return nil, err
	}
	if met.ItemsAdded, err = m.Int64Counter("freshtrack.inventory.items_added",
		metric.WithDescription("Items added to the inventory by backend and source."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("freshtrack.inventory.errors",
		metric.WithDescription("Failed inventory store calls by backend and operation."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("freshtrack.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("freshtrack.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveDialogues, err = m.Int64UpDownCounter("freshtrack.dialogue.active",
		metric.WithDescription("Number of dialogues in progress."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("freshtrack.ws.active_connections",
		metric.WithDescription("Number of open voice WebSocket connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDialogueStarted counts a new dialogue and marks it active.
func (m *Metrics) RecordDialogueStarted(ctx context.Context) {
	m.Dialogues.Add(ctx, 1)
	m.ActiveDialogues.Add(ctx, 1)
}

// RecordDialogueEnded records the outcome and duration of a dialogue and
// marks it inactive.
func (m *Metrics) RecordDialogueEnded(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.DialogueOutcomes.Add(ctx, 1, attrs)
	m.DialogueDuration.Record(ctx, d.Seconds(), attrs)
	m.ActiveDialogues.Add(ctx, -1)
}

// RecordPromptDuration records the time spent speaking one prompt.
func (m *Metrics) RecordPromptDuration(ctx context.Context, d time.Duration) {
	m.PromptDuration.Record(ctx, d.Seconds())
}

// RecordListenDuration records one recognition turn.
func (m *Metrics) RecordListenDuration(ctx context.Context, d time.Duration, heard bool) {
	m.ListenDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("heard", heard)),
	)
}

// RecordParseFailure counts a dialogue answer that could not be parsed.
func (m *Metrics) RecordParseFailure(ctx context.Context, field string) {
	m.ParseFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("field", field)),
	)
}

// RecordParseRequest counts a parse API call.
func (m *Metrics) RecordParseRequest(ctx context.Context, kind string, found bool) {
	m.ParseRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("found", found),
		),
	)
}

// RecordItemAdded counts an item written to the inventory.
func (m *Metrics) RecordItemAdded(ctx context.Context, backend, source string) {
	m.ItemsAdded.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("source", source),
		),
	)
}

// RecordStoreError counts a failed inventory store call.
func (m *Metrics) RecordStoreError(ctx context.Context, backend, op string) {
	m.StoreErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
