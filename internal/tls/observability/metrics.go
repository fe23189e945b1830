package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter name and instrument names.
const (
	MeterName = "github.com/kolkov/threadlocal"

	MetricRegistrations   = "threadlocal.slot.registrations"
	MetricDeregistrations = "threadlocal.slot.deregistrations"
	MetricGatherItems     = "threadlocal.gather.items"
	MetricWrites          = "threadlocal.broadcast.writes"
	MetricRefreshes       = "threadlocal.broadcast.refreshes"
	MetricReaped          = "threadlocal.thread.reaped"
)

// MetricsRecorder records registry and broadcast metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRegistration records a thread linking a slot into a registry.
	RecordRegistration(ctx context.Context, kind, id string)

	// RecordDeregistration records a slot leaving a registry on thread exit.
	// outcome is one of "dropped", "preserved", "retained", "evicted" or
	// "compacted".
	RecordDeregistration(ctx context.Context, kind, id, outcome string)

	// RecordGather records the number of payloads returned by a gather.
	RecordGather(ctx context.Context, kind, id string, items int)

	// RecordWrite records a broadcast write and how many readers it invalidated.
	RecordWrite(ctx context.Context, id string, readers int)

	// RecordRefresh records a stale reader copying the central value.
	RecordRefresh(ctx context.Context, id string)

	// RecordReap records threads torn down by the reaper.
	RecordReap(ctx context.Context, reaped int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	registrations   metric.Int64Counter
	deregistrations metric.Int64Counter
	gatherItems     metric.Int64Histogram
	writes          metric.Int64Counter
	invalidated     metric.Int64Histogram
	refreshes       metric.Int64Counter
	reaped          metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance from the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(MeterName)

	registrations, err := meter.Int64Counter(MetricRegistrations,
		metric.WithDescription("Number of thread slots linked into a registry"),
	)
	if err != nil {
		return nil, err
	}

	deregistrations, err := meter.Int64Counter(MetricDeregistrations,
		metric.WithDescription("Number of thread slots released on thread exit"),
	)
	if err != nil {
		return nil, err
	}

	gatherItems, err := meter.Int64Histogram(MetricGatherItems,
		metric.WithDescription("Payloads returned per gather"),
	)
	if err != nil {
		return nil, err
	}

	writes, err := meter.Int64Counter(MetricWrites,
		metric.WithDescription("Number of broadcast writes"),
	)
	if err != nil {
		return nil, err
	}

	invalidated, err := meter.Int64Histogram("threadlocal.broadcast.invalidated",
		metric.WithDescription("Readers marked stale per broadcast write"),
	)
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter(MetricRefreshes,
		metric.WithDescription("Number of stale reader refreshes"),
	)
	if err != nil {
		return nil, err
	}

	reaped, err := meter.Int64Counter(MetricReaped,
		metric.WithDescription("Number of dead goroutines whose thread state was reclaimed"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		registrations:   registrations,
		deregistrations: deregistrations,
		gatherItems:     gatherItems,
		writes:          writes,
		invalidated:     invalidated,
		refreshes:       refreshes,
		reaped:          reaped,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func registryAttrs(kind, id string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("registry.kind", kind),
		attribute.String("registry.id", id),
	)
}

// RecordRegistration records a slot registration.
func (m *otelMetrics) RecordRegistration(ctx context.Context, kind, id string) {
	m.registrations.Add(ctx, 1, registryAttrs(kind, id))
}

// RecordDeregistration records a slot deregistration.
func (m *otelMetrics) RecordDeregistration(ctx context.Context, kind, id, outcome string) {
	m.deregistrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("registry.kind", kind),
		attribute.String("registry.id", id),
		attribute.String("outcome", outcome),
	))
}

// RecordGather records a gather.
func (m *otelMetrics) RecordGather(ctx context.Context, kind, id string, items int) {
	m.gatherItems.Record(ctx, int64(items), registryAttrs(kind, id))
}

// RecordWrite records a broadcast write.
func (m *otelMetrics) RecordWrite(ctx context.Context, id string, readers int) {
	attrs := registryAttrs("broadcast", id)
	m.writes.Add(ctx, 1, attrs)
	m.invalidated.Record(ctx, int64(readers), attrs)
}

// RecordRefresh records a reader refresh.
func (m *otelMetrics) RecordRefresh(ctx context.Context, id string) {
	m.refreshes.Add(ctx, 1, registryAttrs("broadcast", id))
}

// RecordReap records reaped threads.
func (m *otelMetrics) RecordReap(ctx context.Context, reaped int) {
	if reaped == 0 {
		return
	}
	m.reaped.Add(ctx, int64(reaped))
}
