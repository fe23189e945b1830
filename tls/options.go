package tls

import (
	"log/slog"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/observability"
)

// MetricsRecorder records registry and broadcast metrics.
type MetricsRecorder = observability.MetricsRecorder

// NoopMetrics is a MetricsRecorder that records nothing.
type NoopMetrics = observability.NoopMetrics

// NewMetricsRecorder returns a MetricsRecorder backed by the global
// OpenTelemetry meter provider.
func NewMetricsRecorder() MetricsRecorder {
	return observability.NewMetricsRecorder()
}

// Option configures a registry or broadcast value.
type Option func(*options)

type options struct {
	tag         any
	unique      bool
	logger      *slog.Logger
	metrics     MetricsRecorder
	retainLimit int
}

// Process-wide defaults installed by Configure.
var (
	defaultLogger      atomic.Pointer[slog.Logger]
	defaultMetrics     atomic.Pointer[metricsBox]
	defaultRetainLimit atomic.Int64
)

type metricsBox struct {
	MetricsRecorder
}

func init() {
	defaultLogger.Store(observability.Discard)
	defaultMetrics.Store(&metricsBox{NoopMetrics{}})
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      defaultLogger.Load(),
		metrics:     defaultMetrics.Load().MetricsRecorder,
		retainLimit: int(defaultRetainLimit.Load()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTag sets the identity tag. Registries of the same kind and element
// type share per-thread storage unless their tags differ. tag must be
// comparable; a private key type works well:
//
//	type histKey struct{}
//	h := tls.NewCollect[[]int](tls.WithTag(histKey{}))
func WithTag(tag any) Option {
	return func(o *options) {
		o.tag = tag
	}
}

// Unique gives the registry an identity of its own, so its per-thread
// storage is never shared with any other registry.
func Unique() Option {
	return func(o *options) {
		o.unique = true
	}
}

// WithLogger sets the logger for lifecycle events. nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = observability.Discard
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics recorder. nil disables metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetrics{}
		}
		o.metrics = m
	}
}

// WithRetainLimit bounds how many slots of exited threads a Splitter keeps.
// Beyond n the oldest are dropped. 0 keeps all of them. Other registries
// ignore this option.
func WithRetainLimit(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.retainLimit = n
	}
}
