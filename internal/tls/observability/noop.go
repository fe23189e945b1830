package observability

import "context"

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordRegistration does nothing.
func (NoopMetrics) RecordRegistration(_ context.Context, _, _ string) {}

// RecordDeregistration does nothing.
func (NoopMetrics) RecordDeregistration(_ context.Context, _, _, _ string) {}

// RecordGather does nothing.
func (NoopMetrics) RecordGather(_ context.Context, _, _ string, _ int) {}

// RecordWrite does nothing.
func (NoopMetrics) RecordWrite(_ context.Context, _ string, _ int) {}

// RecordRefresh does nothing.
func (NoopMetrics) RecordRefresh(_ context.Context, _ string) {}

// RecordReap does nothing.
func (NoopMetrics) RecordReap(_ context.Context, _ int) {}
