// Package observability provides logging and metrics for the thread-local
// registries and broadcast values.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//
// Both are opt-in. Loggers default to discarding output and metrics default
// to NoopMetrics. Nothing here is called on a hot path: only registration,
// deregistration, traversal and reaping report.
package observability

import (
	"log/slog"
)

// Discard is the logger used when none is configured.
var Discard = slog.New(slog.DiscardHandler)

// EnrichLogger adds registry identity to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "collect", "5f0c...")
//	enriched.Debug("cleared") // includes registry.kind, registry.id
func EnrichLogger(logger *slog.Logger, kind, id string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("registry.kind", kind),
		slog.String("registry.id", id),
	)
}

// LogRegister logs the first access of a thread to a registry.
func LogRegister(logger *slog.Logger, tid uint32, live int) {
	if logger == nil {
		return
	}
	logger.Debug("thread registered",
		slog.Uint64("tid", uint64(tid)),
		slog.Int("live", live),
	)
}

// LogDeregister logs a thread leaving a registry on thread exit.
func LogDeregister(logger *slog.Logger, tid uint32, outcome string) {
	if logger == nil {
		return
	}
	logger.Debug("thread deregistered",
		slog.Uint64("tid", uint64(tid)),
		slog.String("outcome", outcome),
	)
}

// LogClear logs a forced reset of a registry.
func LogClear(logger *slog.Logger, detached, dropped int, closed bool) {
	if logger == nil {
		return
	}
	logger.Debug("registry cleared",
		slog.Int("detached", detached),
		slog.Int("dropped", dropped),
		slog.Bool("closed", closed),
	)
}

// LogRetainEvicted logs dead-thread slots dropped to honour a retain limit.
func LogRetainEvicted(logger *slog.Logger, evicted, limit int) {
	if logger == nil {
		return
	}
	logger.Info("retained slots evicted",
		slog.Int("evicted", evicted),
		slog.Int("limit", limit),
	)
}

// LogThreadExit logs the teardown of a thread record.
func LogThreadExit(logger *slog.Logger, tid uint32, gid int64, cells int, reaped bool) {
	if logger == nil {
		return
	}
	logger.Debug("thread exited",
		slog.Uint64("tid", uint64(tid)),
		slog.Int64("gid", gid),
		slog.Int("cells", cells),
		slog.Bool("reaped", reaped),
	)
}

// LogReap logs one pass of the dead-goroutine reaper.
func LogReap(logger *slog.Logger, scanned, reaped int) {
	if logger == nil {
		return
	}
	if reaped == 0 {
		logger.Debug("reap pass",
			slog.Int("scanned", scanned),
		)
		return
	}
	logger.Info("reaped dead threads",
		slog.Int("scanned", scanned),
		slog.Int("reaped", reaped),
	)
}
