/*
Package config holds the process-wide settings of the thread-local registries.

# Overview

Config controls the dead-goroutine reaper, logging and metrics. It can be
built in code, parsed from the GOTLS environment variable or loaded from a
YAML or JSON file:

	cfg, err := config.FromEnv()          // GOTLS="reap_every=500 log_level=debug"
	cfg, err := config.FromFile("tls.yaml")

The result is applied with tls.Configure.

# Keys

	reap_every     thread creations between background reap passes (0 = off)
	reap_interval  period of the reaper ticker, e.g. "250ms" (0 = off)
	log_level      debug, info, warn, error or off
	metrics        true to record OpenTelemetry metrics
	retain_limit   default WithRetainLimit for Splitter registries (0 = unlimited)

# Duration Coercion

reap_interval accepts a duration string ("1s", "1h30m") or a number, which
is interpreted as seconds.
*/
package config
