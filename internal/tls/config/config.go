package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVar is the environment variable read by FromEnv.
const EnvVar = "GOTLS"

// Config is the process-wide configuration.
//
// Environment strings and files use the same keys: reap_every,
// reap_interval, log_level, metrics and retain_limit.
type Config struct {
	// ReapEvery is the number of thread creations between background reap
	// passes. 0 disables count-triggered reaping.
	ReapEvery int

	// ReapInterval is the period of the background reaper ticker.
	// 0 disables the ticker.
	ReapInterval time.Duration

	// LogLevel is the slog level name, or "off" (or empty) for no logging.
	LogLevel string

	// Metrics enables the OpenTelemetry recorder.
	Metrics bool

	// RetainLimit is the default retain limit of Splitter registries.
	// 0 means unlimited.
	RetainLimit int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ReapEvery: 1000,
		LogLevel:  "off",
	}
}

// Parse parses a whitespace separated list of key=value pairs over the
// defaults, e.g. "reap_every=500 reap_interval=1s log_level=debug".
func Parse(s string) (Config, error) {
	cfg := Default()
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Config{}, fmt.Errorf("parse %q: missing '='", field)
		}
		if err := cfg.set(key, value); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv parses the GOTLS environment variable. An unset variable yields
// Default().
func FromEnv() (Config, error) {
	s, ok := os.LookupEnv(EnvVar)
	if !ok {
		return Default(), nil
	}
	cfg, err := Parse(s)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvVar, err)
	}
	return cfg, nil
}

// set assigns one key from its textual form.
func (c *Config) set(key, value string) error {
	switch key {
	case "reap_every":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("reap_every: %w", err)
		}
		c.ReapEvery = n
	case "reap_interval":
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("reap_interval: %w", err)
		}
		c.ReapInterval = d
	case "log_level":
		c.LogLevel = value
	case "metrics":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		c.Metrics = b
	case "retain_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("retain_limit: %w", err)
		}
		c.RetainLimit = n
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// parseDuration accepts a duration string or a number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Validate reports every invalid field, joined with errors.Join.
func (c Config) Validate() error {
	var errs []error
	if c.ReapEvery < 0 {
		errs = append(errs, fmt.Errorf("reap_every must be >= 0, got %d", c.ReapEvery))
	}
	if c.ReapInterval < 0 {
		errs = append(errs, fmt.Errorf("reap_interval must be >= 0, got %s", c.ReapInterval))
	}
	if c.RetainLimit < 0 {
		errs = append(errs, fmt.Errorf("retain_limit must be >= 0, got %d", c.RetainLimit))
	}
	if _, _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the configured slog level. enabled is false when logging is
// off.
func (c Config) Level() (level slog.Level, enabled bool, err error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "off", "none":
		return 0, false, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, false, fmt.Errorf("log_level: %w", err)
	}
	return level, true, nil
}

// Logger returns a text logger writing to stderr at the configured level,
// or nil when logging is off.
func (c Config) Logger() (*slog.Logger, error) {
	level, enabled, err := c.Level()
	if err != nil || !enabled {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
