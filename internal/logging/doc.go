// Package logging assembles the structured slog loggers used across vitrine.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standardized field keys so every component tags
// run IDs, item keys, and pipeline stages the same way. A no-op logger is
// available for tests and wiring code that cannot fail.
package logging
