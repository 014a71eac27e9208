// Package logging provides structured logging with per-module log levels.
//
// Built on slog with automatic output routing: stdout (text or json),
// systemd journal when journald is present, and an in-memory ring buffer
// that backs the admin log-tail endpoint.
//
// Initialize once at startup, then grab module loggers anywhere:
//
//	logging.Initialize(logging.Config{Level: "info", Format: "text"})
//	logger := logging.GetLogger("restream")
//	logger.Info("encoder started", "platform", "youtube")
//
// Module-specific levels override the global level:
//
//	[logging]
//	level = "info"
//	gateway = "debug"
package logging
