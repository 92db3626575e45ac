// Package logging provides structured logging with per-module log levels.
//
// It wraps log/slog: each subsystem gets its own logger via GetLogger,
// with a runtime-adjustable level. Output goes to stdout (text or json),
// to the systemd journal when journald is present, and into an in-memory
// ring buffer that backs the /api/logs endpoint.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"stream": "debug",
//			"device": "warn",
//		},
//	})
//
// then grab a logger anywhere:
//
//	logger := logging.GetLogger("device")
//	logger.Info("default changed", "uid", uid, "direction", "input")
package logging
