// Package logging provides a structured logging system for csgate built on
// Go's standard slog package.
//
// All log entries carry a subsystem identifier for categorization
// ("Auth", "Gateway", "Catalog", "Config", "Bootstrap") plus a printf-style
// message. Level filtering happens at the handler, so filtered-out messages
// cost no allocation.
//
// Usage:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("Bootstrap", "Gateway starting on %s", addr)
//	logging.Error("Auth", err, "Failed to persist token")
package logging
