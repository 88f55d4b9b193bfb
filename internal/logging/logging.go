// Package logging provides structured logging for the mesh simulator.
package logging

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// NewLogger creates a new structured logger with the specified level and format.
// Supported levels: debug, info, warn, error
// Supported formats: text, json
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level, format string, w io.Writer) *slog.Logger {
	lvl := parseLevel(level)

	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Levels lists the accepted level names.
var Levels = []string{"debug", "info", "warn", "warning", "error"}

// Formats lists the accepted output formats.
var Formats = []string{"text", "json"}

// IsValidLevel reports whether level names a known log level.
func IsValidLevel(level string) bool {
	return slices.Contains(Levels, strings.ToLower(level))
}

// IsValidFormat reports whether format names a known output format.
func IsValidFormat(format string) bool {
	return slices.Contains(Formats, strings.ToLower(format))
}

// Common attribute keys for consistent logging.
const (
	KeyPeerID    = "peer_id"
	KeyPacketID  = "packet_id"
	KeyTick      = "tick"
	KeyFrom      = "from"
	KeyVia       = "via"
	KeyTo        = "to"
	KeyRoute     = "route"
	KeyHops      = "hops"
	KeyReason    = "reason"
	KeyState     = "state"
	KeyInterface = "interface_id"
	KeyLatencyUs = "latency_us"
	KeyError     = "error"
	KeyComponent = "component"
	KeySeed      = "seed"
	KeyRunID     = "run_id"
	KeyCount     = "count"
)
