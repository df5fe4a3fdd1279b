// Package log builds configured slog loggers for the ragcache application.
//
// Loggers are passed explicitly into components rather than pulled from a
// global. Components add their own context with logger.With("component", ...).
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger so dependents do not need to
// import log/slog for the common case.
type Logger = *slog.Logger

// Config controls handler construction.
type Config struct {
	// Level is the minimum level that will be emitted. Default: slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// AddSource annotates records with the file and line of the call site.
	AddSource bool
}

// New returns a logger writing to os.Stderr.
// Stderr keeps stdout free for command output and MCP stdio framing.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter returns a logger writing to w. Tests use this with a
// bytes.Buffer to inspect output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that discards everything. Test use only.
func NewNop() Logger {
	return slog.New(slog.DiscardHandler)
}
