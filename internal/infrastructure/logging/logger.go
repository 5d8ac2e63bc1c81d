package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"

	"github.com/nerrad567/yatori-runner/internal/infrastructure/config"
)

// diagnosticsFileMode is the permission mode for the diagnostics log file.
const diagnosticsFileMode = 0640

// Logger wraps slog.Logger with runner-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
// Records can be fanned out to a diagnostics file and the systemd journal
// in addition to the primary output.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON or text) on stdout/stderr
//   - Log level filtering
//   - Default fields (service name, version)
//   - Optional diagnostics file and journal sinks
//
// A sink that cannot be opened is skipped with a warning on the primary output.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	primary := newHandler(cfg.Format, output, opts)
	handlers := []slog.Handler{primary}
	var closers []io.Closer

	if cfg.File.Path != "" {
		f, err := openDiagnosticsFile(cfg.File.Path)
		if err != nil {
			warn(primary, "diagnostics file unavailable", "path", cfg.File.Path, "error", err)
		} else {
			// The file always gets JSON so it stays machine-parsable.
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
			closers = append(closers, f)
		}
	}

	if cfg.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: opts.Level,
		})
		if err != nil {
			warn(primary, "systemd journal unavailable", "error", err)
		} else {
			handlers = append(handlers, journal)
		}
	}

	var handler slog.Handler = primary
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "yatori-runner"),
		slog.String("version", version),
	})

	return &Logger{
		Logger:  slog.New(handler),
		closers: closers,
	}
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func openDiagnosticsFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, diagnosticsFileMode) //nolint:gosec // Path comes from operator config
}

// warn writes directly to a handler before the Logger exists.
func warn(h slog.Handler, msg string, args ...any) {
	record := slog.NewRecord(time.Now(), slog.LevelWarn, msg, 0)
	record.Add(args...)
	_ = h.Handle(context.Background(), record) //nolint:errcheck // Best effort during setup
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
// The returned Logger shares sinks with its parent; only the parent should be closed.
//
// Example:
//
//	runLogger := logger.With("component", "coordinator")
//	runLogger.Info("session started") // Includes component=coordinator
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Close releases file sinks opened by New.
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs text to stderr at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, "dev")
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
