// Package logging provides structured logging with slog for chatproofd.
//
// Features:
//   - JSON and text output formats
//   - Runtime-adjustable level (used by config hot reload)
//   - Request IDs carried through context
//   - Redaction of credential-bearing attributes
//   - File rotation through lumberjack
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is one of "stdout", "stderr", "file" or "both".
	Output string

	// FilePath is the log file used when Output includes a file.
	FilePath string

	// Rotation settings passed to lumberjack.
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record.
	Component string

	// Writer overrides Output when set. Tests use it to capture records.
	Writer io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   DefaultLogPath(),
		MaxSizeMB:  100,
		MaxAgeDays: 30,
		MaxBackups: 5,
		Compress:   true,
		Component:  "chatproofd",
	}
}

// DefaultLogPath returns the default log file location under
// XDG_STATE_HOME (or ~/.local/state).
func DefaultLogPath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "chatproofd", "chatproofd.log")
}

// Logger wraps slog.Logger with a shared level and the file it writes to.
type Logger struct {
	*slog.Logger
	config *Config
	level  *slog.LevelVar
	file   *lumberjack.Logger
}

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
)

// Default returns the process-wide logger, creating a stderr logger on
// first use.
func Default() *Logger {
	loggerMu.RLock()
	l := defaultLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger, _ = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault sets the process-wide logger and slog's default.
func SetDefault(l *Logger) {
	loggerMu.Lock()
	defaultLogger = l
	loggerMu.Unlock()
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	l, _ := New(&Config{Writer: io.Discard, Level: LevelError + 1})
	return l
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config: cfg,
		level:  new(slog.LevelVar),
	}
	l.level.Set(cfg.Level)

	w, err := l.writer()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     l.level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

func (l *Logger) writer() (io.Writer, error) {
	if l.config.Writer != nil {
		return l.config.Writer, nil
	}

	switch strings.ToLower(l.config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file":
		if err := l.openFile(); err != nil {
			return nil, err
		}
		return l.file, nil
	case "both":
		if err := l.openFile(); err != nil {
			return nil, err
		}
		return io.MultiWriter(os.Stderr, l.file), nil
	default:
		return os.Stderr, nil
	}
}

func (l *Logger) openFile() error {
	if l.config.FilePath == "" {
		return fmt.Errorf("file output requires a file path")
	}
	if err := os.MkdirAll(filepath.Dir(l.config.FilePath), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	l.file = NewRotatingFile(l.config.FilePath, l.config.MaxSizeMB, l.config.MaxBackups, l.config.MaxAgeDays, l.config.Compress)
	return nil
}

// NewRotatingFile returns a size-rotated log file.
func NewRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
}

// shouldRedact checks if an attribute key names a credential.
func shouldRedact(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "token", "credential",
		"private", "auth", "cookie", "api_key",
		"apikey", "bearer",
	}

	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel changes the minimum level of this logger and every logger
// derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() Level {
	return l.level.Level()
}

func (l *Logger) derive(sl *slog.Logger) *Logger {
	return &Logger{
		Logger: sl,
		config: l.config,
		level:  l.level,
		file:   l.file,
	}
}

// WithRequestID returns a new logger with a request ID.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.derive(l.Logger.With(slog.String("request_id", id)))
}

// NewRequestID generates a new unique request ID.
func (l *Logger) NewRequestID() string {
	return l.config.Component + "-" + uuid.NewString()
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.Logger.With(slog.String("component", name)))
}

// WithContext returns a logger with context-derived attributes.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return l.WithRequestID(reqID)
	}
	return l
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Rotate forces a rotation of the log file, if any.
func (l *Logger) Rotate() error {
	if l.file != nil {
		return l.file.Rotate()
	}
	return nil
}

type contextKey int

const (
	requestIDKey contextKey = iota
)

// ContextWithRequestID returns a new context with the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}
