// Package logging provides structured logging for the IKC runtime.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Format string // "json" (default) or "text"
	Output io.Writer
	// Sync forces synchronous, unbuffered writes; kept for parity with the
	// teacher's config shape, zerolog is unbuffered by default.
	Sync bool
	// NoColor disables ANSI color codes in the "text" console writer.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "json",
		Output: os.Stderr,
	}
}

// Logger wraps zerolog with the runtime's leveled, contextual API.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger creates a new logger from config.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	format := config.Format
	if format == "" {
		format = "json"
	}

	var w io.Writer = output
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: output, NoColor: config.NoColor}
	}

	zl := zerolog.New(w).Level(config.Level.zerolog()).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) with(args []any) zerolog.Context {
	ctx := l.zl.With()
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, args[i+1])
	}
	return ctx
}

// WithNode attaches the NoC node id to every subsequent log entry.
func (l *Logger) WithNode(nodeID int) *Logger {
	return &Logger{zl: l.zl.With().Int("node_id", nodeID).Logger()}
}

// WithFlow attaches a flow's kind and communicator id, matching the
// teacher's per-queue context logger.
func (l *Logger) WithFlow(kind string, commID int) *Logger {
	return &Logger{zl: l.zl.With().Str("flow_kind", kind).Int("comm_id", commID).Logger()}
}

// WithTask attaches a task id plus a fresh dispatch correlation id, so a
// single config/wait retry sequence can be traced across log lines.
func (l *Logger) WithTask(taskID uint32) *Logger {
	return &Logger{zl: l.zl.With().Uint32("task_id", taskID).Str("dispatch_id", uuid.NewString()).Logger()}
}

// WithError attaches an error to the logger context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string, args ...any) { l.with(args).Logger().Debug().Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.with(args).Logger().Info().Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.with(args).Logger().Warn().Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { l.with(args).Logger().Error().Msg(msg) }

// Debugf/Infof/Warnf/Errorf are printf-style convenience wrappers, kept for
// call sites that format their own message instead of passing key-value
// pairs.
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Printf logs at Info level, for compatibility with the generic Logger
// interface other packages accept.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
