package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a named logger. Every line it writes carries a "service" field
// with the logger name.
type Logger struct {
	name string
	zl   atomic.Pointer[zerolog.Logger]
}

// sinkHolder keeps atomic.Value storing a single concrete type regardless of
// the writer handed to SetOutput.
type sinkHolder struct {
	w       io.Writer
	console bool
}

var (
	globalDebug  atomic.Bool
	serviceDebug sync.Map // map[string]*atomic.Bool
	loggers      sync.Map // map[string]*Logger

	sink     atomic.Value // sinkHolder
	minLevel atomic.Int32
)

func init() {
	sink.Store(sinkHolder{w: os.Stderr})
	minLevel.Store(int32(zerolog.InfoLevel))
}

// ForService returns (and memoizes) a named logger for the given component.
func ForService(name string) *Logger {
	if name == "" {
		name = "unknown"
	}
	if l, ok := loggers.Load(name); ok {
		return l.(*Logger)
	}
	logger := &Logger{name: name}
	logger.rebuild(sink.Load().(sinkHolder))
	actual, _ := loggers.LoadOrStore(name, logger)
	return actual.(*Logger)
}

func (l *Logger) rebuild(s sinkHolder) {
	var out io.Writer = s.w
	if s.console {
		out = zerolog.ConsoleWriter{Out: s.w, TimeFormat: time.RFC3339, NoColor: true}
	}
	zl := zerolog.New(out).With().Timestamp().Str("service", l.name).Logger()
	l.zl.Store(&zl)
}

// SetGlobalDebug enables or disables debug logging globally.
func SetGlobalDebug(enabled bool) {
	globalDebug.Store(enabled)
}

// GlobalDebug returns whether global debug logging is enabled.
func GlobalDebug() bool {
	return globalDebug.Load()
}

// EnableDebugFor enables debug logging for a single named logger.
func EnableDebugFor(name string) {
	if name == "" {
		return
	}
	val, _ := serviceDebug.LoadOrStore(name, &atomic.Bool{})
	val.(*atomic.Bool).Store(true)
}

// DisableDebugFor disables debug logging for a single named logger.
func DisableDebugFor(name string) {
	if name == "" {
		return
	}
	if val, ok := serviceDebug.Load(name); ok {
		val.(*atomic.Bool).Store(false)
	}
}

// DebugEnabledFor reports whether debug lines from name are emitted, either
// because of the global switch, the configured level or a per-service override.
func DebugEnabledFor(name string) bool {
	if globalDebug.Load() || zerolog.Level(minLevel.Load()) <= zerolog.DebugLevel {
		return true
	}
	if val, ok := serviceDebug.Load(name); ok {
		return val.(*atomic.Bool).Load()
	}
	return false
}

// SetLevel sets the minimum level from its name (debug, info, warn, error).
// Unknown names are rejected and leave the level unchanged.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	minLevel.Store(int32(lvl))
	return nil
}

// ParseLevel maps a level name, case-insensitively, to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error", "critical":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
}

// SetOutput routes every logger, existing and future, to w.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	s := sink.Load().(sinkHolder)
	s.w = w
	setSink(s)
}

// SetConsole switches between JSON lines (the default) and a human readable
// console format.
func SetConsole(enabled bool) {
	s := sink.Load().(sinkHolder)
	s.console = enabled
	setSink(s)
}

func setSink(s sinkHolder) {
	sink.Store(s)
	loggers.Range(func(_, v any) bool {
		v.(*Logger).rebuild(s)
		return true
	})
}

func (l *Logger) enabled(level zerolog.Level) bool {
	return level >= zerolog.Level(minLevel.Load())
}

// With returns a zerolog event builder for structured fields, e.g.
// l.With(zerolog.InfoLevel).Str("id", id).Msg("indexed").
func (l *Logger) With(level zerolog.Level) *zerolog.Event {
	if level == zerolog.DebugLevel && !DebugEnabledFor(l.name) {
		return nil
	}
	if level != zerolog.DebugLevel && !l.enabled(level) {
		return nil
	}
	return l.zl.Load().WithLevel(level)
}

// Infof logs an informational message with fmt.Sprintf semantics.
func (l *Logger) Infof(format string, args ...any) {
	if !l.enabled(zerolog.InfoLevel) {
		return
	}
	l.zl.Load().Info().Msgf(format, args...)
}

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...any) {
	if !l.enabled(zerolog.WarnLevel) {
		return
	}
	l.zl.Load().Warn().Msgf(format, args...)
}

// Errorf logs an error.
func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Load().Error().Msgf(format, args...)
}

// Debugf logs only when debug is enabled for this logger.
func (l *Logger) Debugf(format string, args ...any) {
	if !DebugEnabledFor(l.name) {
		return
	}
	l.zl.Load().Debug().Msgf(format, args...)
}

// Level names accepted by SetLevel.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelDebug = "debug"
)
