package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 500

// Logger is the subset of *slog.Logger the rest of the daemon depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     = make(map[string]*slog.Logger)
	levelVars   = make(map[string]*slog.LevelVar)
	history     *RingBuffer
)

// Initialize sets up the logging system. Loggers handed out before
// Initialize are rebuilt so they pick up configured levels and the
// history buffer.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	initialized = true
	history = NewRingBuffer(historySize)

	for module, lv := range levelVars {
		lv.Set(levelFor(module))
		loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	root := &slog.LevelVar{}
	root.Set(levelFor(""))
	slog.SetDefault(slog.New(newHandler(cfg.Format, root)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := loggers[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(levelFor(module))

	format := "text"
	if initialized {
		format = cfg.Format
	}

	l := slog.New(newHandler(format, lv)).With("module", module)
	loggers[module] = l
	levelVars[module] = lv
	return l
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) {
	mu.Lock()
	defer mu.Unlock()
	if lv, ok := levelVars[module]; ok {
		if parsed, ok := parseLevel(level); ok {
			lv.Set(parsed)
		}
	}
}

// History returns the in-memory log history buffer, or nil before Initialize.
func History() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// levelFor resolves the effective level for a module (caller holds mu).
func levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if !initialized {
		return level
	}
	if parsed, ok := parseLevel(cfg.Level); ok {
		level = parsed
	}
	if override, exists := cfg.Modules[module]; exists {
		if parsed, ok := parseLevel(override); ok {
			level = parsed
		}
	}
	return level
}

// newHandler builds the handler chain: stdout, journal when running under
// systemd, and the in-memory history buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
	}

	if journalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// parseLevel converts a level string to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
