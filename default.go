package scopelog

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// ConfigEnv names a YAML file the default logger is configured from.
const ConfigEnv = "SCOPELOG_CONFIG"

var (
	defaultLogger atomic.Pointer[Logger]
	defaultMu     sync.Mutex // protects default logger initialization
)

// Default returns the process-wide logger, building it on first use from
// the file named by SCOPELOG_CONFIG or from DefaultConfig.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefault()
	defaultLogger.Store(l)
	return l
}

func newDefault() *Logger {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return New()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		log.Printf("scopelog: ignoring %s: %v", ConfigEnv, err)
		return New()
	}
	return New(WithConfig(cfg))
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger.Store(l)
}

// ResetDefault closes the process-wide logger, if any, so the next call to
// Default builds a fresh one. Mainly used for testing.
func ResetDefault() {
	defaultMu.Lock()
	l := defaultLogger.Swap(nil)
	defaultMu.Unlock()
	if l != nil {
		_ = l.Close()
	}
}

// Log logs at level on the default logger.
func Log(level slog.Level, format string, args ...any) {
	Default().logAt(level, format, args...)
}

// Trace logs a message at trace level
func Trace(format string, args ...any) { Default().logAt(LevelTrace, format, args...) }

// Debug logs a message at debug level
func Debug(format string, args ...any) { Default().logAt(LevelDebug, format, args...) }

// Info logs a message at info level
func Info(format string, args ...any) { Default().logAt(LevelInfo, format, args...) }

// Notice logs a message at notice level
func Notice(format string, args ...any) { Default().logAt(LevelNotice, format, args...) }

// Warning logs a message at warning level
func Warning(format string, args ...any) { Default().logAt(LevelWarning, format, args...) }

// Error logs a message at error level
func Error(format string, args ...any) { Default().logAt(LevelError, format, args...) }

// Critical logs a message at critical level
func Critical(format string, args ...any) { Default().logAt(LevelCritical, format, args...) }

// Alert logs a message at alert level
func Alert(format string, args ...any) { Default().logAt(LevelAlert, format, args...) }

// Emergency logs a message at emergency level
func Emergency(format string, args ...any) { Default().logAt(LevelEmergency, format, args...) }

// Scope runs fn inside a scope on the default logger.
func Scope(fn func()) {
	file, line := callerSite(2)
	Default().scopeAt(file, line, fn)
}

// Enter opens a scope on the default logger; see Logger.Enter.
func Enter() func() {
	file, line := callerSite(2)
	return Default().enterAt(file, line)
}

// TimerStart opens a region on the default logger.
func TimerStart() {
	file, line := callerSite(2)
	Default().TimerStartAt(file, line)
}

// TimerStop closes a region on the default logger.
func TimerStop() {
	file, line := callerSite(2)
	Default().TimerStopAt(file, line)
}

// TimerPrint writes the calling goroutine's report from the default logger.
func TimerPrint() { Default().TimerPrint() }

// MemoryDump writes the default logger's live allocations.
func MemoryDump() { Default().MemoryDump() }

// Recover must be deferred directly; see Logger.Recover.
func Recover() {
	if r := recover(); r != nil {
		Default().crash.Trigger(fmt.Sprint(r))
	}
}
