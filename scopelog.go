package scopelog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dianlight/scopelog/callpath"
	"github.com/dianlight/scopelog/crash"
	"github.com/dianlight/scopelog/internal/clock"
	"github.com/dianlight/scopelog/internal/gls"
	"github.com/dianlight/scopelog/memtrack"
	"github.com/dianlight/scopelog/redact"
	"github.com/dianlight/scopelog/timer"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/mattn/go-isatty"
)

// Clock is the monotonic time source used for elapsed-time decorations,
// allocation timestamps and region timing.
type Clock = clock.Clock

// Logger combines leveled emission with scope tracing, allocation tracking
// and region timing. Its configuration is fixed by New.
type Logger struct {
	cfg   Config
	out   *Output
	clock Clock
	exit  func(int)

	tracer *callpath.Tracer  // nil when scope tracing is off
	memory *memtrack.Tracker // nil when allocation tracking is off
	timers *timer.Engine     // nil when timing is off
	crash  *crash.Hook
	events *eventProcessor

	colorize bool
	printer  *pp.PrettyPrinter

	initOnce  sync.Once
	closeOnce sync.Once
}

// New builds a Logger from DefaultConfig and opts.
func New(opts ...Option) *Logger {
	l := &Logger{
		cfg:  DefaultConfig(),
		exit: os.Exit,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.out == nil {
		l.out = NewOutput(nil, nil)
	}
	if l.clock == nil {
		l.clock = clock.NewSystem()
	}
	if l.cfg.MaxLineLength < 2 {
		l.cfg.MaxLineLength = DefaultMaxLineLength
	}
	l.cfg.ExitLevels = slices.Clone(l.cfg.ExitLevels)

	report := func(file string, line int, msg string) {
		l.Emit(l.cfg.Decorations, LevelError, line, file, "%s", msg)
	}

	var paths interface{ Current() string }
	if l.cfg.Scope {
		l.tracer = callpath.NewTracer()
		paths = l.tracer
	}
	if l.cfg.Memory {
		l.memory = memtrack.NewTracker(memtrack.NewRegistry(l.clock, paths), report, l.exit)
	}
	if l.cfg.Timer {
		l.timers = timer.NewEngine(l.clock, paths, l.out, report)
	}

	l.crash = crash.New(crash.WithExit(l.exit))
	if l.memory != nil {
		l.crash.Register(crash.DumperFunc(l.dumpMemory))
	}
	if l.timers != nil {
		l.crash.Register(crash.DumperFunc(func() {
			l.timers.PrintAll()
			l.timers.ClearAll()
		}))
	}

	l.events = newEventProcessor()
	l.colorize = l.cfg.Color && isTerminal(os.Stdout)
	l.printer = pp.New()
	l.printer.SetColoringEnabled(l.colorize)
	return l
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ensureInit performs the one-time work deferred to first use.
func (l *Logger) ensureInit() {
	l.initOnce.Do(func() {
		if l.cfg.CrashHook {
			l.crash.Install()
		}
	})
}

// Config returns a copy of the logger's configuration.
func (l *Logger) Config() Config {
	cfg := l.cfg
	cfg.ExitLevels = slices.Clone(cfg.ExitLevels)
	return cfg
}

// Enabled reports whether messages at level pass the minimum level.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.cfg.MinLevel
}

func (l *Logger) exitsOn(level slog.Level) bool {
	return slices.Contains(l.cfg.ExitLevels, level)
}

// callerSite returns the base file name and line skip frames above its caller.
func callerSite(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???", 0
	}
	return filepath.Base(file), line
}

func (l *Logger) breadcrumb() string {
	if l.tracer == nil {
		return ""
	}
	return l.tracer.Current()
}

func (l *Logger) label(level slog.Level) string {
	text := levelLabel(level)
	if !l.colorize {
		return text
	}
	c := color.New(levelColors[level])
	c.EnableColor()
	return c.Sprint(text)
}

// Emit formats one line and writes it to the sink. The decorations in flags
// come first, each followed by " | ", then the message. The line is cut to
// the configured maximum length and ends with exactly one newline.
//
// Emit does not filter on level and never exits; the per-level methods do
// both.
func (l *Logger) Emit(flags Decoration, level slog.Level, line int, file, format string, args ...any) {
	var b strings.Builder
	if flags&ShowLevel != 0 {
		b.WriteString(l.label(level))
		b.WriteString(" | ")
	}
	millis := l.clock.Millis()
	if flags&ShowTime != 0 {
		fmt.Fprintf(&b, "%dms | ", millis)
	}
	var tid uint64
	if flags&ShowThread != 0 {
		tid = gls.ID()
		fmt.Fprintf(&b, "tid %d | ", tid)
	}
	crumb := l.breadcrumb()
	if flags&ShowPath != 0 {
		b.WriteString(callpath.Join(crumb, callpath.Frame{File: file, Line: line}.String()))
		b.WriteString(" | ")
	}

	msg := fmt.Sprintf(format, args...)
	if l.cfg.HideSensitiveData {
		msg = redact.Message(msg)
	}
	b.WriteString(msg)

	text := finishLine(b.String(), l.cfg.MaxLineLength)
	l.out.WriteLine(text)

	l.events.publish(level, func() LogEvent {
		if tid == 0 {
			tid = gls.ID()
		}
		return LogEvent{
			Level:     level,
			Millis:    millis,
			Goroutine: tid,
			File:      file,
			Line:      line,
			Path:      crumb,
			Message:   msg,
			Output:    text,
		}
	})
}

// finishLine bounds s to limit bytes, newline included, without splitting a
// UTF-8 sequence, and terminates it with a single newline.
func finishLine(s string, limit int) string {
	if len(s) > limit || (len(s) == limit && !strings.HasSuffix(s, "\n")) {
		cut := limit - 1
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

// logAt must be called directly by an exported logging method or function
// because it uses a fixed call depth to find the call site.
func (l *Logger) logAt(level slog.Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.ensureInit()
	file, line := callerSite(3)
	l.emitAndExit(level, file, line, format, args...)
}

func (l *Logger) emitAndExit(level slog.Level, file string, line int, format string, args ...any) {
	l.Emit(l.cfg.Decorations, level, line, file, format, args...)
	if l.exitsOn(level) {
		l.exit(l.cfg.ExitCode)
	}
}

// Log emits at an arbitrary level.
func (l *Logger) Log(level slog.Level, format string, args ...any) {
	l.logAt(level, format, args...)
}

// Trace logs a message at trace level
func (l *Logger) Trace(format string, args ...any) { l.logAt(LevelTrace, format, args...) }

// Debug logs a message at debug level
func (l *Logger) Debug(format string, args ...any) { l.logAt(LevelDebug, format, args...) }

// Info logs a message at info level
func (l *Logger) Info(format string, args ...any) { l.logAt(LevelInfo, format, args...) }

// Notice logs a message at notice level
func (l *Logger) Notice(format string, args ...any) { l.logAt(LevelNotice, format, args...) }

// Warning logs a message at warning level
func (l *Logger) Warning(format string, args ...any) { l.logAt(LevelWarning, format, args...) }

// Error logs a message at error level
func (l *Logger) Error(format string, args ...any) { l.logAt(LevelError, format, args...) }

// Critical logs a message at critical level
func (l *Logger) Critical(format string, args ...any) { l.logAt(LevelCritical, format, args...) }

// Alert logs a message at alert level
func (l *Logger) Alert(format string, args ...any) { l.logAt(LevelAlert, format, args...) }

// Emergency logs a message at emergency level
func (l *Logger) Emergency(format string, args ...any) { l.logAt(LevelEmergency, format, args...) }

// Inspect pretty-prints v, labelled, at level.
func (l *Logger) Inspect(level slog.Level, label string, v any) {
	if !l.Enabled(level) {
		return
	}
	l.ensureInit()
	file, line := callerSite(2)
	l.emitAndExit(level, file, line, "%s = %s", label, l.printer.Sprint(v))
}

// Scope runs fn inside a scope named after the caller's site. The scope is
// left even when fn panics.
func (l *Logger) Scope(fn func()) {
	file, line := callerSite(2)
	l.scopeAt(file, line, fn)
}

func (l *Logger) scopeAt(file string, line int, fn func()) {
	l.ensureInit()
	if l.tracer == nil {
		fn()
		return
	}
	l.tracer.Push(file, line)
	defer l.tracer.Pop()
	fn()
}

// Enter opens a scope named after the caller's site and returns the function
// that leaves it:
//
//	defer l.Enter()()
func (l *Logger) Enter() func() {
	file, line := callerSite(2)
	return l.enterAt(file, line)
}

func (l *Logger) enterAt(file string, line int) func() {
	l.ensureInit()
	if l.tracer == nil {
		return func() {}
	}
	l.tracer.Push(file, line)
	return l.tracer.Pop
}

// Breadcrumb returns the calling goroutine's current call path.
func (l *Logger) Breadcrumb() string {
	return l.breadcrumb()
}

// TimerReset discards the calling goroutine's timer data and open regions.
func (l *Logger) TimerReset() {
	if l.timers != nil {
		l.timers.Reset()
	}
}

// TimerStart opens a region at the caller's site.
func (l *Logger) TimerStart() {
	file, line := callerSite(2)
	l.TimerStartAt(file, line)
}

// TimerStop closes the innermost open region at the caller's site.
func (l *Logger) TimerStop() {
	file, line := callerSite(2)
	l.TimerStopAt(file, line)
}

// TimerStartAt opens a region at an explicit site.
func (l *Logger) TimerStartAt(file string, line int) {
	if l.timers == nil {
		return
	}
	l.ensureInit()
	l.timers.Start(file, line)
}

// TimerStopAt closes the innermost open region, attributing its exit to an
// explicit site.
func (l *Logger) TimerStopAt(file string, line int) {
	if l.timers == nil {
		return
	}
	l.ensureInit()
	l.timers.Stop(file, line)
}

// TimerPrint writes the calling goroutine's timing report.
func (l *Logger) TimerPrint() {
	if l.timers == nil {
		return
	}
	l.ensureInit()
	l.timers.Print()
}

// TimerClear discards the calling goroutine's aggregates.
func (l *Logger) TimerClear() {
	if l.timers == nil {
		return
	}
	l.ensureInit()
	l.timers.Clear()
}

// Timings returns the calling goroutine's aggregates.
func (l *Logger) Timings() []timer.SiteStats {
	if l.timers == nil {
		return nil
	}
	return l.timers.Snapshot()
}

// Malloc returns a tracked buffer of size bytes, or nil when size is not
// positive.
func (l *Logger) Malloc(size int) []byte {
	if l.memory == nil {
		if size <= 0 {
			return nil
		}
		return make([]byte, size)
	}
	l.ensureInit()
	file, line := callerSite(2)
	return l.memory.Malloc(size, file, line)
}

// Calloc returns a tracked, zeroed buffer of n*size bytes.
func (l *Logger) Calloc(n, size int) []byte {
	if l.memory == nil {
		if n <= 0 || size <= 0 {
			return nil
		}
		return make([]byte, n*size)
	}
	l.ensureInit()
	file, line := callerSite(2)
	return l.memory.Calloc(n, size, file, line)
}

// Realloc resizes a tracked buffer. See memtrack.Tracker.Realloc.
func (l *Logger) Realloc(buf []byte, size int) []byte {
	if l.memory == nil {
		switch {
		case size <= 0:
			return nil
		case cap(buf) >= size:
			return buf[:size]
		}
		out := make([]byte, size)
		copy(out, buf)
		return out
	}
	l.ensureInit()
	file, line := callerSite(2)
	return l.memory.Realloc(buf, size, file, line)
}

// Strdup copies s into a tracked buffer.
func (l *Logger) Strdup(s string) []byte {
	if l.memory == nil {
		return []byte(s)
	}
	l.ensureInit()
	file, line := callerSite(2)
	return l.memory.Strdup(s, file, line)
}

// Free releases a tracked buffer. Freeing nil or an untracked buffer is
// reported and terminates the process.
func (l *Logger) Free(buf []byte) {
	if l.memory == nil {
		return
	}
	l.ensureInit()
	file, line := callerSite(2)
	l.memory.Free(buf, file, line)
}

// MemoryDump writes every live tracked allocation.
func (l *Logger) MemoryDump() {
	if l.memory == nil {
		return
	}
	l.ensureInit()
	l.dumpMemory()
}

// dumpMemory is the crash and Close path; it must not install the hook.
func (l *Logger) dumpMemory() {
	if l.memory != nil {
		l.memory.Registry().Dump(l.out)
	}
}

// Allocations returns the live tracked allocations in allocation order.
func (l *Logger) Allocations() []memtrack.Entry {
	if l.memory == nil {
		return nil
	}
	return l.memory.Registry().Snapshot()
}

// Recover must be deferred directly. A panic in the deferring goroutine is
// turned into a crash report followed by exit.
func (l *Logger) Recover() {
	if r := recover(); r != nil {
		l.crash.Trigger(fmt.Sprint(r))
	}
}

// Release discards the calling goroutine's scope and timer state. Scope state
// goes away on its own once the outermost scope is left, but timer aggregates
// live until Release because they are kept for TimerPrint. Goroutines started
// with a plain go statement that used the timers must call Release before
// returning; Go does it for them.
func (l *Logger) Release() {
	if l.tracer != nil {
		l.tracer.Release()
	}
	if l.timers != nil {
		l.timers.Release()
	}
}

// Go runs fn on a new goroutine and releases its state when fn returns. With
// the crash hook enabled a panic in fn produces a crash report.
func (l *Logger) Go(fn func()) {
	go func() {
		defer l.Release()
		if l.cfg.CrashHook {
			defer l.Recover()
		}
		fn()
	}()
}

// Close dumps live allocations when MemoryDumpOnExit is set, detaches the
// crash hook and drains pending event callbacks. Only the first call has an
// effect.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		if l.cfg.MemoryDumpOnExit {
			l.dumpMemory()
		}
		l.crash.Stop()
		l.events.shutdown()
	})
	return nil
}
