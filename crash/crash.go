// Package crash runs last-chance diagnostics when the process is interrupted
// or a goroutine panics.
//
// This path is best effort. The dumpers it calls take ordinary locks and may
// observe half-updated state, so the output is a diagnostic aid and nothing
// more. Environments that need something stricter can register their own
// minimal Dumper instead of the default ones.
package crash

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// ExitCode is the status the process exits with after a crash report.
const ExitCode = 2

// Notice is written to the error stream, unformatted, when the hook fires.
const Notice = "\nCaught signal or panic, dumping diagnostics before exit:\n"

// Dumper writes diagnostic output.
type Dumper interface {
	Dump()
}

// DumperFunc adapts a function to Dumper.
type DumperFunc func()

func (f DumperFunc) Dump() { f() }

// DefaultSignals are the signals Install listens for.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGABRT}

// Hook collects dumpers and fires them once.
type Hook struct {
	mu      sync.Mutex
	dumpers []Dumper

	errOut  io.Writer
	exit    func(int)
	signals []os.Signal

	installOnce sync.Once
	stopOnce    sync.Once
	sigCh       chan os.Signal
	done        chan struct{}
	fired       atomic.Bool
}

// Option configures a Hook.
type Option func(*Hook)

// WithErrorWriter replaces os.Stderr as the destination of Notice.
func WithErrorWriter(w io.Writer) Option {
	return func(h *Hook) { h.errOut = w }
}

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(h *Hook) { h.exit = exit }
}

// WithSignals replaces DefaultSignals.
func WithSignals(sigs ...os.Signal) Option {
	return func(h *Hook) { h.signals = sigs }
}

// New returns a Hook that is not yet listening for signals.
func New(opts ...Option) *Hook {
	h := &Hook{
		errOut:  os.Stderr,
		exit:    os.Exit,
		signals: DefaultSignals,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a dumper. Dumpers run in registration order.
func (h *Hook) Register(d Dumper) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dumpers = append(h.dumpers, d)
}

// Install starts listening for the configured signals. Only the first call
// has an effect.
func (h *Hook) Install() {
	h.installOnce.Do(func() {
		h.sigCh = make(chan os.Signal, 1)
		signal.Notify(h.sigCh, h.signals...)
		go h.wait()
	})
}

func (h *Hook) wait() {
	select {
	case sig := <-h.sigCh:
		h.Trigger(sig.String())
	case <-h.done:
	}
}

// Stop stops listening for signals. Dumpers stay registered so Recover and
// Trigger keep working.
func (h *Hook) Stop() {
	h.stopOnce.Do(func() {
		if h.sigCh != nil {
			signal.Stop(h.sigCh)
		}
		close(h.done)
	})
}

// Recover must be deferred directly. It turns a panic in the deferring
// goroutine into a crash report followed by exit.
func (h *Hook) Recover() {
	if r := recover(); r != nil {
		h.Trigger(fmt.Sprint(r))
	}
}

// Trigger writes Notice, runs every dumper and exits with ExitCode. Only the
// first call does anything; later calls return immediately.
func (h *Hook) Trigger(reason string) {
	if !h.fired.CompareAndSwap(false, true) {
		return
	}
	_, _ = io.WriteString(h.errOut, Notice)
	if reason != "" {
		_, _ = io.WriteString(h.errOut, "reason: "+reason+"\n")
	}

	h.mu.Lock()
	dumpers := append([]Dumper(nil), h.dumpers...)
	h.mu.Unlock()
	for _, d := range dumpers {
		runDumper(d)
	}
	h.exit(ExitCode)
}

// Fired reports whether the hook has been triggered.
func (h *Hook) Fired() bool {
	return h.fired.Load()
}

func runDumper(d Dumper) {
	defer func() {
		_ = recover()
	}()
	d.Dump()
}
