// Package scopelog is a leveled logger that also traces call scopes, tracks
// byte-buffer allocations and times code regions, per goroutine.
//
// # Configuration
//
// A Logger's configuration is fixed when it is built:
//
//	l := scopelog.New(
//	    scopelog.WithLevel(scopelog.LevelDebug),
//	    scopelog.WithDecorations(scopelog.ShowLevel|scopelog.ShowTime|scopelog.ShowPath),
//	)
//	defer l.Close()
//
// or loaded from YAML with LoadConfig. The package-level functions use
// Default, which reads the file named by SCOPELOG_CONFIG when set.
//
// # Emission
//
// Every line is prefixed by the selected decorations, each followed by " | ":
//
//	INFO      | 12ms | tid 7 | main.go:40 → worker.go:18 | started
//
// Lines are written whole under one lock shared with allocation dumps and
// timer reports, so output from different goroutines never interleaves
// within a line.
//
// # Scopes
//
//	func handle() {
//	    defer l.Enter()()
//	    l.Info("inside")   // path: caller.go:10 → handle.go:22
//	}
//
// The breadcrumb belongs to the calling goroutine and is dropped when its
// outermost scope is left. Timer state is kept until Release: goroutines
// started with Logger.Go release it on return, others must call Release.
//
// # Allocation tracking
//
// Malloc, Calloc, Realloc and Strdup return buffers the logger tracks until
// Free. MemoryDump lists every live buffer with its age, goroutine, size and
// the breadcrumb active when it was allocated. Freeing nil or a buffer that
// is not tracked is reported and terminates the process.
//
// # Timing
//
// TimerStart and TimerStop bracket a region; regions nest. TimerPrint reports
// per start site and, indented below it, per full call path.
//
// # slog and errors
//
// Slog returns a *slog.Logger writing through the emitter. Errors from
// gitlab.com/tozd/go/errors are rendered with their details, cause and a
// colored stack trace:
//
//	err := errors.WithDetails(errors.New("connect failed"), "host", "db")
//	l.Slog().Error("startup", "error", err)
package scopelog
