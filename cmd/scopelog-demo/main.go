// Command scopelog-demo exercises every scopelog feature from several
// goroutines.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dianlight/scopelog"
	"gitlab.com/tozd/go/errors"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	workers := flag.Int("workers", 3, "number of worker goroutines")
	leak := flag.Bool("leak", true, "leave one buffer unfreed to show the memory dump")
	flag.Parse()

	cfg := scopelog.DefaultConfig()
	cfg.MinLevel = scopelog.LevelTrace
	cfg.Decorations = scopelog.ShowAll
	cfg.MemoryDumpOnExit = true
	cfg.CrashHook = true
	cfg.Color = true
	cfg.HideSensitiveData = true
	if *configPath != "" {
		loaded, err := scopelog.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scopelog-demo: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	l := scopelog.New(scopelog.WithConfig(cfg))
	defer l.Close()
	defer l.Recover()

	fmt.Println("=== scopelog demonstration ===")

	fmt.Println()
	fmt.Println("1. All levels:")
	l.Trace("trace message")
	l.Debug("debug message")
	l.Info("info message")
	l.Notice("notice message")
	l.Warning("warning message")
	l.Error("error message")
	l.Critical("critical message")
	l.Alert("alert message")
	l.Emergency("emergency message")

	fmt.Println()
	fmt.Println("2. Scopes:")
	l.Scope(func() {
		l.Info("inside a scope")
		nested(l)
	})

	fmt.Println()
	fmt.Println("3. Callbacks:")
	id := l.RegisterCallback(scopelog.LevelError, func(event scopelog.LogEvent) {
		fmt.Printf("[callback] %s at %s:%d\n", event.Message, event.File, event.Line)
	})
	l.Error("this error is also seen by a callback")
	time.Sleep(10 * time.Millisecond)
	l.UnregisterCallback(scopelog.LevelError, id)

	fmt.Println()
	fmt.Println("4. Sensitive data:")
	l.Info("connecting user=admin password=s3cret token=abc123")

	fmt.Println()
	fmt.Println("5. Workers with allocations and timers:")
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		l.Go(func() {
			defer wg.Done()
			worker(l, i)
		})
	}
	wg.Wait()

	fmt.Println()
	fmt.Println("6. slog bridge and tozd errors:")
	log := l.Slog(scopelog.NewConsoleHandler(os.Stderr, scopelog.LevelInfo, false))
	log.Info("request served", "path", "/api", "took", 1500*time.Microsecond)
	err := errors.WithDetails(errors.New("database connection failed"), "host", "localhost", "port", 5432)
	log.Error("startup failed", "error", errors.Wrap(err, "failed to initialize repository"))
	log.With("component", "demo").WithGroup("req").Warn("slow request", slog.Int("ms", 900))

	fmt.Println()
	fmt.Println("7. Inspect:")
	l.Inspect(scopelog.LevelInfo, "config", cfg)

	fmt.Println()
	fmt.Println("8. Timers on the main goroutine:")
	for i := 0; i < 3; i++ {
		l.TimerStart()
		time.Sleep(time.Duration(i+1) * time.Millisecond)
		l.TimerStop()
	}
	l.TimerPrint()

	if *leak {
		_ = l.Malloc(128)
	}

	fmt.Println()
	fmt.Println("9. Memory dump on close:")
}

func nested(l *scopelog.Logger) {
	defer l.Enter()()
	l.Debug("two scopes deep")
}

func worker(l *scopelog.Logger, n int) {
	defer l.Enter()()

	l.TimerStart()
	buf := l.Malloc(64)
	buf = l.Realloc(buf, 4096)
	name := l.Strdup(fmt.Sprintf("worker-%d", n))
	time.Sleep(time.Duration(n+1) * 5 * time.Millisecond)
	l.Info("%s using %d bytes", name, len(buf))
	l.Free(name)
	l.Free(buf)
	l.TimerStop()

	l.TimerPrint()
}
