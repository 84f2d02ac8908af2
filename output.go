package scopelog

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Sink receives one fully formatted line, trailing newline included, and the
// user value given when the logger was built. It reports whether the write
// succeeded.
type Sink func(line string, user any) bool

// StdoutSink writes to standard output.
func StdoutSink(line string, _ any) bool {
	_, err := io.WriteString(os.Stdout, line)
	return err == nil
}

// WriterSink returns a Sink writing to w.
func WriterSink(w io.Writer) Sink {
	return func(line string, _ any) bool {
		_, err := io.WriteString(w, line)
		return err == nil
	}
}

// Output serialises lines to a sink. Log lines, allocation dumps and timer
// reports all go through the same Output, so lines from different goroutines
// and subsystems interleave only at line boundaries.
type Output struct {
	mu       sync.Mutex
	sink     Sink
	user     any
	failures atomic.Uint64
}

// NewOutput returns an Output. A nil sink means StdoutSink.
func NewOutput(sink Sink, user any) *Output {
	if sink == nil {
		sink = StdoutSink
	}
	return &Output{sink: sink, user: user}
}

// WriteLine hands one line to the sink under the output lock. A sink that
// panics counts as a failed write.
func (o *Output) WriteLine(line string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	ok := o.call(line)
	if !ok {
		o.failures.Add(1)
	}
	return ok
}

func (o *Output) call(line string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return o.sink(line, o.user)
}

// Failures returns how many writes the sink rejected or panicked on.
func (o *Output) Failures() uint64 {
	return o.failures.Load()
}
