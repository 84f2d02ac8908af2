// Package callpath tracks nested logical scopes per goroutine and renders them
// as a breadcrumb such as "main.go:12 → worker.go:88".
package callpath

import (
	"strconv"

	"github.com/dianlight/scopelog/internal/gls"
)

// Separator joins frames in a rendered breadcrumb.
const Separator = " → "

const initialCapacity = 256

// Frame identifies the source location a scope was entered from.
type Frame struct {
	File string
	Line int
}

// String renders the frame as "file:line".
func (f Frame) String() string {
	return f.File + ":" + strconv.Itoa(f.Line)
}

// Stack is an ordered sequence of frames together with its rendered form.
//
// The rendered buffer is only ever appended to or truncated; its capacity
// grows geometrically and is never given back. starts[i] is the offset in buf
// where frame i's separator (or text, for the first frame) begins, so Pop can
// cut exactly one logical frame no matter what the file names contain.
//
// A Stack is not safe for concurrent use; Tracer gives each goroutine its own.
type Stack struct {
	frames []Frame
	starts []int
	buf    []byte
}

// NewStack returns an empty stack with a preallocated render buffer.
func NewStack() *Stack {
	return &Stack{buf: make([]byte, 0, initialCapacity)}
}

// Push appends a frame.
func (s *Stack) Push(file string, line int) {
	s.starts = append(s.starts, len(s.buf))
	if len(s.frames) > 0 {
		s.buf = append(s.buf, Separator...)
	}
	s.buf = append(s.buf, file...)
	s.buf = append(s.buf, ':')
	s.buf = strconv.AppendInt(s.buf, int64(line), 10)
	s.frames = append(s.frames, Frame{File: file, Line: line})
}

// Pop removes the most recently pushed frame. It reports false when the stack
// was already empty.
func (s *Stack) Pop() bool {
	n := len(s.frames)
	if n == 0 {
		return false
	}
	s.buf = s.buf[:s.starts[n-1]]
	s.starts = s.starts[:n-1]
	s.frames = s.frames[:n-1]
	return true
}

// String returns the rendered breadcrumb, or "" when the stack is empty.
func (s *Stack) String() string {
	return string(s.buf)
}

// Depth returns the number of frames on the stack.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Frames returns a copy of the frames, outermost first.
func (s *Stack) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Cap returns the capacity of the render buffer.
func (s *Stack) Cap() int {
	return cap(s.buf)
}

// Reset drops every frame but keeps the buffer.
func (s *Stack) Reset() {
	s.frames = s.frames[:0]
	s.starts = s.starts[:0]
	s.buf = s.buf[:0]
}

// Tracer hands every goroutine its own Stack.
type Tracer struct {
	stacks *gls.Store[Stack]
}

// NewTracer returns a Tracer with no live stacks.
func NewTracer() *Tracer {
	return &Tracer{stacks: gls.NewStore(NewStack, (*Stack).Reset)}
}

// Push enters a scope on the calling goroutine.
func (t *Tracer) Push(file string, line int) {
	t.stacks.Get().Push(file, line)
}

// Pop leaves the innermost scope on the calling goroutine. Popping an empty
// stack is a no-op. Leaving the outermost scope releases the goroutine's
// stack, since goroutines have no exit hook to do it later.
func (t *Tracer) Pop() {
	s, ok := t.stacks.Lookup()
	if !ok {
		return
	}
	s.Pop()
	if s.Depth() == 0 {
		t.stacks.Release()
	}
}

// Current returns the calling goroutine's breadcrumb.
func (t *Tracer) Current() string {
	if s, ok := t.stacks.Lookup(); ok {
		return s.String()
	}
	return ""
}

// Depth returns the calling goroutine's scope depth.
func (t *Tracer) Depth() int {
	if s, ok := t.stacks.Lookup(); ok {
		return s.Depth()
	}
	return 0
}

// Frames returns the calling goroutine's frames, outermost first.
func (t *Tracer) Frames() []Frame {
	if s, ok := t.stacks.Lookup(); ok {
		return s.Frames()
	}
	return nil
}

// Release discards the calling goroutine's stack.
func (t *Tracer) Release() {
	t.stacks.Release()
}

// Live reports how many goroutines currently hold a stack.
func (t *Tracer) Live() int {
	return t.stacks.Len()
}

// Join renders a breadcrumb followed by a site, omitting the breadcrumb when
// it is empty.
func Join(breadcrumb, site string) string {
	if breadcrumb == "" {
		return site
	}
	return breadcrumb + Separator + site
}
