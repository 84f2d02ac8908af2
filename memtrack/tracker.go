package memtrack

import (
	"math"
	"unsafe"
)

// Reporter receives usage errors detected by a Tracker, attributed to the
// call site that caused them.
type Reporter func(file string, line int, msg string)

// ExitFailure is the status a Tracker exits with on allocation misuse.
const ExitFailure = 1

const (
	msgFreeNil       = "you tried to free a nil buffer"
	msgFreeUntracked = "you tried to free a buffer that was not allocated"
)

// Tracker wraps byte-buffer allocation with registry bookkeeping.
//
// Freeing nil or a buffer the registry does not know about (a double free or
// a buffer that never came from the Tracker) is reported and then terminates
// the process through the exit function: both are memory-safety bugs in the
// caller.
type Tracker struct {
	reg    *Registry
	report Reporter
	exit   func(int)
}

// NewTracker returns a Tracker recording into reg.
func NewTracker(reg *Registry, report Reporter, exit func(int)) *Tracker {
	return &Tracker{reg: reg, report: report, exit: exit}
}

// Registry returns the registry the tracker records into.
func (t *Tracker) Registry() *Registry {
	return t.reg
}

// Malloc allocates size bytes. A non-positive size is treated as a failed
// allocation: nil is returned and nothing is recorded.
func (t *Tracker) Malloc(size int, file string, line int) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	addr, ref := addressOf(buf)
	t.reg.Add(addr, ref, size, file, line)
	return buf
}

// Calloc allocates n elements of size bytes each, zeroed.
func (t *Tracker) Calloc(n, size int, file string, line int) []byte {
	if n <= 0 || size <= 0 || n > math.MaxInt/size {
		return nil
	}
	return t.Malloc(n*size, file, line)
}

// Realloc resizes buf to size bytes. The buffer is resized in place when its
// capacity allows, otherwise it moves and the registry entry follows it.
// Realloc(buf, 0) frees buf and returns nil; Realloc(nil, n) is Malloc(n).
func (t *Tracker) Realloc(buf []byte, size int, file string, line int) []byte {
	if size <= 0 {
		t.Free(buf, file, line)
		return nil
	}
	if buf == nil {
		return t.Malloc(size, file, line)
	}
	oldAddr, _ := addressOf(buf)
	var out []byte
	if cap(buf) >= size {
		out = buf[:size]
	} else {
		out = make([]byte, size)
		copy(out, buf)
	}
	newAddr, ref := addressOf(out)
	t.reg.Update(oldAddr, newAddr, ref, size)
	return out
}

// Strdup copies s into a tracked buffer. The recorded size includes room for
// a terminator, so an empty string still yields a distinct allocation.
func (t *Tracker) Strdup(s string, file string, line int) []byte {
	buf := make([]byte, len(s), len(s)+1)
	copy(buf, s)
	addr, ref := addressOf(buf)
	t.reg.Add(addr, ref, len(s)+1, file, line)
	return buf
}

// Free releases buf. It reports whether the buffer was tracked; on misuse the
// exit function is called first, so false is only observed when that function
// returns.
func (t *Tracker) Free(buf []byte, file string, line int) bool {
	if buf == nil {
		t.fail(file, line, msgFreeNil)
		return false
	}
	addr, _ := addressOf(buf)
	if addr == 0 || !t.reg.Remove(addr) {
		t.fail(file, line, msgFreeUntracked)
		return false
	}
	return true
}

func (t *Tracker) fail(file string, line int, msg string) {
	if t.report != nil {
		t.report(file, line, msg)
	}
	if t.exit != nil {
		t.exit(ExitFailure)
	}
}

// AddressOf returns the address the registry uses as key for buf, or 0 when
// buf has no backing array.
func AddressOf(buf []byte) uintptr {
	addr, _ := addressOf(buf)
	return addr
}

func addressOf(buf []byte) (uintptr, unsafe.Pointer) {
	if cap(buf) == 0 {
		return 0, nil
	}
	p := unsafe.Pointer(unsafe.SliceData(buf))
	return uintptr(p), p
}
