// Package gls implements goroutine-local storage.
//
// Go deliberately has no thread-local storage, so per-goroutine state is kept
// in a map keyed by goroutine id. A slot is created lazily on first use by the
// owning goroutine and destroyed by Release, which runs the store's destructor.
// Goroutine ids are never reused by the runtime, so a slot can only ever be
// reached by the goroutine that created it (and by Range, see below).
package gls

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

var goroutinePrefix = []byte("goroutine ")

// ID returns the runtime id of the calling goroutine, or 0 if it cannot be
// determined.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	i := bytes.IndexByte(b, ' ')
	if i <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Store holds one *T per goroutine.
type Store[T any] struct {
	slots   sync.Map // uint64 -> *T
	count   atomic.Int64
	newFn   func() *T
	destroy func(*T)
}

// NewStore returns a Store that builds slots with newFn and tears them down
// with destroy. destroy may be nil.
func NewStore[T any](newFn func() *T, destroy func(*T)) *Store[T] {
	return &Store[T]{newFn: newFn, destroy: destroy}
}

// Get returns the calling goroutine's slot, creating it if needed.
func (s *Store[T]) Get() *T {
	id := ID()
	if v, ok := s.slots.Load(id); ok {
		return v.(*T)
	}
	fresh := s.newFn()
	v, loaded := s.slots.LoadOrStore(id, fresh)
	if !loaded {
		s.count.Add(1)
	}
	return v.(*T)
}

// Lookup returns the calling goroutine's slot without creating one.
func (s *Store[T]) Lookup() (*T, bool) {
	v, ok := s.slots.Load(ID())
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

// Release destroys the calling goroutine's slot. It is a no-op when the
// goroutine never used the store.
func (s *Store[T]) Release() {
	v, ok := s.slots.LoadAndDelete(ID())
	if !ok {
		return
	}
	s.count.Add(-1)
	if s.destroy != nil {
		s.destroy(v.(*T))
	}
}

// Len reports how many goroutines currently hold a slot.
func (s *Store[T]) Len() int {
	return int(s.count.Load())
}

// Range calls fn for every live slot until fn returns false. The slots belong
// to other goroutines and are read without synchronisation, so Range is only
// suitable for best-effort diagnostics such as crash reports.
func (s *Store[T]) Range(fn func(id uint64, v *T) bool) {
	s.slots.Range(func(k, v any) bool {
		return fn(k.(uint64), v.(*T))
	})
}
