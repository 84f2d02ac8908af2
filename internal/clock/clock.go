// Package clock provides the monotonic millisecond/microsecond source used for
// elapsed-time decorations, allocation timestamps and timer measurements.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns monotonic time since an arbitrary epoch.
type Clock interface {
	Millis() uint64
	Micros() uint64
}

// System is a Clock backed by the runtime monotonic clock. The epoch is the
// moment NewSystem was called.
type System struct {
	epoch time.Time
}

// NewSystem returns a System clock whose epoch is now.
func NewSystem() *System {
	return &System{epoch: time.Now()}
}

func (s *System) Millis() uint64 {
	return uint64(time.Since(s.epoch) / time.Millisecond)
}

func (s *System) Micros() uint64 {
	return uint64(time.Since(s.epoch) / time.Microsecond)
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	us atomic.Uint64
}

// NewManual returns a Manual clock positioned at the given microsecond value.
func NewManual(startMicros uint64) *Manual {
	m := &Manual{}
	m.us.Store(startMicros)
	return m
}

func (m *Manual) Millis() uint64 { return m.us.Load() / 1000 }
func (m *Manual) Micros() uint64 { return m.us.Load() }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.us.Add(uint64(d / time.Microsecond))
}
