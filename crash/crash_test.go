package crash_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/dianlight/scopelog/crash"
	"github.com/stretchr/testify/suite"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type CrashSuite struct {
	suite.Suite
	errOut *syncBuffer
	mu     sync.Mutex
	exits  []int
	calls  []string
	hook   *crash.Hook
}

func TestCrashSuite(t *testing.T) {
	suite.Run(t, new(CrashSuite))
}

func (s *CrashSuite) SetupTest() {
	s.errOut = &syncBuffer{}
	s.exits = nil
	s.calls = nil
	s.hook = crash.New(
		crash.WithErrorWriter(s.errOut),
		crash.WithExit(func(code int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.exits = append(s.exits, code)
		}),
	)
	s.hook.Register(crash.DumperFunc(func() { s.record("memory") }))
	s.hook.Register(crash.DumperFunc(func() { s.record("timers") }))
}

func (s *CrashSuite) TearDownTest() {
	s.hook.Stop()
}

func (s *CrashSuite) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *CrashSuite) snapshot() ([]string, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...), append([]int(nil), s.exits...)
}

func (s *CrashSuite) TestTriggerRunsDumpersThenExits() {
	s.hook.Trigger("boom")
	calls, exits := s.snapshot()
	s.Equal([]string{"memory", "timers"}, calls)
	s.Equal([]int{crash.ExitCode}, exits)
	s.Contains(s.errOut.String(), crash.Notice)
	s.Contains(s.errOut.String(), "reason: boom")
	s.True(s.hook.Fired())

	s.hook.Trigger("again")
	calls, exits = s.snapshot()
	s.Len(calls, 2)
	s.Len(exits, 1)
}

func (s *CrashSuite) TestRecoverCatchesPanic() {
	s.NotPanics(func() {
		defer s.hook.Recover()
		var m map[string]int
		m["x"] = 1
	})
	calls, exits := s.snapshot()
	s.Equal([]string{"memory", "timers"}, calls)
	s.Equal([]int{crash.ExitCode}, exits)
	s.Contains(s.errOut.String(), "assignment to entry in nil map")
}

func (s *CrashSuite) TestRecoverWithoutPanic() {
	func() {
		defer s.hook.Recover()
	}()
	calls, exits := s.snapshot()
	s.Empty(calls)
	s.Empty(exits)
}

func (s *CrashSuite) TestPanickingDumperDoesNotStopOthers() {
	h := crash.New(crash.WithErrorWriter(s.errOut), crash.WithExit(func(int) {}))
	h.Register(crash.DumperFunc(func() { panic("broken dumper") }))
	h.Register(crash.DumperFunc(func() { s.record("after") }))
	s.NotPanics(func() { h.Trigger("") })
	calls, _ := s.snapshot()
	s.Equal([]string{"after"}, calls)
}
