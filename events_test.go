package scopelog_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dianlight/scopelog"
	"github.com/stretchr/testify/suite"
)

type EventsSuite struct {
	suite.Suite
	sink   *lineSink
	logger *scopelog.Logger
}

func TestEventsSuite(t *testing.T) {
	suite.Run(t, new(EventsSuite))
}

func (suite *EventsSuite) SetupTest() {
	suite.sink = &lineSink{}
	suite.logger = scopelog.New(
		scopelog.WithSink(suite.sink.Write, nil),
		scopelog.WithLevel(scopelog.LevelTrace),
		scopelog.WithExitFunc(func(int) {}),
	)
}

func (suite *EventsSuite) TearDownTest() {
	suite.logger.ClearAllCallbacks()
	_ = suite.logger.Close()
}

func (suite *EventsSuite) TestRegisterCallback() {
	var (
		mu     sync.Mutex
		events []scopelog.LogEvent
	)
	id := suite.logger.RegisterCallback(scopelog.LevelError, func(event scopelog.LogEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})
	suite.NotEmpty(id)
	suite.Equal(1, suite.logger.GetCallbackCount(scopelog.LevelError))

	suite.logger.Info("not delivered")
	leave := suite.logger.Enter()
	line := here()
	suite.logger.Error("disk %s full", "/var")
	leave()

	suite.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	event := events[0]
	mu.Unlock()
	suite.Equal(scopelog.LevelError, event.Level)
	suite.Equal("disk /var full", event.Message)
	suite.Equal("events_test.go", event.File)
	suite.Equal(line, event.Line)
	suite.Regexp(`^events_test\.go:\d+$`, event.Path)
	suite.NotZero(event.Goroutine)
	suite.False(event.Time.IsZero())
	suite.Equal(suite.sink.Lines()[1], event.Output)
}

func (suite *EventsSuite) TestUnregisterCallback() {
	var calls atomic.Int32
	id := suite.logger.RegisterCallback(scopelog.LevelWarning, func(scopelog.LogEvent) { calls.Add(1) })

	suite.True(suite.logger.UnregisterCallback(scopelog.LevelWarning, id))
	suite.False(suite.logger.UnregisterCallback(scopelog.LevelWarning, id))
	suite.False(suite.logger.UnregisterCallback(scopelog.LevelError, "callback_unknown"))
	suite.Equal(0, suite.logger.GetCallbackCount(scopelog.LevelWarning))

	suite.logger.Warning("nobody listens")
	time.Sleep(50 * time.Millisecond)
	suite.Equal(int32(0), calls.Load())
}

func (suite *EventsSuite) TestMultipleCallbacksRunInOrder() {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) scopelog.LogCallback {
		return func(scopelog.LogEvent) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	id1 := suite.logger.RegisterCallback(scopelog.LevelNotice, record("first"))
	id2 := suite.logger.RegisterCallback(scopelog.LevelNotice, record("second"))
	suite.NotEqual(id1, id2)

	suite.logger.Notice("hello")
	suite.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	suite.Equal([]string{"first", "second"}, order)
}

func (suite *EventsSuite) TestClearCallbacks() {
	noop := func(scopelog.LogEvent) {}
	suite.logger.RegisterCallback(scopelog.LevelInfo, noop)
	suite.logger.RegisterCallback(scopelog.LevelInfo, noop)
	suite.logger.RegisterCallback(scopelog.LevelDebug, noop)

	suite.logger.ClearCallbacks(scopelog.LevelInfo)
	suite.Equal(0, suite.logger.GetCallbackCount(scopelog.LevelInfo))
	suite.Equal(1, suite.logger.GetCallbackCount(scopelog.LevelDebug))

	suite.logger.ClearAllCallbacks()
	suite.Equal(0, suite.logger.GetCallbackCount(scopelog.LevelDebug))
}

func (suite *EventsSuite) TestCallbackPanicRecovery() {
	var delivered atomic.Bool
	suite.logger.RegisterCallback(scopelog.LevelError, func(scopelog.LogEvent) {
		panic("callback failure")
	})
	suite.logger.RegisterCallback(scopelog.LevelError, func(scopelog.LogEvent) {
		delivered.Store(true)
	})

	suite.NotPanics(func() {
		suite.logger.Error("trigger")
	})
	suite.Eventually(delivered.Load, time.Second, 10*time.Millisecond)
}

func (suite *EventsSuite) TestCloseDrainsQueue() {
	var calls atomic.Int32
	suite.logger.RegisterCallback(scopelog.LevelInfo, func(scopelog.LogEvent) { calls.Add(1) })
	for i := 0; i < 20; i++ {
		suite.logger.Info("event %d", i)
	}
	suite.NoError(suite.logger.Close())
	suite.Equal(int32(20), calls.Load())

	suite.logger.Info("after close")
	suite.Equal(int32(20), calls.Load())
}

func (suite *EventsSuite) TestCallbackConcurrency() {
	var calls atomic.Int32
	suite.logger.RegisterCallback(scopelog.LevelDebug, func(scopelog.LogEvent) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		suite.logger.Go(func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				suite.logger.Debug("goroutine %d message %d", i, j)
			}
		})
	}
	wg.Wait()

	suite.Eventually(func() bool { return calls.Load() == 100 }, 2*time.Second, 10*time.Millisecond)
}
