package scopelog

import (
	"fmt"
	"log"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// LogEvent describes one emitted line and is passed to callbacks.
type LogEvent struct {
	Level     slog.Level
	Time      time.Time
	Millis    uint64 // elapsed since logger start
	Goroutine uint64
	File      string
	Line      int
	Path      string // breadcrumb at emission, without the emitting site
	Message   string // formatted message, after redaction
	Output    string // the full line as written to the sink
}

// LogCallback is the function signature for log event callbacks
type LogCallback func(event LogEvent)

// callbackEntry holds a callback with its metadata
type callbackEntry struct {
	callback LogCallback
	id       string
}

const eventQueueSize = 1000

// eventProcessor handles asynchronous callback execution
type eventProcessor struct {
	eventChan   chan LogEvent
	callbacks   map[slog.Level][]callbackEntry
	callbacksMu sync.RWMutex
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
	shutdownCh  chan struct{}
	stopped     atomic.Bool
	nextID      atomic.Uint64
}

func newEventProcessor() *eventProcessor {
	return &eventProcessor{
		eventChan:  make(chan LogEvent, eventQueueSize),
		callbacks:  make(map[slog.Level][]callbackEntry),
		shutdownCh: make(chan struct{}),
	}
}

// start launches the dispatch goroutine on first registration, so loggers
// without callbacks never own a goroutine.
func (ep *eventProcessor) start() {
	ep.startOnce.Do(func() {
		ep.wg.Add(1)
		go ep.processEvents()
	})
}

// processEvents handles incoming log events and executes callbacks
func (ep *eventProcessor) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.eventChan:
			ep.executeCallbacks(event)
		case <-ep.shutdownCh:
			// Process remaining events before shutdown
			for {
				select {
				case event := <-ep.eventChan:
					ep.executeCallbacks(event)
				default:
					return
				}
			}
		}
	}
}

// publish queues the event built by build when level has callbacks. build
// runs on the emitting goroutine.
func (ep *eventProcessor) publish(level slog.Level, build func() LogEvent) {
	if ep.stopped.Load() {
		return
	}
	ep.callbacksMu.RLock()
	hasCallbacks := len(ep.callbacks[level]) > 0
	ep.callbacksMu.RUnlock()
	if !hasCallbacks {
		return
	}

	event := build()
	event.Time = time.Now()

	// Non-blocking send to avoid affecting logging performance
	select {
	case ep.eventChan <- event:
	default:
		log.Println("scopelog: callback event queue full, dropping event")
	}
}

// executeCallbacks runs the callbacks registered for the event's level, in
// registration order.
func (ep *eventProcessor) executeCallbacks(event LogEvent) {
	ep.callbacksMu.RLock()
	callbacks := append([]callbackEntry(nil), ep.callbacks[event.Level]...)
	ep.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		ep.safeExecuteCallback(entry.callback, event)
	}
}

// safeExecuteCallback executes a callback with panic recovery
func (ep *eventProcessor) safeExecuteCallback(callback LogCallback, event LogEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scopelog callback panic recovered: %v\n%s", r, debug.Stack())
		}
	}()
	callback(event)
}

func (ep *eventProcessor) shutdown() {
	ep.stopOnce.Do(func() {
		ep.stopped.Store(true)
		close(ep.shutdownCh)
		ep.wg.Wait()
	})
}

// RegisterCallback registers a callback for a specific log level.
// Callbacks run on a dispatch goroutine, never on the logging goroutine.
// Returns a callback ID that can be used to unregister the callback.
func (l *Logger) RegisterCallback(level slog.Level, callback LogCallback) string {
	ep := l.events
	ep.start()

	id := fmt.Sprintf("callback_%d_%d", level, ep.nextID.Add(1))

	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()
	ep.callbacks[level] = append(ep.callbacks[level], callbackEntry{callback: callback, id: id})
	return id
}

// UnregisterCallback removes a callback by its ID
func (l *Logger) UnregisterCallback(level slog.Level, callbackID string) bool {
	ep := l.events
	ep.callbacksMu.Lock()
	defer ep.callbacksMu.Unlock()

	callbacks := ep.callbacks[level]
	for i, entry := range callbacks {
		if entry.id == callbackID {
			ep.callbacks[level] = append(callbacks[:i:i], callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCallbacks removes all callbacks for a specific level
func (l *Logger) ClearCallbacks(level slog.Level) {
	l.events.callbacksMu.Lock()
	defer l.events.callbacksMu.Unlock()
	delete(l.events.callbacks, level)
}

// ClearAllCallbacks removes all registered callbacks
func (l *Logger) ClearAllCallbacks() {
	l.events.callbacksMu.Lock()
	defer l.events.callbacksMu.Unlock()
	l.events.callbacks = make(map[slog.Level][]callbackEntry)
}

// GetCallbackCount returns the number of callbacks registered for a level
func (l *Logger) GetCallbackCount(level slog.Level) int {
	l.events.callbacksMu.RLock()
	defer l.events.callbacksMu.RUnlock()
	return len(l.events.callbacks[level])
}
