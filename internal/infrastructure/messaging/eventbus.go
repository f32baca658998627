// Package messaging implements the in-process event bus that fans domain
// events out to the engine's event handlers: notification dispatch, streak
// leaderboard updates and anything else subscribed at wiring time.
package messaging

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// Publishing never blocks the activity request path: handlers run on a
// bounded worker pool and their failures end up in the logs and the dead
// letter buffer, not in the publisher's error return.
// ══════════════════════════════════════════════════════════════════════════════

// EventBus is an in-memory implementation of shared.EventPublisher with
// typed subscriptions.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	workerPool  chan struct{}
	timeout     time.Duration
	log         *logger.Logger
	metrics     *BusMetrics
	deadLetters *DeadLetterBuffer
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// Config contains configuration for the EventBus.
type Config struct {
	// WorkerPoolSize bounds concurrent handler executions.
	WorkerPoolSize int

	// HandlerTimeout aborts a single handler execution.
	HandlerTimeout time.Duration

	// DeadLetterSize is the capacity of the failed-event buffer.
	DeadLetterSize int

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize: 10,
		HandlerTimeout: 30 * time.Second,
		DeadLetterSize: 1000,
	}
}

// NewEventBus creates a new in-memory event bus.
func NewEventBus(cfg Config) *EventBus {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	return &EventBus{
		handlers:    make(map[shared.EventType][]shared.EventHandler),
		allHandlers: make([]shared.EventHandler, 0),
		workerPool:  make(chan struct{}, cfg.WorkerPoolSize),
		log:         cfg.Logger.With(logger.Component("eventbus")),
		metrics:     NewBusMetrics(),
		deadLetters: NewDeadLetterBuffer(cfg.DeadLetterSize),
		closeCh:     make(chan struct{}),
		timeout:     cfg.HandlerTimeout,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *EventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.log.Debug("subscribed handler",
		logger.String("event_type", string(eventType)),
		logger.String("handler", handler.Name()),
	)
	return nil
}

// SubscribeAll registers a handler that receives every event.
func (b *EventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish fans the event out to all subscribed handlers asynchronously.
func (b *EventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	if len(handlers) == 0 {
		b.log.Debug("no handlers for event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	for _, handler := range handlers {
		b.executeAsync(event, handler)
	}
	return nil
}

func (b *EventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		start := time.Now()
		err := b.executeWithRecovery(event, handler)
		duration := time.Since(start)

		b.metrics.RecordExecution(event.EventType(), duration, err == nil)

		if err != nil {
			b.log.Error("handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.String("handler", handler.Name()),
				logger.Duration("duration", duration),
				logger.Err(err),
			)
			b.deadLetters.Add(DeadLetter{
				Event:       event,
				HandlerName: handler.Name(),
				Err:         err,
				FailedAt:    time.Now(),
			})
		}
	}()
}

func (b *EventBus) executeWithRecovery(event shared.Event, handler shared.EventHandler) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("handler panic recovered",
					logger.String("event_type", string(event.EventType())),
					logger.String("handler", handler.Name()),
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
				)
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- handler.Handle(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(b.timeout):
		return fmt.Errorf("handler %s timeout after %v", handler.Name(), b.timeout)
	case <-b.closeCh:
		return ErrEventBusClosed
	}
}

// Wait blocks until all in-flight handlers have completed. Test helper.
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// Close gracefully shuts down the event bus.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Metrics returns the bus metrics.
func (b *EventBus) Metrics() *BusMetrics {
	return b.metrics
}

// DeadLetters returns the failed-event buffer.
func (b *EventBus) DeadLetters() *DeadLetterBuffer {
	return b.deadLetters
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER BUFFER
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetter records one handler failure for later inspection or replay.
type DeadLetter struct {
	Event       shared.Event
	HandlerName string
	Err         error
	FailedAt    time.Time
}

// DeadLetterBuffer is a bounded in-memory buffer of failed events.
// Oldest entries are dropped at capacity.
type DeadLetterBuffer struct {
	mu      sync.RWMutex
	entries []DeadLetter
	maxSize int
}

// NewDeadLetterBuffer creates a buffer with the given capacity.
func NewDeadLetterBuffer(maxSize int) *DeadLetterBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterBuffer{
		entries: make([]DeadLetter, 0),
		maxSize: maxSize,
	}
}

// Add appends an entry, evicting the oldest at capacity.
func (q *DeadLetterBuffer) Add(entry DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterBuffer) Entries() []DeadLetter {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]DeadLetter, len(q.entries))
	copy(result, q.entries)
	return result
}

// Size returns the current buffer size.
func (q *DeadLetterBuffer) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterBuffer) Pop() (DeadLetter, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetter{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// BusMetrics tracks event bus performance.
type BusMetrics struct {
	mu sync.RWMutex

	PublishedTotal map[shared.EventType]int64

	HandlerExecutions    int64
	HandlerSuccesses     int64
	HandlerFailures      int64
	HandlerTotalDuration time.Duration

	StartedAt time.Time
}

// NewBusMetrics creates a new metrics tracker.
func NewBusMetrics() *BusMetrics {
	return &BusMetrics{
		PublishedTotal: make(map[shared.EventType]int64),
		StartedAt:      time.Now(),
	}
}

// RecordPublish records a published event.
func (m *BusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishedTotal[eventType]++
}

// RecordExecution records a handler execution.
func (m *BusMetrics) RecordExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
	}
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *BusMetrics) Snapshot() BusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, v := range m.PublishedTotal {
		published += v
	}

	avgDuration := time.Duration(0)
	if m.HandlerExecutions > 0 {
		avgDuration = m.HandlerTotalDuration / time.Duration(m.HandlerExecutions)
	}

	successRate := 1.0
	if m.HandlerExecutions > 0 {
		successRate = float64(m.HandlerSuccesses) / float64(m.HandlerExecutions)
	}

	return BusMetricsSnapshot{
		TotalPublished:         published,
		TotalHandlerExecs:      m.HandlerExecutions,
		TotalFailures:          m.HandlerFailures,
		HandlerSuccessRate:     successRate,
		AverageHandlerDuration: avgDuration,
		StartedAt:              m.StartedAt,
	}
}

// BusMetricsSnapshot is a point-in-time snapshot of bus metrics.
type BusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	TotalFailures          int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	StartedAt              time.Time
}
