package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = logger.New(logger.Options{Level: logger.LevelError, Output: nullWriter{}})
	bus := NewEventBus(cfg)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

type countingHandler struct {
	name  string
	calls atomic.Int64
	err   error

	mu   sync.Mutex
	seen []shared.EventType
}

func (h *countingHandler) Handle(event shared.Event) error {
	h.calls.Add(1)
	h.mu.Lock()
	h.seen = append(h.seen, event.EventType())
	h.mu.Unlock()
	return h.err
}

func (h *countingHandler) Name() string { return h.name }

func TestPublishReachesTypedSubscriber(t *testing.T) {
	bus := newTestBus(t)

	h := &countingHandler{name: "streak-counter"}
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, h))

	event := shared.NewBaseEvent(shared.EventStreakUpdated, "user-1")
	require.NoError(t, bus.Publish(event))
	bus.Wait()

	assert.Equal(t, int64(1), h.calls.Load())
}

func TestPublishSkipsOtherEventTypes(t *testing.T) {
	bus := newTestBus(t)

	h := &countingHandler{name: "quota-only"}
	require.NoError(t, bus.Subscribe(shared.EventQuotaConsumed, h))

	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventStreakUpdated, "user-1")))
	bus.Wait()

	assert.Zero(t, h.calls.Load())
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := newTestBus(t)

	h := &countingHandler{name: "audit-tap"}
	require.NoError(t, bus.SubscribeAll(h))

	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventStreakUpdated, "u1")))
	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventQuotaDenied, "u2")))
	bus.Wait()

	assert.Equal(t, int64(2), h.calls.Load())
}

func TestHandlerErrorGoesToDeadLetters(t *testing.T) {
	bus := newTestBus(t)

	h := &countingHandler{name: "flaky", err: errors.New("send failed")}
	require.NoError(t, bus.Subscribe(shared.EventStreakMilestone, h))

	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventStreakMilestone, "u1")))
	bus.Wait()

	require.Equal(t, 1, bus.DeadLetters().Size())
	entry, ok := bus.DeadLetters().Pop()
	require.True(t, ok)
	assert.Equal(t, "flaky", entry.HandlerName)
	assert.ErrorContains(t, entry.Err, "send failed")
}

type panickyHandler struct{}

func (panickyHandler) Handle(shared.Event) error { panic("boom") }
func (panickyHandler) Name() string              { return "panicky" }

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := newTestBus(t)

	require.NoError(t, bus.Subscribe(shared.EventQuotaDenied, panickyHandler{}))
	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventQuotaDenied, "u1")))
	bus.Wait()

	require.Equal(t, 1, bus.DeadLetters().Size())
	entry, _ := bus.DeadLetters().Pop()
	assert.ErrorContains(t, entry.Err, "panic")
}

func TestPublishAfterCloseFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = logger.New(logger.Options{Level: logger.LevelError, Output: nullWriter{}})
	bus := NewEventBus(cfg)

	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewBaseEvent(shared.EventStreakUpdated, "u1"))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventStreakUpdated, &countingHandler{name: "late"})
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestNilGuards(t *testing.T) {
	bus := newTestBus(t)

	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakUpdated, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestMetricsCountExecutions(t *testing.T) {
	bus := newTestBus(t)

	ok := &countingHandler{name: "ok"}
	bad := &countingHandler{name: "bad", err: errors.New("nope")}
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, ok))
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, bad))

	require.NoError(t, bus.Publish(shared.NewBaseEvent(shared.EventStreakUpdated, "u1")))
	bus.Wait()

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, int64(1), snap.TotalFailures)
}

func TestDeadLetterBufferEvictsOldest(t *testing.T) {
	buf := NewDeadLetterBuffer(2)

	for i := 0; i < 3; i++ {
		buf.Add(DeadLetter{HandlerName: string(rune('a' + i)), FailedAt: time.Now()})
	}

	require.Equal(t, 2, buf.Size())
	entry, ok := buf.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", entry.HandlerName)
}
