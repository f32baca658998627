package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

const handlerUserID = "8f14e45f-ceea-4670-b1a8-d0f8f1e6a020"

type fakeSender struct {
	sent []*notification.Notification
}

func (f *fakeSender) Send(_ context.Context, n *notification.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeLeaderboard struct {
	streaks map[string]int
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{streaks: make(map[string]int)}
}

func (f *fakeLeaderboard) SetStreak(_ context.Context, userID shared.UserID, streakDay int) error {
	f.streaks[userID.String()] = streakDay
	return nil
}

func (f *fakeLeaderboard) Remove(_ context.Context, userID shared.UserID) error {
	delete(f.streaks, userID.String())
	return nil
}

func (f *fakeLeaderboard) Top(context.Context, int) ([]stats.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeLeaderboard) Rank(context.Context, shared.UserID) (*stats.LeaderboardEntry, error) {
	return nil, shared.ErrNotFound
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Level: logger.LevelFatal, Output: discard{}})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestOnRoadmapCompleted(t *testing.T) {
	sender := &fakeSender{}
	h := NewOnRoadmapCompleted(sender, quietLogger())

	event := shared.NewRoadmapCompletedEvent(handlerUserID, "backend-2026", 12, time.Now())
	require.NoError(t, h.Handle(event))

	require.Len(t, sender.sent, 1)
	n := sender.sent[0]
	assert.Equal(t, notification.TypeRoadmapCompleted, n.Type)
	assert.Equal(t, shared.UserID(handlerUserID), n.UserID)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "backend-2026", n.Data["roadmap_id"])
}

func TestOnRoadmapCompleted_IgnoresOtherEvents(t *testing.T) {
	sender := &fakeSender{}
	h := NewOnRoadmapCompleted(sender, quietLogger())

	require.NoError(t, h.Handle(shared.NewStreakMilestoneEvent(handlerUserID, 7)))
	assert.Empty(t, sender.sent)
}

func TestOnStreakUpdated(t *testing.T) {
	lb := newFakeLeaderboard()
	h := NewOnStreakUpdated(lb, quietLogger())

	event := shared.NewStreakUpdatedEvent(handlerUserID, "2026-08-30", 12, true)
	require.NoError(t, h.Handle(event))
	assert.Equal(t, 12, lb.streaks[handlerUserID])
}

func TestOnStreakMilestone(t *testing.T) {
	sender := &fakeSender{}
	h := NewOnStreakMilestone(sender, quietLogger())

	require.NoError(t, h.Handle(shared.NewStreakMilestoneEvent(handlerUserID, 30)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, notification.TypeStreakMilestone, sender.sent[0].Type)
	assert.Equal(t, 30, sender.sent[0].Data["streak_day"])
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID shared.UserID) {
	f.invalidated = append(f.invalidated, userID.String())
}

func TestOnQuotaConsumed_InvalidatesSnapshot(t *testing.T) {
	cache := &fakeInvalidator{}
	h := NewOnQuotaConsumed(cache, quietLogger())

	event := shared.NewQuotaConsumedEvent(handlerUserID, "2026-08-30", 3, 1200, 57)
	require.NoError(t, h.Handle(event))
	require.Len(t, cache.invalidated, 1)
	assert.Equal(t, handlerUserID, cache.invalidated[0])
}

func TestOnQuotaConsumed_RejectsMalformedUserID(t *testing.T) {
	cache := &fakeInvalidator{}
	h := NewOnQuotaConsumed(cache, quietLogger())

	err := h.Handle(shared.NewQuotaConsumedEvent("not-a-uuid", "2026-08-30", 1, 100, 59))
	require.Error(t, err)
	assert.Empty(t, cache.invalidated)
}
