package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON STREAK UPDATED
// Keeps the streak leaderboard current and celebrates milestones.
// ══════════════════════════════════════════════════════════════════════════════

// OnStreakUpdated folds streak changes into the leaderboard.
type OnStreakUpdated struct {
	leaderboard stats.Leaderboard
	log         *logger.Logger
	timeout     time.Duration
}

// NewOnStreakUpdated creates the handler.
func NewOnStreakUpdated(leaderboard stats.Leaderboard, log *logger.Logger) *OnStreakUpdated {
	return &OnStreakUpdated{
		leaderboard: leaderboard,
		log:         log.With(logger.Component("on_streak_updated")),
		timeout:     5 * time.Second,
	}
}

// Name implements shared.EventHandler.
func (h *OnStreakUpdated) Name() string {
	return "on_streak_updated"
}

// Handle implements shared.EventHandler.
func (h *OnStreakUpdated) Handle(event shared.Event) error {
	e, ok := event.(shared.StreakUpdatedEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_streak_updated: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.leaderboard.SetStreak(ctx, userID, e.StreakDay); err != nil {
		h.log.Warn("leaderboard update failed",
			logger.UserID(e.UserID),
			logger.StreakDay(e.StreakDay),
			logger.Err(err),
		)
		return fmt.Errorf("on_streak_updated: leaderboard: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ON STREAK MILESTONE
// ══════════════════════════════════════════════════════════════════════════════

// OnStreakMilestone notifies the user on milestone streak days.
type OnStreakMilestone struct {
	sender  notification.Sender
	log     *logger.Logger
	timeout time.Duration
}

// NewOnStreakMilestone creates the handler.
func NewOnStreakMilestone(sender notification.Sender, log *logger.Logger) *OnStreakMilestone {
	return &OnStreakMilestone{
		sender:  sender,
		log:     log.With(logger.Component("on_streak_milestone")),
		timeout: 10 * time.Second,
	}
}

// Name implements shared.EventHandler.
func (h *OnStreakMilestone) Name() string {
	return "on_streak_milestone"
}

// Handle implements shared.EventHandler.
func (h *OnStreakMilestone) Handle(event shared.Event) error {
	e, ok := event.(shared.StreakMilestoneEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_streak_milestone: %w", err)
	}

	n := notification.New(userID, notification.TypeStreakMilestone,
		fmt.Sprintf("%d-day streak!", e.StreakDay),
		fmt.Sprintf("You have studied %d days in a row. Keep it going.", e.StreakDay),
	).WithPriority(notification.PriorityHigh).
		WithData("streak_day", e.StreakDay)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sender.Send(ctx, n); err != nil {
		h.log.Error("milestone notification failed",
			logger.UserID(e.UserID),
			logger.StreakDay(e.StreakDay),
			logger.Err(err),
		)
		return fmt.Errorf("on_streak_milestone: send: %w", err)
	}

	h.log.Info("milestone celebrated",
		logger.UserID(e.UserID),
		logger.StreakDay(e.StreakDay),
	)
	return nil
}
