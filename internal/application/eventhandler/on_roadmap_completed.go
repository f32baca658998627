// Package eventhandler contains the subscribers wired onto the event bus.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON ROADMAP COMPLETED
// Congratulates the user when a roadmap reaches 100%.
// ══════════════════════════════════════════════════════════════════════════════

// OnRoadmapCompleted builds a congratulation notification from the
// roadmap completion event.
type OnRoadmapCompleted struct {
	sender  notification.Sender
	log     *logger.Logger
	timeout time.Duration
}

// NewOnRoadmapCompleted creates the handler.
func NewOnRoadmapCompleted(sender notification.Sender, log *logger.Logger) *OnRoadmapCompleted {
	return &OnRoadmapCompleted{
		sender:  sender,
		log:     log.With(logger.Component("on_roadmap_completed")),
		timeout: 10 * time.Second,
	}
}

// Name implements shared.EventHandler.
func (h *OnRoadmapCompleted) Name() string {
	return "on_roadmap_completed"
}

// Handle implements shared.EventHandler.
func (h *OnRoadmapCompleted) Handle(event shared.Event) error {
	e, ok := event.(shared.RoadmapCompletedEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_roadmap_completed: %w", err)
	}

	n := notification.New(userID, notification.TypeRoadmapCompleted,
		"Roadmap completed!",
		fmt.Sprintf("You finished all %d steps of %s. Time to pick the next one.", e.TotalSteps, e.RoadmapID),
	).WithPriority(notification.PriorityHigh).
		WithData("roadmap_id", e.RoadmapID).
		WithData("total_steps", e.TotalSteps)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sender.Send(ctx, n); err != nil {
		h.log.Error("congratulation not delivered",
			logger.UserID(e.UserID),
			logger.RoadmapID(e.RoadmapID),
			logger.Err(err),
		)
		return fmt.Errorf("on_roadmap_completed: send: %w", err)
	}

	h.log.Info("congratulation sent",
		logger.UserID(e.UserID),
		logger.RoadmapID(e.RoadmapID),
	)
	return nil
}
