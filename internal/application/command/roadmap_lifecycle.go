package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/retry"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROADMAP LIFECYCLE COMMANDS
// Pause, resume, daily goal changes and step resets. Small mutations
// that share one handler.
// ══════════════════════════════════════════════════════════════════════════════

// RoadmapLifecycleHandler mutates roadmap enrollments outside the
// activity ingestion path.
type RoadmapLifecycleHandler struct {
	roadmaps  progress.RoadmapRepository
	steps     progress.StepRepository
	publisher shared.EventPublisher
	log       *logger.Logger
	retrier   *retry.Retrier
}

// NewRoadmapLifecycleHandler creates a new RoadmapLifecycleHandler.
func NewRoadmapLifecycleHandler(
	roadmaps progress.RoadmapRepository,
	steps progress.StepRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *RoadmapLifecycleHandler {
	return &RoadmapLifecycleHandler{
		roadmaps:  roadmaps,
		steps:     steps,
		publisher: publisher,
		log:       log.With(logger.Component("roadmap_lifecycle")),
		retrier:   retry.ConflictRetrier(),
	}
}

// Pause suspends an in-progress roadmap.
func (h *RoadmapLifecycleHandler) Pause(ctx context.Context, userID, roadmapID string) (*progress.RoadmapProgress, error) {
	return h.mutate(ctx, userID, roadmapID, shared.EventRoadmapPaused,
		func(r *progress.RoadmapProgress) error { return r.Pause(timeutil.Now()) })
}

// Resume reactivates a paused roadmap.
func (h *RoadmapLifecycleHandler) Resume(ctx context.Context, userID, roadmapID string) (*progress.RoadmapProgress, error) {
	return h.mutate(ctx, userID, roadmapID, shared.EventRoadmapResumed,
		func(r *progress.RoadmapProgress) error { return r.Resume(timeutil.Now()) })
}

// SetDailyGoal changes the daily study goal.
func (h *RoadmapLifecycleHandler) SetDailyGoal(ctx context.Context, userID, roadmapID string, hours float64) (*progress.RoadmapProgress, error) {
	return h.mutate(ctx, userID, roadmapID, "",
		func(r *progress.RoadmapProgress) error {
			r.SetDailyGoal(hours, timeutil.Now())
			return nil
		})
}

func (h *RoadmapLifecycleHandler) mutate(ctx context.Context, rawUserID, rawRoadmapID string, eventType shared.EventType, fn func(*progress.RoadmapProgress) error) (*progress.RoadmapProgress, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, shared.ErrInvalidUserID
	}
	roadmapID := shared.RoadmapID(rawRoadmapID)
	if !roadmapID.IsValid() {
		return nil, errors.New("roadmap_lifecycle: roadmap_id is required")
	}

	var roadmap *progress.RoadmapProgress
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := h.roadmaps.Get(ctx, userID, roadmapID)
		if err != nil {
			return retry.Permanent(err)
		}
		if err := fn(r); err != nil {
			return retry.Permanent(err)
		}
		if err := h.roadmaps.Update(ctx, r); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}
		roadmap = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("roadmap_lifecycle: %w", err)
	}

	if eventType != "" {
		event := shared.NewBaseEvent(eventType, userID.String())
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}
	return roadmap, nil
}

// ResetStep returns a step to its NotStarted state and recomputes the
// parent roadmap percentage. Resetting a fresh step is a no-op.
func (h *RoadmapLifecycleHandler) ResetStep(ctx context.Context, rawUserID, rawRoadmapID, rawStepID string) (*progress.StepProgress, error) {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return nil, shared.ErrInvalidUserID
	}
	roadmapID := shared.RoadmapID(rawRoadmapID)
	stepID := shared.StepID(rawStepID)
	if !roadmapID.IsValid() || !stepID.IsValid() {
		return nil, errors.New("roadmap_lifecycle: roadmap_id and step_id are required")
	}
	now := timeutil.Now()

	var step *progress.StepProgress
	var wasCompleted bool
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		s, err := h.steps.Get(ctx, userID, roadmapID, stepID)
		if err != nil {
			return retry.Permanent(err)
		}
		wasCompleted = s.IsCompleted()
		if !s.Reset(now) {
			step = s
			return nil
		}
		if err := h.steps.Update(ctx, s); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}
		step = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("roadmap_lifecycle: reset step: %w", err)
	}

	// A completed step that went back to NotStarted changes the roadmap
	// percentage. Completed roadmaps stay completed.
	if wasCompleted {
		if err := h.recomputeAfterReset(ctx, userID, roadmapID); err != nil {
			h.log.Error("recompute after reset failed",
				logger.UserID(rawUserID),
				logger.RoadmapID(rawRoadmapID),
				logger.Err(err),
			)
		}
		event := shared.NewBaseEvent(shared.EventStepReset, userID.String())
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}
	return step, nil
}

func (h *RoadmapLifecycleHandler) recomputeAfterReset(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) error {
	return h.retrier.Do(ctx, func(ctx context.Context) error {
		completed, total, err := h.steps.CountByRoadmap(ctx, userID, roadmapID)
		if err != nil {
			return retry.Permanent(err)
		}
		roadmap, err := h.roadmaps.Get(ctx, userID, roadmapID)
		if err != nil {
			return retry.Permanent(err)
		}
		roadmap.Recompute(completed, total, timeutil.Now())
		if err := h.roadmaps.Update(ctx, roadmap); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}
		return nil
	})
}
