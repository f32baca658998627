package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/retry"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STEP PROGRESS COMMAND
// Sets a step's completion percentage (implicitly starting it, or
// completing it at 100), optionally adding study time and notes. A step
// that completes here also recomputes the parent roadmap aggregate.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStepProgressCommand contains a manual progress update.
type UpdateStepProgressCommand struct {
	// UserID is the acting user (UUID).
	UserID string

	// RoadmapID scopes the step to its enrollment.
	RoadmapID string

	// StepID is the step being updated.
	StepID string

	// Percentage is the new completion percentage, when set.
	Percentage *float64

	// StudyHours adds elapsed study time, when positive.
	StudyHours float64

	// Notes replaces the step notes, when set.
	Notes *string

	// CompletedProject records a finished practice project, when non-empty.
	CompletedProject string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UpdateStepProgressCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return shared.ErrInvalidUserID
	}
	if !shared.RoadmapID(c.RoadmapID).IsValid() {
		return errors.New("update_step: roadmap_id is required")
	}
	if !shared.StepID(c.StepID).IsValid() {
		return errors.New("update_step: step_id is required")
	}
	if c.Percentage == nil && c.StudyHours == 0 && c.Notes == nil && c.CompletedProject == "" {
		return errors.New("update_step: nothing to update")
	}
	if c.StudyHours < 0 {
		return shared.ErrNegativeStudyHours
	}
	return nil
}

// UpdateStepProgressResult contains the result of the update.
type UpdateStepProgressResult struct {
	// Step is the step row after the update.
	Step *progress.StepProgress

	// StepCompleted is true when this update completed the step.
	StepCompleted bool

	// RoadmapCompleted is true when the completion finished the roadmap.
	RoadmapCompleted bool

	// RoadmapPercentage is the roadmap completion after recompute.
	RoadmapPercentage float64
}

// UpdateStepProgressHandler handles the UpdateStepProgressCommand.
type UpdateStepProgressHandler struct {
	steps     progress.StepRepository
	roadmaps  progress.RoadmapRepository
	publisher shared.EventPublisher
	log       *logger.Logger
	retrier   *retry.Retrier
}

// NewUpdateStepProgressHandler creates a new UpdateStepProgressHandler.
func NewUpdateStepProgressHandler(
	steps progress.StepRepository,
	roadmaps progress.RoadmapRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *UpdateStepProgressHandler {
	return &UpdateStepProgressHandler{
		steps:     steps,
		roadmaps:  roadmaps,
		publisher: publisher,
		log:       log.With(logger.Component("update_step")),
		retrier:   retry.ConflictRetrier(),
	}
}

// Handle executes the update step progress command.
func (h *UpdateStepProgressHandler) Handle(ctx context.Context, cmd UpdateStepProgressCommand) (*UpdateStepProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_step: validation failed: %w", err)
	}

	userID := shared.UserID(cmd.UserID)
	roadmapID := shared.RoadmapID(cmd.RoadmapID)
	stepID := shared.StepID(cmd.StepID)
	now := timeutil.Now()

	result := &UpdateStepProgressResult{}

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		step, err := h.steps.Get(ctx, userID, roadmapID, stepID)
		if err != nil {
			return retry.Permanent(err)
		}

		if cmd.Percentage != nil {
			completed, err := step.UpdateProgress(*cmd.Percentage, now)
			if err != nil {
				return retry.Permanent(err)
			}
			result.StepCompleted = completed
		}
		if cmd.StudyHours > 0 {
			if err := step.AddStudyTime(cmd.StudyHours, now); err != nil {
				return retry.Permanent(err)
			}
		}
		if cmd.Notes != nil {
			step.UpdateNotes(*cmd.Notes, now)
		}
		if cmd.CompletedProject != "" {
			step.AddCompletedProject(cmd.CompletedProject, now)
		}

		if err := h.steps.Update(ctx, step); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}
		result.Step = step
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update_step: %w", err)
	}

	if result.StepCompleted {
		if err := h.recompute(ctx, userID, roadmapID, cmd.StepID, cmd.StudyHours, now, result); err != nil {
			h.log.Error("roadmap recompute failed",
				logger.UserID(cmd.UserID),
				logger.RoadmapID(cmd.RoadmapID),
				logger.Err(err),
			)
			return result, fmt.Errorf("update_step: recompute: %w", err)
		}
	}
	return result, nil
}

func (h *UpdateStepProgressHandler) recompute(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID, stepID string, studyHours float64, now time.Time, result *UpdateStepProgressResult) error {
	return h.retrier.Do(ctx, func(ctx context.Context) error {
		completedSteps, total, err := h.steps.CountByRoadmap(ctx, userID, roadmapID)
		if err != nil {
			return retry.Permanent(err)
		}

		roadmap, err := h.roadmaps.Get(ctx, userID, roadmapID)
		if err != nil {
			return retry.Permanent(err)
		}

		if studyHours > 0 {
			_ = roadmap.AddStudyTime(studyHours, now)
		}
		finished := roadmap.Recompute(completedSteps, total, now)

		if err := h.roadmaps.Update(ctx, roadmap); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}

		result.RoadmapPercentage = roadmap.Percentage.Float64()
		h.publishEvent(shared.NewStepCompletedEvent(
			userID.String(), roadmapID.String(), stepID, 0, roadmap.Percentage.Float64(),
		))

		if finished {
			result.RoadmapCompleted = true
			startedAt := now
			if roadmap.StartedAt != nil {
				startedAt = *roadmap.StartedAt
			}
			h.publishEvent(shared.NewRoadmapCompletedEvent(
				userID.String(), roadmapID.String(), total, startedAt,
			))
		}
		return nil
	})
}

func (h *UpdateStepProgressHandler) publishEvent(event shared.Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
