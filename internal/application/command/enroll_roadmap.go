package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL ROADMAP COMMAND
// Creates a roadmap enrollment with one NotStarted row per step and
// starts it. Enrollment and start are one user action.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollRoadmapCommand contains the data to enroll a user in a roadmap.
type EnrollRoadmapCommand struct {
	// UserID is the enrolling user (UUID).
	UserID string

	// RoadmapID is the roadmap being enrolled in.
	RoadmapID string

	// StepIDs are the roadmap's steps, in curriculum order.
	StepIDs []string

	// TotalEstimatedHours is the roadmap's estimated total effort.
	TotalEstimatedHours float64

	// DailyGoalHours is the user's daily study goal. Zero means the
	// default of one hour.
	DailyGoalHours float64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollRoadmapCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return shared.ErrInvalidUserID
	}
	if !shared.RoadmapID(c.RoadmapID).IsValid() {
		return errors.New("enroll_roadmap: roadmap_id is required")
	}
	if len(c.StepIDs) == 0 {
		return errors.New("enroll_roadmap: at least one step is required")
	}
	if c.TotalEstimatedHours < 0 {
		return errors.New("enroll_roadmap: total_estimated_hours must be non-negative")
	}
	if c.DailyGoalHours < 0 {
		return errors.New("enroll_roadmap: daily_goal_hours must be non-negative")
	}
	return nil
}

// EnrollRoadmapResult contains the result of the enrollment.
type EnrollRoadmapResult struct {
	// Roadmap is the created enrollment.
	Roadmap *progress.RoadmapProgress

	// StepCount is the number of step rows created.
	StepCount int

	// EstimatedCompletion is the projected completion date, when one
	// could be computed.
	EstimatedCompletion *time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// EnrollRoadmapHandler handles the EnrollRoadmapCommand.
type EnrollRoadmapHandler struct {
	roadmaps  progress.RoadmapRepository
	steps     progress.StepRepository
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewEnrollRoadmapHandler creates a new EnrollRoadmapHandler.
func NewEnrollRoadmapHandler(
	roadmaps progress.RoadmapRepository,
	steps progress.StepRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EnrollRoadmapHandler {
	return &EnrollRoadmapHandler{
		roadmaps:  roadmaps,
		steps:     steps,
		publisher: publisher,
		log:       log.With(logger.Component("enroll_roadmap")),
	}
}

// Handle executes the enroll roadmap command.
func (h *EnrollRoadmapHandler) Handle(ctx context.Context, cmd EnrollRoadmapCommand) (*EnrollRoadmapResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_roadmap: validation failed: %w", err)
	}

	userID := shared.UserID(cmd.UserID)
	roadmapID := shared.RoadmapID(cmd.RoadmapID)
	now := timeutil.Now()

	roadmap := progress.NewRoadmapProgress(userID, roadmapID, cmd.TotalEstimatedHours, now)
	if cmd.DailyGoalHours > 0 {
		roadmap.DailyGoalHours = cmd.DailyGoalHours
	}
	roadmap.Start(now)

	if err := h.roadmaps.Create(ctx, roadmap); err != nil {
		return nil, fmt.Errorf("enroll_roadmap: %w", err)
	}

	stepRows := make([]*progress.StepProgress, 0, len(cmd.StepIDs))
	for _, stepID := range cmd.StepIDs {
		stepRows = append(stepRows, progress.NewStepProgress(userID, roadmapID, shared.StepID(stepID), now))
	}
	if err := h.steps.CreateBatch(ctx, stepRows); err != nil {
		return nil, fmt.Errorf("enroll_roadmap: create steps: %w", err)
	}

	h.log.Info("roadmap enrolled",
		logger.UserID(cmd.UserID),
		logger.RoadmapID(cmd.RoadmapID),
		logger.Int("steps", len(stepRows)),
	)

	event := shared.NewRoadmapStartedEvent(cmd.UserID, cmd.RoadmapID, roadmap.EstimatedCompletion)
	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("event publish failed", logger.Err(err))
	}

	return &EnrollRoadmapResult{
		Roadmap:             roadmap,
		StepCount:           len(stepRows),
		EstimatedCompletion: roadmap.EstimatedCompletion,
		Events:              []shared.Event{event},
	}, nil
}
