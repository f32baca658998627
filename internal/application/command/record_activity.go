// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/retry"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// The single ingestion entry point. One incoming activity fans out, in a
// fixed order, to the quota ledger, step/roadmap progress, the daily stat
// rollup and the streak calculation. An AI question that fails its quota
// check aborts before any other effect is applied.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand carries one incoming activity.
type RecordActivityCommand struct {
	// UserID is the acting user (UUID).
	UserID string

	// Type is the activity type: roadmap_start, step_complete,
	// study_session, ai_question or search.
	Type string

	// TargetID identifies the step, roadmap or AI session, depending on
	// the activity type.
	TargetID string

	// RoadmapID scopes step activities to their roadmap.
	RoadmapID string

	// DurationMinutes is the elapsed study time, for timed activities.
	DurationMinutes int

	// TokenCount is the AI token cost, for ai_question activities.
	TokenCount int

	// Metadata is free-form audit payload (question text, search query).
	Metadata map[string]interface{}

	// OccurredAt is the client-side activity timestamp. Zero means now.
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command and builds the domain activity.
func (c RecordActivityCommand) Validate() (activity.Activity, error) {
	userID, err := shared.NewUserID(c.UserID)
	if err != nil {
		return activity.Activity{}, shared.ErrInvalidUserID
	}

	at := c.OccurredAt
	if at.IsZero() {
		at = timeutil.Now()
	}

	a := activity.Activity{
		UserID:          userID,
		Type:            activity.Type(c.Type),
		TargetID:        c.TargetID,
		RoadmapID:       shared.RoadmapID(c.RoadmapID),
		DurationMinutes: c.DurationMinutes,
		TokenCount:      c.TokenCount,
		Metadata:        c.Metadata,
		Timestamp:       at,
	}

	switch a.Type {
	case activity.TypeStepComplete:
		a.TargetType = activity.TargetStep
	case activity.TypeRoadmapStart:
		a.TargetType = activity.TargetRoadmap
		if a.TargetID == "" {
			a.TargetID = c.RoadmapID
		}
	case activity.TypeAiQuestion:
		a.TargetType = activity.TargetAiSession
	case activity.TypeSearch:
		a.TargetType = activity.TargetSearch
	}

	if err := a.Validate(); err != nil {
		return activity.Activity{}, err
	}
	return a, nil
}

// RecordActivityResult reports which downstream effects were applied.
type RecordActivityResult struct {
	// StepCompleted is true when this activity completed its step.
	StepCompleted bool

	// RoadmapCompleted is true when the step completion finished the
	// whole roadmap.
	RoadmapCompleted bool

	// RoadmapPercentage is the roadmap completion after recompute, when
	// a roadmap was affected.
	RoadmapPercentage float64

	// Stat is today's stat row after the rollup.
	Stat *stats.DailyStat

	// DayBecameActive is true when this activity flipped today from
	// inactive to active.
	DayBecameActive bool

	// StreakDay is the streak day number written today, when the day
	// became active.
	StreakDay int

	// Quota is the usage row after an AI reservation.
	Quota *quota.UsageQuota

	// Events contains the domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler routes one activity through the engine.
type RecordActivityHandler struct {
	roles     quota.RoleProvider
	ledger    *quota.Ledger
	steps     progress.StepRepository
	roadmaps  progress.RoadmapRepository
	stats     stats.Repository
	audit     activity.AuditLog
	publisher shared.EventPublisher
	log       *logger.Logger
	retrier   *retry.Retrier
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	roles quota.RoleProvider,
	ledger *quota.Ledger,
	steps progress.StepRepository,
	roadmaps progress.RoadmapRepository,
	statsRepo stats.Repository,
	audit activity.AuditLog,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *RecordActivityHandler {
	return &RecordActivityHandler{
		roles:     roles,
		ledger:    ledger,
		steps:     steps,
		roadmaps:  roadmaps,
		stats:     statsRepo,
		audit:     audit,
		publisher: publisher,
		log:       log.With(logger.Component("record_activity")),
		retrier:   retry.ConflictRetrier(),
	}
}

// Handle executes the record activity command.
//
// The quota check is the only gate: a denial returns before any state
// changes. Everything after the first applied effect is best-effort; a
// later failure is logged and joined into the returned error but already
// applied effects stay.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	a, err := cmd.Validate()
	if err != nil {
		return nil, fmt.Errorf("record_activity: validation failed: %w", err)
	}

	log := h.log.With(
		logger.UserID(a.UserID.String()),
		logger.ActivityType(a.Type.String()),
	)
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}

	result := &RecordActivityResult{}

	// Quota gate. Must deny before any side effect exists.
	if a.Type == activity.TypeAiQuestion {
		role, err := h.roles.RoleOf(ctx, a.UserID)
		if err != nil {
			return nil, fmt.Errorf("record_activity: resolve role: %w", err)
		}

		q, err := h.ledger.ReserveMessage(ctx, a.UserID, role, a.TokenCount)
		if err != nil {
			var exceeded *quota.ExceededError
			if errors.As(err, &exceeded) {
				log.Info("quota denied",
					logger.String("kind", string(exceeded.Kind)),
					logger.Int("limit", exceeded.Limit),
					logger.Int("used", exceeded.Used),
				)
				h.publish(result, shared.NewBaseEvent(shared.EventQuotaDenied, a.UserID.String()))
			}
			return nil, fmt.Errorf("record_activity: quota: %w", err)
		}
		result.Quota = q
		h.publish(result, shared.NewQuotaConsumedEvent(
			a.UserID.String(), timeutil.DayKey(q.Date), q.MessageCount, q.TokenCount,
			q.RemainingMessages(role),
		))
	}

	// Past the gate: collect failures instead of returning early.
	var applied []error

	if err := h.audit.Append(ctx, a); err != nil {
		log.Warn("audit append failed", logger.Err(err))
		applied = append(applied, fmt.Errorf("audit: %w", err))
	}

	if a.Type == activity.TypeStepComplete {
		if err := h.applyStepCompletion(ctx, a, result, log); err != nil {
			log.Error("step completion failed", logger.Err(err))
			applied = append(applied, fmt.Errorf("step: %w", err))
		}
	}

	if err := h.applyRollup(ctx, a, result, log); err != nil {
		log.Error("stat rollup failed", logger.Err(err))
		applied = append(applied, fmt.Errorf("stats: %w", err))
	}

	if len(applied) > 0 {
		return result, fmt.Errorf("record_activity: %w", errors.Join(applied...))
	}
	return result, nil
}

// applyStepCompletion completes the target step and recomputes its
// roadmap aggregate.
func (h *RecordActivityHandler) applyStepCompletion(ctx context.Context, a activity.Activity, result *RecordActivityResult, log *logger.Logger) error {
	stepID := shared.StepID(a.TargetID)
	now := a.Timestamp

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		step, err := h.steps.Get(ctx, a.UserID, a.RoadmapID, stepID)
		if err != nil {
			return retry.Permanent(err)
		}

		completed := step.Complete(now)
		if a.DurationMinutes > 0 {
			if err := step.AddStudyTime(float64(a.DurationMinutes)/60, now); err != nil {
				return retry.Permanent(err)
			}
		}

		if err := h.steps.Update(ctx, step); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}
		result.StepCompleted = completed
		return nil
	})
	if err != nil {
		return err
	}

	return h.recomputeRoadmap(ctx, a, result, log)
}

// recomputeRoadmap reloads the step counts and folds them into the
// roadmap aggregate, publishing completion when the roadmap finishes.
func (h *RecordActivityHandler) recomputeRoadmap(ctx context.Context, a activity.Activity, result *RecordActivityResult, log *logger.Logger) error {
	now := a.Timestamp

	return h.retrier.Do(ctx, func(ctx context.Context) error {
		completed, total, err := h.steps.CountByRoadmap(ctx, a.UserID, a.RoadmapID)
		if err != nil {
			return retry.Permanent(err)
		}

		roadmap, err := h.roadmaps.Get(ctx, a.UserID, a.RoadmapID)
		if err != nil {
			return retry.Permanent(err)
		}

		if roadmap.Status == progress.RoadmapNotStarted {
			roadmap.Start(now)
		}
		if a.DurationMinutes > 0 {
			_ = roadmap.AddStudyTime(float64(a.DurationMinutes)/60, now)
		}

		finished := roadmap.Recompute(completed, total, now)

		if err := h.roadmaps.Update(ctx, roadmap); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				return retry.Retryable(err)
			}
			return err
		}

		result.RoadmapPercentage = roadmap.Percentage.Float64()
		h.publish(result, shared.NewStepCompletedEvent(
			a.UserID.String(), a.RoadmapID.String(), a.TargetID,
			a.DurationMinutes, roadmap.Percentage.Float64(),
		))

		if finished {
			result.RoadmapCompleted = true
			startedAt := now
			if roadmap.StartedAt != nil {
				startedAt = *roadmap.StartedAt
			}
			log.Info("roadmap completed", logger.RoadmapID(a.RoadmapID.String()))
			h.publish(result, shared.NewRoadmapCompletedEvent(
				a.UserID.String(), a.RoadmapID.String(), total, startedAt,
			))
		}
		return nil
	})
}

// applyRollup folds the activity into today's stat row and, on the
// inactive→active flip, records the streak for the day.
func (h *RecordActivityHandler) applyRollup(ctx context.Context, a activity.Activity, result *RecordActivityResult, log *logger.Logger) error {
	today := timeutil.Today()

	stat, becameActive, err := h.stats.Apply(ctx, a.UserID, today, a)
	if err != nil {
		return err
	}
	result.Stat = stat
	result.DayBecameActive = becameActive

	if !becameActive {
		return nil
	}

	h.publish(result, shared.NewBaseEvent(shared.EventDayBecameActive, a.UserID.String()))

	yesterday, err := h.stats.GetForDate(ctx, a.UserID, timeutil.Yesterday())
	if err != nil && !shared.IsNotFound(err) {
		return fmt.Errorf("streak lookup: %w", err)
	}

	streakDay := stats.NextStreakDay(yesterday)
	if err := h.stats.SetStreakDay(ctx, a.UserID, today, streakDay); err != nil {
		return fmt.Errorf("streak write: %w", err)
	}
	result.StreakDay = streakDay

	log.Info("streak updated", logger.StreakDay(streakDay))
	h.publish(result, shared.NewStreakUpdatedEvent(
		a.UserID.String(), timeutil.DayKey(today), streakDay,
		stats.IsStreakContinued(streakDay),
	))
	if stats.IsMilestone(streakDay) {
		h.publish(result, shared.NewStreakMilestoneEvent(a.UserID.String(), streakDay))
	}
	return nil
}

func (h *RecordActivityHandler) publish(result *RecordActivityResult, event shared.Event) {
	result.Events = append(result.Events, event)
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
