package progress

import (
	"math"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROADMAP STATUS
// ══════════════════════════════════════════════════════════════════════════════

// RoadmapStatus is the lifecycle state of a roadmap enrollment.
type RoadmapStatus string

const (
	RoadmapNotStarted RoadmapStatus = "not_started"
	RoadmapInProgress RoadmapStatus = "in_progress"
	RoadmapPaused     RoadmapStatus = "paused"
	RoadmapCompleted  RoadmapStatus = "completed"
)

// IsValid checks the status is one of the known states.
func (s RoadmapStatus) IsValid() bool {
	switch s {
	case RoadmapNotStarted, RoadmapInProgress, RoadmapPaused, RoadmapCompleted:
		return true
	}
	return false
}

// DefaultDailyGoalHours is assumed when an enrollment carries no explicit
// daily study goal.
const DefaultDailyGoalHours = 1.0

// ══════════════════════════════════════════════════════════════════════════════
// ROADMAP PROGRESS ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// RoadmapProgress is the aggregate view over one user's enrollment in a
// roadmap. Its percentage is always derived from the child step rows via
// Recompute; Completed is reached only through that derivation.
type RoadmapProgress struct {
	UserID              shared.UserID
	RoadmapID           shared.RoadmapID
	Status              RoadmapStatus
	Percentage          shared.Percentage
	StudiedHours        shared.StudyHours
	TotalEstimatedHours float64
	DailyGoalHours      float64
	StartedAt           *time.Time
	CompletedAt         *time.Time
	EstimatedCompletion *time.Time

	// Version guards against lost updates; storage bumps it on write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRoadmapProgress creates a fresh enrollment in the NotStarted state.
func NewRoadmapProgress(userID shared.UserID, roadmapID shared.RoadmapID, totalEstimatedHours float64, now time.Time) *RoadmapProgress {
	return &RoadmapProgress{
		UserID:              userID,
		RoadmapID:           roadmapID,
		Status:              RoadmapNotStarted,
		Percentage:          shared.PercentZero,
		TotalEstimatedHours: totalEstimatedHours,
		DailyGoalHours:      DefaultDailyGoalHours,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (r *RoadmapProgress) touch(now time.Time) {
	r.UpdatedAt = now
}

// IsCompleted reports whether the roadmap reached its terminal state.
func (r *RoadmapProgress) IsCompleted() bool {
	return r.Status == RoadmapCompleted
}

// Start moves NotStarted → InProgress, stamps StartedAt and computes the
// initial completion estimate. Any other state is left untouched.
func (r *RoadmapProgress) Start(now time.Time) bool {
	if r.Status != RoadmapNotStarted {
		return false
	}
	r.Status = RoadmapInProgress
	r.StartedAt = &now
	r.EstimatedCompletion = r.estimateCompletion(now)
	r.touch(now)
	return true
}

// Recompute derives the roadmap percentage from its child step counts.
// With zero steps the percentage is 0 and nothing else changes. Hitting
// exactly 100.00 completes the roadmap; this is the only path into the
// Completed state. Returns true when this call completed the roadmap.
func (r *RoadmapProgress) Recompute(completedSteps, totalSteps int, now time.Time) bool {
	if r.IsCompleted() {
		return false
	}

	pct := shared.CompletionPercent(completedSteps, totalSteps)
	r.Percentage = pct
	r.touch(now)

	if pct.IsComplete() {
		r.complete(now)
		return true
	}
	return false
}

func (r *RoadmapProgress) complete(now time.Time) {
	r.Status = RoadmapCompleted
	r.Percentage = shared.PercentComplete
	r.CompletedAt = &now
	r.EstimatedCompletion = nil
	r.touch(now)
}

// Pause suspends an in-progress roadmap without touching its percentage.
func (r *RoadmapProgress) Pause(now time.Time) error {
	if r.IsCompleted() {
		return shared.ErrRoadmapCompleted
	}
	if r.Status != RoadmapInProgress {
		return shared.ErrStateTransition
	}
	r.Status = RoadmapPaused
	r.touch(now)
	return nil
}

// Resume reactivates a paused roadmap and refreshes the completion
// estimate for the remaining work.
func (r *RoadmapProgress) Resume(now time.Time) error {
	if r.IsCompleted() {
		return shared.ErrRoadmapCompleted
	}
	if r.Status != RoadmapPaused {
		return shared.ErrRoadmapNotResumable
	}
	r.Status = RoadmapInProgress
	r.EstimatedCompletion = r.estimateCompletion(now)
	r.touch(now)
	return nil
}

// AddStudyTime accumulates studied hours toward the completion estimate.
func (r *RoadmapProgress) AddStudyTime(hours float64, now time.Time) error {
	if hours < 0 {
		return shared.ErrNegativeStudyHours
	}
	r.StudiedHours = r.StudiedHours.Add(shared.StudyHours(hours))
	r.touch(now)
	return nil
}

// SetDailyGoal changes the daily study goal and refreshes the completion
// estimate for active roadmaps. A non-positive goal disables estimation.
func (r *RoadmapProgress) SetDailyGoal(hours float64, now time.Time) {
	r.DailyGoalHours = hours
	if r.Status == RoadmapInProgress {
		r.EstimatedCompletion = r.estimateCompletion(now)
	}
	r.touch(now)
}

// estimateCompletion projects the completion date from remaining hours
// and the daily goal. Returns nil when no meaningful estimate exists.
func (r *RoadmapProgress) estimateCompletion(now time.Time) *time.Time {
	if r.DailyGoalHours <= 0 {
		return nil
	}
	remaining := r.TotalEstimatedHours - r.StudiedHours.Float64()
	if remaining <= 0 {
		return &now
	}
	days := int(math.Ceil(remaining / r.DailyGoalHours))
	est := now.AddDate(0, 0, days)
	return &est
}
