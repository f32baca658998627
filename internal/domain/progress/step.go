// Package progress contains the per-user learning progress model: step
// completion state machines and the roadmap-level aggregate derived from
// them. This is a pure domain layer with zero external dependencies.
package progress

import (
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEP STATUS
// ══════════════════════════════════════════════════════════════════════════════

// StepStatus is the lifecycle state of a single step enrollment.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// IsValid checks the status is one of the known states.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepNotStarted, StepInProgress, StepCompleted:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP PROGRESS ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// StepProgress tracks one user's progress through one roadmap step.
// Invariant: Percentage == 100 exactly when Status == StepCompleted, and
// the only backward transition is an explicit Reset.
type StepProgress struct {
	UserID      shared.UserID
	RoadmapID   shared.RoadmapID
	StepID      shared.StepID
	Status      StepStatus
	Percentage  shared.Percentage
	StudyHours  shared.StudyHours
	Notes       string

	// CompletedProjects lists the practice projects finished for this
	// step, in completion order.
	CompletedProjects []string

	StartedAt   *time.Time
	CompletedAt *time.Time

	// Version guards against lost updates; storage bumps it on write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStepProgress creates a fresh enrollment row in the NotStarted state.
func NewStepProgress(userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID, now time.Time) *StepProgress {
	return &StepProgress{
		UserID:     userID,
		RoadmapID:  roadmapID,
		StepID:     stepID,
		Status:     StepNotStarted,
		Percentage: shared.PercentZero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (p *StepProgress) touch(now time.Time) {
	p.UpdatedAt = now
}

// IsCompleted reports whether the step reached its terminal state.
func (p *StepProgress) IsCompleted() bool {
	return p.Status == StepCompleted
}

// Start moves NotStarted → InProgress and stamps StartedAt. Calling it
// on a step already in progress or completed is a no-op.
func (p *StepProgress) Start(now time.Time) bool {
	if p.Status != StepNotStarted {
		return false
	}
	p.Status = StepInProgress
	p.StartedAt = &now
	p.touch(now)
	return true
}

// UpdateProgress sets the step percentage. A positive value implicitly
// starts a NotStarted step; exactly 100 completes it, pinning the stored
// percentage to 100.00 regardless of rounding. A completed step ignores
// sub-100 updates: the only backward transition is an explicit Reset.
// Returns true when the update flipped the step into the completed state.
func (p *StepProgress) UpdateProgress(pct float64, now time.Time) (bool, error) {
	v, err := shared.NewPercentage(pct)
	if err != nil {
		return false, shared.ErrInvalidPercentage
	}

	if p.IsCompleted() && !v.IsComplete() {
		return false, nil
	}

	if p.Status == StepNotStarted && v > 0 {
		p.Status = StepInProgress
		p.StartedAt = &now
	}

	if v.IsComplete() {
		completed := !p.IsCompleted()
		p.complete(now)
		return completed, nil
	}

	p.Percentage = v
	p.touch(now)
	return false, nil
}

// Complete is the bulk-completion shortcut: it forces the step to its
// terminal state without going through a percentage update. Idempotent.
func (p *StepProgress) Complete(now time.Time) bool {
	if p.IsCompleted() {
		return false
	}
	if p.StartedAt == nil {
		p.StartedAt = &now
	}
	p.complete(now)
	return true
}

func (p *StepProgress) complete(now time.Time) {
	p.Status = StepCompleted
	p.Percentage = shared.PercentComplete
	p.CompletedAt = &now
	p.touch(now)
}

// AddStudyTime adds elapsed study hours. Accumulation is independent of
// the step's lifecycle state.
func (p *StepProgress) AddStudyTime(hours float64, now time.Time) error {
	if hours < 0 {
		return shared.ErrNegativeStudyHours
	}
	p.StudyHours = p.StudyHours.Add(shared.StudyHours(hours))
	p.touch(now)
	return nil
}

// UpdateNotes replaces the user's free-form notes on the step.
func (p *StepProgress) UpdateNotes(notes string, now time.Time) {
	p.Notes = notes
	p.touch(now)
}

// AddCompletedProject records a practice project the user finished for
// this step. Duplicates and empty references are ignored; returns true
// when the project was actually added.
func (p *StepProgress) AddCompletedProject(ref string, now time.Time) bool {
	if ref == "" {
		return false
	}
	for _, existing := range p.CompletedProjects {
		if existing == ref {
			return false
		}
	}
	p.CompletedProjects = append(p.CompletedProjects, ref)
	p.touch(now)
	return true
}

// Reset returns the step to NotStarted, clearing percentage and both
// timestamps. This is the only backward transition and happens only on
// explicit user request. Study hours, notes and completed projects
// survive a reset.
func (p *StepProgress) Reset(now time.Time) bool {
	if p.Status == StepNotStarted {
		return false
	}
	p.Status = StepNotStarted
	p.Percentage = shared.PercentZero
	p.StartedAt = nil
	p.CompletedAt = nil
	p.touch(now)
	return true
}
