package progress

import (
	"context"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// StepRepository stores per-step progress rows, one per (user, roadmap, step).
type StepRepository interface {
	// Create inserts a fresh step row.
	// Returns shared.ErrEnrollmentExists if the row already exists.
	Create(ctx context.Context, step *StepProgress) error

	// CreateBatch inserts all step rows of a new enrollment in one
	// transaction.
	CreateBatch(ctx context.Context, steps []*StepProgress) error

	// Get returns one step row.
	// Returns shared.ErrStepNotFound if the row does not exist.
	Get(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID) (*StepProgress, error)

	// Update persists a mutated step row using optimistic concurrency.
	// Returns shared.ErrConcurrentModification on a lost race.
	Update(ctx context.Context, step *StepProgress) error

	// ListByRoadmap returns all step rows of one enrollment.
	ListByRoadmap(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) ([]*StepProgress, error)

	// CountByRoadmap returns (completed, total) step counts for one
	// enrollment, computed in storage.
	CountByRoadmap(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (completed, total int, err error)
}

// RoadmapRepository stores roadmap enrollment aggregates.
type RoadmapRepository interface {
	// Create inserts a fresh enrollment.
	// Returns shared.ErrEnrollmentExists if the user is already enrolled.
	Create(ctx context.Context, roadmap *RoadmapProgress) error

	// Get returns one enrollment.
	// Returns shared.ErrRoadmapNotFound if the enrollment does not exist.
	Get(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (*RoadmapProgress, error)

	// Update persists a mutated enrollment using optimistic concurrency.
	// Returns shared.ErrConcurrentModification on a lost race.
	Update(ctx context.Context, roadmap *RoadmapProgress) error

	// ListByUser returns all of a user's enrollments.
	ListByUser(ctx context.Context, userID shared.UserID) ([]*RoadmapProgress, error)
}
