package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEP PROGRESS REPOSITORY
// Writes use optimistic concurrency: every UPDATE matches the version
// it read and bumps it, so a lost race surfaces as
// shared.ErrConcurrentModification and the command layer retries.
// ══════════════════════════════════════════════════════════════════════════════

// StepRepository implements progress.StepRepository for PostgreSQL.
type StepRepository struct {
	conn *Connection
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(conn *Connection) *StepRepository {
	return &StepRepository{conn: conn}
}

const stepColumns = `
	user_id, roadmap_id, step_id, status, percentage, study_hours, notes,
	completed_projects, started_at, completed_at, version, created_at, updated_at`

// Create inserts a fresh step row.
func (r *StepRepository) Create(ctx context.Context, s *progress.StepProgress) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO step_progress (
			user_id, roadmap_id, step_id, status, percentage, study_hours, notes,
			completed_projects, started_at, completed_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
	`,
		s.UserID.String(), s.RoadmapID.String(), s.StepID.String(),
		string(s.Status), s.Percentage.Float64(), s.StudyHours.Float64(), s.Notes,
		projectList(s.CompletedProjects), s.StartedAt, s.CompletedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEnrollmentExists
		}
		return shared.WrapStorage("progress", "CreateStep", err)
	}
	s.Version = 1
	return nil
}

// CreateBatch inserts the step rows of one enrollment in one transaction.
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*progress.StepProgress) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, s := range steps {
			_, err := tx.Exec(ctx, `
				INSERT INTO step_progress (
					user_id, roadmap_id, step_id, status, percentage, study_hours, notes,
					completed_projects, started_at, completed_at, version, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
			`,
				s.UserID.String(), s.RoadmapID.String(), s.StepID.String(),
				string(s.Status), s.Percentage.Float64(), s.StudyHours.Float64(), s.Notes,
				projectList(s.CompletedProjects), s.StartedAt, s.CompletedAt, s.CreatedAt, s.UpdatedAt,
			)
			if err != nil {
				if IsUniqueViolation(err) {
					return shared.ErrEnrollmentExists
				}
				return fmt.Errorf("insert step %s: %w", s.StepID, err)
			}
			s.Version = 1
		}
		return nil
	})
}

// Get returns one step row.
func (r *StepRepository) Get(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID) (*progress.StepProgress, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM step_progress
		WHERE user_id = $1 AND roadmap_id = $2 AND step_id = $3
	`, userID.String(), roadmapID.String(), stepID.String())

	s, err := scanStep(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStepNotFound
		}
		return nil, shared.WrapStorage("progress", "GetStep", err)
	}
	return s, nil
}

// Update persists a mutated step row, guarding on the read version.
func (r *StepRepository) Update(ctx context.Context, s *progress.StepProgress) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE step_progress
		SET status = $4, percentage = $5, study_hours = $6, notes = $7,
		    completed_projects = $8, started_at = $9, completed_at = $10,
		    version = version + 1, updated_at = $11
		WHERE user_id = $1 AND roadmap_id = $2 AND step_id = $3 AND version = $12
	`,
		s.UserID.String(), s.RoadmapID.String(), s.StepID.String(),
		string(s.Status), s.Percentage.Float64(), s.StudyHours.Float64(), s.Notes,
		projectList(s.CompletedProjects), s.StartedAt, s.CompletedAt, s.UpdatedAt, s.Version,
	)
	if err != nil {
		return shared.WrapStorage("progress", "UpdateStep", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, s.UserID, s.RoadmapID, s.StepID); err != nil {
			return err
		}
		return shared.ErrConcurrentModification
	}
	s.Version++
	return nil
}

// ListByRoadmap returns all step rows of one enrollment.
func (r *StepRepository) ListByRoadmap(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) ([]*progress.StepProgress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+stepColumns+`
		FROM step_progress
		WHERE user_id = $1 AND roadmap_id = $2
		ORDER BY step_id
	`, userID.String(), roadmapID.String())
	if err != nil {
		return nil, shared.WrapStorage("progress", "ListSteps", err)
	}
	defer rows.Close()

	var out []*progress.StepProgress
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, shared.WrapStorage("progress", "ListSteps", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByRoadmap counts completed and total steps in storage.
func (r *StepRepository) CountByRoadmap(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (int, int, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'completed'), COUNT(*)
		FROM step_progress
		WHERE user_id = $1 AND roadmap_id = $2
	`, userID.String(), roadmapID.String())

	var completed, total int
	if err := row.Scan(&completed, &total); err != nil {
		return 0, 0, shared.WrapStorage("progress", "CountSteps", err)
	}
	return completed, total, nil
}

// projectList keeps the stored array non-null so scans always land in a
// non-nil slice.
func projectList(projects []string) []string {
	if projects == nil {
		return []string{}
	}
	return projects
}

func scanStep(row pgx.Row) (*progress.StepProgress, error) {
	var (
		s          progress.StepProgress
		userID     string
		roadmapID  string
		stepID     string
		status     string
		percentage float64
		hours      float64
	)
	err := row.Scan(
		&userID, &roadmapID, &stepID, &status, &percentage, &hours, &s.Notes,
		&s.CompletedProjects, &s.StartedAt, &s.CompletedAt, &s.Version,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.UserID = shared.UserID(userID)
	s.RoadmapID = shared.RoadmapID(roadmapID)
	s.StepID = shared.StepID(stepID)
	s.Status = progress.StepStatus(status)
	s.Percentage = shared.Percentage(percentage)
	s.StudyHours = shared.StudyHours(hours)
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROADMAP PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RoadmapRepository implements progress.RoadmapRepository for PostgreSQL.
type RoadmapRepository struct {
	conn *Connection
}

// NewRoadmapRepository creates a new RoadmapRepository.
func NewRoadmapRepository(conn *Connection) *RoadmapRepository {
	return &RoadmapRepository{conn: conn}
}

const roadmapColumns = `
	user_id, roadmap_id, status, percentage, studied_hours,
	total_estimated_hours, daily_goal_hours,
	started_at, completed_at, estimated_completion,
	version, created_at, updated_at`

// Create inserts a fresh enrollment.
func (r *RoadmapRepository) Create(ctx context.Context, rm *progress.RoadmapProgress) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO roadmap_progress (
			user_id, roadmap_id, status, percentage, studied_hours,
			total_estimated_hours, daily_goal_hours,
			started_at, completed_at, estimated_completion,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)
	`,
		rm.UserID.String(), rm.RoadmapID.String(), string(rm.Status),
		rm.Percentage.Float64(), rm.StudiedHours.Float64(),
		rm.TotalEstimatedHours, rm.DailyGoalHours,
		rm.StartedAt, rm.CompletedAt, rm.EstimatedCompletion,
		rm.CreatedAt, rm.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEnrollmentExists
		}
		return shared.WrapStorage("progress", "CreateRoadmap", err)
	}
	rm.Version = 1
	return nil
}

// Get returns one enrollment.
func (r *RoadmapRepository) Get(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (*progress.RoadmapProgress, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+roadmapColumns+`
		FROM roadmap_progress
		WHERE user_id = $1 AND roadmap_id = $2
	`, userID.String(), roadmapID.String())

	rm, err := scanRoadmap(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRoadmapNotFound
		}
		return nil, shared.WrapStorage("progress", "GetRoadmap", err)
	}
	return rm, nil
}

// Update persists a mutated enrollment, guarding on the read version.
func (r *RoadmapRepository) Update(ctx context.Context, rm *progress.RoadmapProgress) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE roadmap_progress
		SET status = $3, percentage = $4, studied_hours = $5,
		    total_estimated_hours = $6, daily_goal_hours = $7,
		    started_at = $8, completed_at = $9, estimated_completion = $10,
		    version = version + 1, updated_at = $11
		WHERE user_id = $1 AND roadmap_id = $2 AND version = $12
	`,
		rm.UserID.String(), rm.RoadmapID.String(), string(rm.Status),
		rm.Percentage.Float64(), rm.StudiedHours.Float64(),
		rm.TotalEstimatedHours, rm.DailyGoalHours,
		rm.StartedAt, rm.CompletedAt, rm.EstimatedCompletion,
		rm.UpdatedAt, rm.Version,
	)
	if err != nil {
		return shared.WrapStorage("progress", "UpdateRoadmap", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, rm.UserID, rm.RoadmapID); err != nil {
			return err
		}
		return shared.ErrConcurrentModification
	}
	rm.Version++
	return nil
}

// ListByUser returns all enrollments of a user, most recent first.
func (r *RoadmapRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]*progress.RoadmapProgress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+roadmapColumns+`
		FROM roadmap_progress
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, shared.WrapStorage("progress", "ListRoadmaps", err)
	}
	defer rows.Close()

	var out []*progress.RoadmapProgress
	for rows.Next() {
		rm, err := scanRoadmap(rows)
		if err != nil {
			return nil, shared.WrapStorage("progress", "ListRoadmaps", err)
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func scanRoadmap(row pgx.Row) (*progress.RoadmapProgress, error) {
	var (
		rm         progress.RoadmapProgress
		userID     string
		roadmapID  string
		status     string
		percentage float64
		studied    float64
	)
	err := row.Scan(
		&userID, &roadmapID, &status, &percentage, &studied,
		&rm.TotalEstimatedHours, &rm.DailyGoalHours,
		&rm.StartedAt, &rm.CompletedAt, &rm.EstimatedCompletion,
		&rm.Version, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rm.UserID = shared.UserID(userID)
	rm.RoadmapID = shared.RoadmapID(roadmapID)
	rm.Status = progress.RoadmapStatus(status)
	rm.Percentage = shared.Percentage(percentage)
	rm.StudiedHours = shared.StudyHours(studied)
	return &rm, nil
}
