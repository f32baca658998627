package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATS REPOSITORY
// Apply locks the per-(user, day) row FOR UPDATE, folds the activity in
// through the domain entity and reports the inactive→active flip from
// inside the same transaction, so exactly one concurrent caller sees it.
// ══════════════════════════════════════════════════════════════════════════════

// StatsRepository implements stats.Repository for PostgreSQL.
type StatsRepository struct {
	conn *Connection
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{conn: conn}
}

const statColumns = `
	user_id, stat_date, study_minutes, completed_steps, ai_questions,
	searches, streak_day, created_at, updated_at`

// Apply folds one activity into the day's row.
func (r *StatsRepository) Apply(ctx context.Context, userID shared.UserID, day time.Time, a activity.Activity) (*stats.DailyStat, bool, error) {
	statDay := timeutil.StartOfDay(day)
	var (
		out          *stats.DailyStat
		becameActive bool
	)

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO daily_stats (user_id, stat_date)
			VALUES ($1, $2)
			ON CONFLICT (user_id, stat_date) DO NOTHING
		`, userID.String(), statDay)
		if err != nil {
			return fmt.Errorf("lazy insert: %w", err)
		}

		row := tx.QueryRow(ctx, `
			SELECT `+statColumns+`
			FROM daily_stats
			WHERE user_id = $1 AND stat_date = $2
			FOR UPDATE
		`, userID.String(), statDay)

		s, err := scanStat(row)
		if err != nil {
			return fmt.Errorf("lock row: %w", err)
		}

		wasActive := s.IsActiveDay()
		if err := s.ApplyActivity(a, time.Now()); err != nil {
			return err
		}
		becameActive = !wasActive && s.IsActiveDay()

		_, err = tx.Exec(ctx, `
			UPDATE daily_stats
			SET study_minutes = $3, completed_steps = $4, ai_questions = $5,
			    searches = $6, updated_at = $7
			WHERE user_id = $1 AND stat_date = $2
		`, userID.String(), statDay,
			s.StudyMinutes, s.CompletedSteps, s.AiQuestions, s.Searches, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("write counters: %w", err)
		}

		out = s
		return nil
	})
	if err != nil {
		if shared.IsValidation(err) {
			return nil, false, err
		}
		return nil, false, shared.WrapStorage("stats", "Apply", err)
	}
	return out, becameActive, nil
}

// SetStreakDay writes the streak day number onto an existing row.
func (r *StatsRepository) SetStreakDay(ctx context.Context, userID shared.UserID, day time.Time, streakDay int) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE daily_stats
		SET streak_day = $3, updated_at = now()
		WHERE user_id = $1 AND stat_date = $2
	`, userID.String(), timeutil.StartOfDay(day), streakDay)
	if err != nil {
		return shared.WrapStorage("stats", "SetStreakDay", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStatNotFound
	}
	return nil
}

// GetForDate returns the stat row for one day.
func (r *StatsRepository) GetForDate(ctx context.Context, userID shared.UserID, day time.Time) (*stats.DailyStat, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+statColumns+`
		FROM daily_stats
		WHERE user_id = $1 AND stat_date = $2
	`, userID.String(), timeutil.StartOfDay(day))

	s, err := scanStat(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStatNotFound
		}
		return nil, shared.WrapStorage("stats", "GetForDate", err)
	}
	return s, nil
}

// GetRange returns the stat rows in [from, to], oldest first.
func (r *StatsRepository) GetRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]*stats.DailyStat, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+statColumns+`
		FROM daily_stats
		WHERE user_id = $1 AND stat_date BETWEEN $2 AND $3
		ORDER BY stat_date
	`, userID.String(), timeutil.StartOfDay(from), timeutil.StartOfDay(to))
	if err != nil {
		return nil, shared.WrapStorage("stats", "GetRange", err)
	}
	defer rows.Close()

	var out []*stats.DailyStat
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, shared.WrapStorage("stats", "GetRange", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActiveWithoutActivity finds streaks at risk: users active on
// activeDay whose idleDay row is missing or still inactive.
func (r *StatsRepository) ListActiveWithoutActivity(ctx context.Context, activeDay, idleDay time.Time, limit int) ([]shared.UserID, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT y.user_id
		FROM daily_stats y
		LEFT JOIN daily_stats t
		       ON t.user_id = y.user_id AND t.stat_date = $2
		WHERE y.stat_date = $1
		  AND (y.study_minutes >= $3 OR y.completed_steps > 0)
		  AND (t.user_id IS NULL OR (t.study_minutes < $3 AND t.completed_steps = 0))
		ORDER BY y.streak_day DESC
		LIMIT $4
	`, timeutil.StartOfDay(activeDay), timeutil.StartOfDay(idleDay), stats.ActiveStudyMinutes, limit)
	if err != nil {
		return nil, shared.WrapStorage("stats", "ListActiveWithoutActivity", err)
	}
	defer rows.Close()

	var out []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, shared.WrapStorage("stats", "ListActiveWithoutActivity", err)
		}
		out = append(out, shared.UserID(id))
	}
	return out, rows.Err()
}

// ListStreaks returns the users holding a positive streak on the given day,
// longest first. Feeds the leaderboard rebuild job.
func (r *StatsRepository) ListStreaks(ctx context.Context, day time.Time, limit int) ([]stats.LeaderboardEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, streak_day
		FROM daily_stats
		WHERE stat_date = $1 AND streak_day > 0
		ORDER BY streak_day DESC
		LIMIT $2
	`, timeutil.StartOfDay(day), limit)
	if err != nil {
		return nil, shared.WrapStorage("stats", "ListStreaks", err)
	}
	defer rows.Close()

	var out []stats.LeaderboardEntry
	for rows.Next() {
		var (
			id  string
			day int
		)
		if err := rows.Scan(&id, &day); err != nil {
			return nil, shared.WrapStorage("stats", "ListStreaks", err)
		}
		out = append(out, stats.LeaderboardEntry{
			UserID:    shared.UserID(id),
			StreakDay: day,
			Rank:      len(out) + 1,
		})
	}
	return out, rows.Err()
}

func scanStat(row pgx.Row) (*stats.DailyStat, error) {
	var (
		s      stats.DailyStat
		userID string
	)
	err := row.Scan(
		&userID, &s.Date, &s.StudyMinutes, &s.CompletedSteps, &s.AiQuestions,
		&s.Searches, &s.StreakDayNumber, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.UserID = shared.UserID(userID)
	return &s, nil
}
