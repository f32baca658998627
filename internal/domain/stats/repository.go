package stats

import (
	"context"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores daily stat rows, one per (user, calendar day).
//
// Apply must run as one atomic unit per row: resolve-or-create the day's
// row, apply the activity's counters, and report whether this very call
// flipped the day from inactive to active. Concurrent applies for the
// same (user, day) must serialize so counter increments are never lost.
type Repository interface {
	// Apply folds one activity into the user's stat row for the given
	// day, creating the row on first use. becameActive is true only for
	// the single call that transitioned the day into the active state.
	Apply(ctx context.Context, userID shared.UserID, day time.Time, a activity.Activity) (updated *DailyStat, becameActive bool, err error)

	// SetStreakDay writes the streak day number onto an existing row.
	// Returns shared.ErrStatNotFound if the row does not exist.
	SetStreakDay(ctx context.Context, userID shared.UserID, day time.Time, streakDay int) error

	// GetForDate returns the stat row for a day, or shared.ErrStatNotFound.
	GetForDate(ctx context.Context, userID shared.UserID, day time.Time) (*DailyStat, error)

	// GetRange returns the rows with dates in [from, to], ordered by
	// date ascending. Days without activity have no row.
	GetRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]*DailyStat, error)

	// ListActiveWithoutActivity returns the users whose given day row is
	// missing or still inactive while the previous day was active. Used
	// by the streak reminder job.
	ListActiveWithoutActivity(ctx context.Context, activeDay, idleDay time.Time, limit int) ([]shared.UserID, error)
}

// LeaderboardEntry is one row of the streak leaderboard.
type LeaderboardEntry struct {
	UserID    shared.UserID
	StreakDay int
	Rank      int
}

// Leaderboard ranks users by their current streak length.
type Leaderboard interface {
	// SetStreak records a user's current streak day.
	SetStreak(ctx context.Context, userID shared.UserID, streakDay int) error

	// Remove drops a user whose streak broke.
	Remove(ctx context.Context, userID shared.UserID) error

	// Top returns the longest current streaks, best first.
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// Rank returns a user's position, or shared.ErrNotFound.
	Rank(ctx context.Context, userID shared.UserID) (*LeaderboardEntry, error)
}
