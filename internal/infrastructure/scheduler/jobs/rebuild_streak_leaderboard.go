package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD STREAK LEADERBOARD
// The leaderboard sorted set is updated incrementally by the streak event
// handler; this nightly job replaces it wholesale from the authoritative
// stat rows so drift never survives a day.
// ══════════════════════════════════════════════════════════════════════════════

// StreakSource lists authoritative streak standings for one day.
// Satisfied by the postgres stats repository.
type StreakSource interface {
	ListStreaks(ctx context.Context, day time.Time, limit int) ([]stats.LeaderboardEntry, error)
}

// LeaderboardRebuilder replaces the whole leaderboard.
// Satisfied by the redis streak leaderboard.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, entries []stats.LeaderboardEntry) error
}

// RebuildStreakLeaderboardJob rebuilds the streak leaderboard from storage.
type RebuildStreakLeaderboardJob struct {
	source  StreakSource
	target  LeaderboardRebuilder
	locker  JobLocker
	maxSize int
	log     *logger.Logger
}

// NewRebuildStreakLeaderboardJob creates the job. locker may be nil in
// single-instance deployments.
func NewRebuildStreakLeaderboardJob(source StreakSource, target LeaderboardRebuilder, locker JobLocker, log *logger.Logger) *RebuildStreakLeaderboardJob {
	return &RebuildStreakLeaderboardJob{
		source:  source,
		target:  target,
		locker:  locker,
		maxSize: 10_000,
		log:     log.With(logger.Component("rebuild_streak_leaderboard")),
	}
}

// Name implements scheduler.Job.
func (j *RebuildStreakLeaderboardJob) Name() string {
	return "rebuild_streak_leaderboard"
}

// Description implements scheduler.Job.
func (j *RebuildStreakLeaderboardJob) Description() string {
	return "replaces the streak leaderboard from authoritative daily stats"
}

// Run implements scheduler.Job.
func (j *RebuildStreakLeaderboardJob) Run(ctx context.Context) error {
	return withLock(ctx, j.locker, j.Name(), 5*time.Minute, j.log, j.rebuild)
}

func (j *RebuildStreakLeaderboardJob) rebuild(ctx context.Context) error {
	// Today's rows only exist for users already active today; yesterday is
	// the last complete day and holds every live streak.
	entries, err := j.source.ListStreaks(ctx, timeutil.Yesterday(), j.maxSize)
	if err != nil {
		return fmt.Errorf("list streaks: %w", err)
	}

	if err := j.target.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}

	j.log.Info("leaderboard rebuilt", logger.Int("entries", len(entries)))
	return nil
}
