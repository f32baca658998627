// Package jobs contains the engine's scheduled jobs. Each job takes a
// distributed lock before running so only one worker instance executes a
// sweep, and each is registered on the scheduler by the worker binary.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/notification"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// JobLocker serializes a job across worker instances. Satisfied by the
// redis cache.
type JobLocker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// withLock runs fn under the named lock, skipping silently when another
// worker holds it. A nil locker runs fn directly.
func withLock(ctx context.Context, locker JobLocker, name string, ttl time.Duration, log *logger.Logger, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}

	ok, err := locker.AcquireLock(ctx, name, ttl)
	if err != nil {
		// A broken lock service must not stop the sweep entirely.
		log.Warn("lock acquire failed, running unlocked", logger.Err(err))
		return fn(ctx)
	}
	if !ok {
		log.Debug("another worker holds the lock, skipping")
		return nil
	}
	defer func() {
		if err := locker.ReleaseLock(ctx, name); err != nil {
			log.Warn("lock release failed", logger.Err(err))
		}
	}()

	return fn(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// DETECT IDLE STREAKS
// Evening sweep: find users who were active yesterday but have not been
// active today and warn them before midnight breaks the streak.
// ══════════════════════════════════════════════════════════════════════════════

// DetectIdleStreaksJob sends streak-at-risk reminders.
type DetectIdleStreaksJob struct {
	stats     stats.Repository
	sender    notification.Sender
	locker    JobLocker
	batchSize int
	now       func() time.Time
	log       *logger.Logger
}

// NewDetectIdleStreaksJob creates the job. locker may be nil in
// single-instance deployments.
func NewDetectIdleStreaksJob(statsRepo stats.Repository, sender notification.Sender, locker JobLocker, log *logger.Logger) *DetectIdleStreaksJob {
	return &DetectIdleStreaksJob{
		stats:     statsRepo,
		sender:    sender,
		locker:    locker,
		batchSize: 500,
		now:       timeutil.Now,
		log:       log.With(logger.Component("detect_idle_streaks")),
	}
}

// Name implements scheduler.Job.
func (j *DetectIdleStreaksJob) Name() string {
	return "detect_idle_streaks"
}

// Description implements scheduler.Job.
func (j *DetectIdleStreaksJob) Description() string {
	return "warns users whose streak is at risk of breaking at midnight"
}

// Run implements scheduler.Job.
func (j *DetectIdleStreaksJob) Run(ctx context.Context) error {
	if !timeutil.IsReminderWindow(j.now()) {
		j.log.Debug("outside reminder window, skipping sweep")
		return nil
	}

	return withLock(ctx, j.locker, j.Name(), 10*time.Minute, j.log, j.sweep)
}

func (j *DetectIdleStreaksJob) sweep(ctx context.Context) error {
	yesterday := timeutil.Yesterday()
	today := timeutil.Today()

	users, err := j.stats.ListActiveWithoutActivity(ctx, yesterday, today, j.batchSize)
	if err != nil {
		return fmt.Errorf("list idle streaks: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	j.log.Info("streaks at risk", logger.Int("users", len(users)))

	var sent, failed int
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := j.sender.Send(ctx, j.reminder(ctx, userID)); err != nil {
			failed++
			j.log.Warn("reminder failed", logger.UserID(userID.String()), logger.Err(err))
			continue
		}
		sent++
	}

	j.log.Info("reminder sweep finished",
		logger.Int("sent", sent),
		logger.Int("failed", failed),
	)
	if failed > 0 && sent == 0 {
		return fmt.Errorf("reminder sweep: all %d sends failed", failed)
	}
	return nil
}

func (j *DetectIdleStreaksJob) reminder(ctx context.Context, userID shared.UserID) *notification.Notification {
	title := "Your streak is at risk"
	body := "You haven't studied today. A short session before midnight keeps your streak alive."

	n := notification.New(userID, notification.TypeStreakReminder, title, body)

	// Enrich with the current streak length when the row is available.
	if stat, err := j.stats.GetForDate(ctx, userID, timeutil.Yesterday()); err == nil && stat.HasStreak() {
		n.WithData("streak_day", stat.StreakDayNumber)
		n.Body = fmt.Sprintf("Your %d-day streak ends at midnight. A short session today keeps it alive.", stat.StreakDayNumber)
	}
	return n
}
