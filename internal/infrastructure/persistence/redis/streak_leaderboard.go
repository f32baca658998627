package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK LEADERBOARD
// A single sorted set: member = user id, score = current streak day.
// Updated by the streak event handler on every streak write and rebuilt
// nightly by the scheduler, so a lost update self-heals within a day.
// ══════════════════════════════════════════════════════════════════════════════

// StreakLeaderboard implements stats.Leaderboard on a Redis sorted set.
type StreakLeaderboard struct {
	cache *Cache
}

// NewStreakLeaderboard creates a StreakLeaderboard.
func NewStreakLeaderboard(cache *Cache) *StreakLeaderboard {
	return &StreakLeaderboard{cache: cache}
}

// SetStreak records a user's current streak day.
func (l *StreakLeaderboard) SetStreak(ctx context.Context, userID shared.UserID, streakDay int) error {
	if streakDay <= 0 {
		return l.Remove(ctx, userID)
	}

	err := l.cache.Client().ZAdd(ctx, StreakLeaderboardKey(), redis.Z{
		Score:  float64(streakDay),
		Member: userID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("leaderboard: set streak: %w", err)
	}
	return nil
}

// Remove drops a user whose streak broke.
func (l *StreakLeaderboard) Remove(ctx context.Context, userID shared.UserID) error {
	err := l.cache.Client().ZRem(ctx, StreakLeaderboardKey(), userID.String()).Err()
	if err != nil {
		return fmt.Errorf("leaderboard: remove: %w", err)
	}
	return nil
}

// Top returns the longest current streaks, best first.
func (l *StreakLeaderboard) Top(ctx context.Context, limit int) ([]stats.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	members, err := l.cache.Client().ZRevRangeWithScores(ctx, StreakLeaderboardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: top: %w", err)
	}

	entries := make([]stats.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, stats.LeaderboardEntry{
			UserID:    shared.UserID(id),
			StreakDay: int(m.Score),
			Rank:      i + 1,
		})
	}
	return entries, nil
}

// Rank returns a user's position, or shared.ErrNotFound.
func (l *StreakLeaderboard) Rank(ctx context.Context, userID shared.UserID) (*stats.LeaderboardEntry, error) {
	client := l.cache.Client()
	key := StreakLeaderboardKey()

	// ZRevRank is 0-based, 0 = longest streak.
	rank, err := client.ZRevRank(ctx, key, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("leaderboard: rank: %w", err)
	}

	score, err := client.ZScore(ctx, key, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("leaderboard: rank score: %w", err)
	}

	return &stats.LeaderboardEntry{
		UserID:    userID,
		StreakDay: int(score),
		Rank:      int(rank) + 1,
	}, nil
}

// Rebuild replaces the whole set from authoritative streak rows. Used by
// the nightly scheduler job.
func (l *StreakLeaderboard) Rebuild(ctx context.Context, entries []stats.LeaderboardEntry) error {
	key := StreakLeaderboardKey()
	pipe := l.cache.Client().TxPipeline()

	pipe.Del(ctx, key)
	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		for _, e := range entries {
			if e.StreakDay <= 0 {
				continue
			}
			members = append(members, redis.Z{
				Score:  float64(e.StreakDay),
				Member: e.UserID.String(),
			})
		}
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard: rebuild: %w", err)
	}
	return nil
}
