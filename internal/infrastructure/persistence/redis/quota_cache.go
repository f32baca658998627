package redis

import (
	"context"
	"errors"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA SNAPSHOT CACHE
// Holds the derived quota status for the dashboard and the /quota endpoint.
// The snapshot keys include the day so rows expire naturally at the day
// boundary even before the TTL does. Params never short-circuit the ledger:
// a reserve decision always goes to PostgreSQL.
// ══════════════════════════════════════════════════════════════════════════════

// quotaSnapshot is the stored wire form of quota.Status.
type quotaSnapshot struct {
	UserID            string    `json:"user_id"`
	Day               time.Time `json:"day"`
	Role              string    `json:"role"`
	MessageCount      int       `json:"message_count"`
	TokenCount        int       `json:"token_count"`
	RemainingMessages int       `json:"remaining_messages"`
	RemainingTokens   int       `json:"remaining_tokens"`
	MessagePercent    float64   `json:"message_percent"`
	TokenPercent      float64   `json:"token_percent"`
	Summary           string    `json:"summary"`
	Unlimited         bool      `json:"unlimited"`
}

// QuotaCache caches quota.Status snapshots with a short TTL.
type QuotaCache struct {
	cache *Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewQuotaCache creates a QuotaCache with the default snapshot TTL.
func NewQuotaCache(cache *Cache, log *logger.Logger) *QuotaCache {
	return &QuotaCache{
		cache: cache,
		ttl:   TTLQuotaSnapshot,
		log:   log.With(logger.Component("quota_cache")),
	}
}

// GetStatus returns the cached snapshot for today, or nil on miss.
// Cache errors degrade to a miss; the caller falls back to the ledger.
func (c *QuotaCache) GetStatus(ctx context.Context, userID shared.UserID) *quota.Status {
	key := QuotaKey(userID.String(), timeutil.DayKey(timeutil.Today()))

	var snap quotaSnapshot
	if err := c.cache.Get(ctx, key, &snap); err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("quota snapshot read failed", logger.Err(err))
		}
		return nil
	}

	return &quota.Status{
		UserID:            shared.UserID(snap.UserID),
		Day:               snap.Day,
		Role:              quota.Role(snap.Role),
		MessageCount:      snap.MessageCount,
		TokenCount:        snap.TokenCount,
		RemainingMessages: snap.RemainingMessages,
		RemainingTokens:   snap.RemainingTokens,
		MessagePercent:    snap.MessagePercent,
		TokenPercent:      snap.TokenPercent,
		Summary:           snap.Summary,
		Unlimited:         snap.Unlimited,
	}
}

// SetStatus stores a fresh snapshot. Failures are logged, never surfaced.
func (c *QuotaCache) SetStatus(ctx context.Context, status *quota.Status) {
	if status == nil {
		return
	}
	key := QuotaKey(status.UserID.String(), timeutil.DayKey(status.Day))

	snap := quotaSnapshot{
		UserID:            status.UserID.String(),
		Day:               status.Day,
		Role:              string(status.Role),
		MessageCount:      status.MessageCount,
		TokenCount:        status.TokenCount,
		RemainingMessages: status.RemainingMessages,
		RemainingTokens:   status.RemainingTokens,
		MessagePercent:    status.MessagePercent,
		TokenPercent:      status.TokenPercent,
		Summary:           status.Summary,
		Unlimited:         status.Unlimited,
	}
	if err := c.cache.Set(ctx, key, snap, c.ttl); err != nil {
		c.log.Warn("quota snapshot write failed", logger.Err(err))
	}
}

// Invalidate drops the snapshot after a reserve changed the counters.
func (c *QuotaCache) Invalidate(ctx context.Context, userID shared.UserID) {
	key := QuotaKey(userID.String(), timeutil.DayKey(timeutil.Today()))
	if err := c.cache.Delete(ctx, key); err != nil {
		c.log.Warn("quota snapshot invalidate failed", logger.Err(err))
	}
}
