package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON QUOTA CONSUMED
// Drops the cached quota snapshot after a reservation so the next
// status read reflects the new counters.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotInvalidator drops a user's cached quota snapshot. Satisfied
// by the redis quota cache.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, userID shared.UserID)
}

// OnQuotaConsumed keeps the quota cache from serving stale counters.
type OnQuotaConsumed struct {
	cache   SnapshotInvalidator
	log     *logger.Logger
	timeout time.Duration
}

// NewOnQuotaConsumed creates the handler.
func NewOnQuotaConsumed(cache SnapshotInvalidator, log *logger.Logger) *OnQuotaConsumed {
	return &OnQuotaConsumed{
		cache:   cache,
		log:     log.With(logger.Component("on_quota_consumed")),
		timeout: 5 * time.Second,
	}
}

// Name implements shared.EventHandler.
func (h *OnQuotaConsumed) Name() string {
	return "on_quota_consumed"
}

// Handle implements shared.EventHandler.
func (h *OnQuotaConsumed) Handle(event shared.Event) error {
	e, ok := event.(shared.QuotaConsumedEvent)
	if !ok {
		return nil
	}

	userID, err := shared.NewUserID(e.UserID)
	if err != nil {
		return fmt.Errorf("on_quota_consumed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.cache.Invalidate(ctx, userID)
	return nil
}
