package activity

import (
	"context"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// AuditLog persists routed activities for history and analytics. The engine
// only appends; nothing in the aggregation pipeline reads these rows back.
type AuditLog interface {
	// Append stores an activity after routing. Failures are logged and do
	// not abort the request.
	Append(ctx context.Context, act Activity) error

	// ListByUser returns the most recent activities for a user, newest first.
	ListByUser(ctx context.Context, userID shared.UserID, limit int) ([]Activity, error)

	// ListByUserAndDay returns a user's activities for one calendar day.
	ListByUserAndDay(ctx context.Context, userID shared.UserID, day time.Time) ([]Activity, error)
}
