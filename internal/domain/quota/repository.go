package quota

import (
	"context"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// ReserveRequest asks storage to atomically check and consume daily usage.
// Limits are resolved by the ledger before the call; storage only has to
// enforce them inside its transaction.
type ReserveRequest struct {
	UserID shared.UserID
	Day    time.Time

	// Deltas applied on success. A reservation may move both counters
	// (an AI message and its token cost are one logical update).
	Messages int
	Tokens   int

	// Limits enforced inside the transaction. Unlimited disables the check.
	MessageLimit int
	TokenLimit   int
}

// Repository persists usage quotas.
//
// Reserve must be atomic per (user, day): implementations lock the row (or
// use an equivalent optimistic scheme) so two concurrent requests cannot
// both pass a check only one of them can satisfy. On denial it returns a
// *ExceededError and leaves the row untouched.
type Repository interface {
	// Reserve checks limits and applies the deltas as a single unit,
	// creating the day's row lazily. Returns the updated row.
	Reserve(ctx context.Context, req ReserveRequest) (*UsageQuota, error)

	// GetForDate returns the usage row for a day, or shared.ErrNotFound
	// (wrapped) when the user has no usage that day.
	GetForDate(ctx context.Context, userID shared.UserID, day time.Time) (*UsageQuota, error)

	// GetRange returns usage rows in [from, to], oldest first. Days with
	// no usage have no row.
	GetRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]*UsageQuota, error)
}

// RoleProvider resolves a user's current role. Identity is an external
// collaborator; the engine never stores roles itself.
type RoleProvider interface {
	RoleOf(ctx context.Context, userID shared.UserID) (Role, error)
}
