package quota

import (
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// Kind selects which counter a reservation is checked against.
type Kind string

const (
	KindMessage Kind = "message"
	KindToken   Kind = "token"
)

// IsValid checks whether the kind is known.
func (k Kind) IsValid() bool {
	return k == KindMessage || k == KindToken
}

// UsageQuota tracks one user's AI usage for one calendar day. Rows are
// created lazily on first use and never deleted; history feeds analytics.
type UsageQuota struct {
	UserID shared.UserID

	// Date is the start of the calendar day (KST) this row covers.
	Date time.Time

	MessageCount int
	TokenCount   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUsageQuota creates an empty usage row for the given user and day.
func NewUsageQuota(userID shared.UserID, day time.Time, now time.Time) *UsageQuota {
	return &UsageQuota{
		UserID:    userID,
		Date:      day,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch stamps UpdatedAt. Every mutator goes through here.
func (q *UsageQuota) touch(now time.Time) {
	q.UpdatedAt = now
}

// AddUsage advances both counters as one logical update.
func (q *UsageQuota) AddUsage(messages, tokens int, now time.Time) {
	q.MessageCount += messages
	q.TokenCount += tokens
	q.touch(now)
}

// usedFor returns the counter matching the kind.
func (q *UsageQuota) usedFor(kind Kind) int {
	if kind == KindToken {
		return q.TokenCount
	}
	return q.MessageCount
}

// limitFor returns the limit matching the kind.
func limitFor(limit DailyLimit, kind Kind) int {
	if kind == KindToken {
		return limit.Tokens
	}
	return limit.Messages
}

// CheckReserve verifies that reserving amount of the given kind stays within
// the role's limit. Returns a *ExceededError on denial.
func (q *UsageQuota) CheckReserve(role Role, kind Kind, amount int) error {
	if !kind.IsValid() {
		return shared.ErrInvalidKind
	}
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	limit := LimitFor(role)
	if limit.IsUnlimited() {
		return nil
	}
	bound := limitFor(limit, kind)
	used := q.usedFor(kind)
	if used+amount > bound {
		return &ExceededError{
			UserID:    q.UserID,
			Day:       q.Date,
			Kind:      kind,
			Limit:     bound,
			Used:      used,
			Requested: amount,
		}
	}
	return nil
}

// RemainingMessages returns how many messages the role may still send today.
func (q *UsageQuota) RemainingMessages(role Role) int {
	return remaining(LimitFor(role).Messages, q.MessageCount)
}

// RemainingTokens returns how many tokens the role may still spend today.
func (q *UsageQuota) RemainingTokens(role Role) int {
	return remaining(LimitFor(role).Tokens, q.TokenCount)
}

func remaining(limit, used int) int {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// MessageUsagePercent returns message usage as a percentage, capped at 100.
// Unlimited and zero-limit roles report 0.
func (q *UsageQuota) MessageUsagePercent(role Role) float64 {
	return usagePercent(LimitFor(role).Messages, q.MessageCount)
}

// TokenUsagePercent returns token usage as a percentage, capped at 100.
func (q *UsageQuota) TokenUsagePercent(role Role) float64 {
	return usagePercent(LimitFor(role).Tokens, q.TokenCount)
}

func usagePercent(limit, used int) float64 {
	if limit == 0 || limit == Unlimited {
		return 0
	}
	pct := float64(used) / float64(limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// LimitSummary renders a human-readable usage summary for the role.
func (q *UsageQuota) LimitSummary(role Role) string {
	limit := LimitFor(role)
	if limit.IsUnlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("messages: %d/%d, tokens: %d/%d",
		q.MessageCount, limit.Messages, q.TokenCount, limit.Tokens)
}

// ExceededError is the recoverable, user-facing quota denial. It carries
// the remaining allowance so callers can render a helpful message.
type ExceededError struct {
	UserID    shared.UserID
	Day       time.Time
	Kind      Kind
	Limit     int
	Used      int
	Requested int
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota.Reserve: daily %s limit exceeded for user %s: used %d of %d, requested %d",
		e.Kind, e.UserID, e.Used, e.Limit, e.Requested)
}

// Is makes errors.Is(err, shared.ErrQuotaExceeded) work.
func (e *ExceededError) Is(target error) bool {
	return target == shared.ErrQuotaExceeded
}

// Remaining returns the allowance left before the denial.
func (e *ExceededError) Remaining() int {
	if e.Used >= e.Limit {
		return 0
	}
	return e.Limit - e.Used
}
