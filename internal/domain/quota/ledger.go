package quota

import (
	"context"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// Ledger is the quota component: it resolves the role's daily limits and
// delegates the atomic check-and-increment to storage. The check and the
// increment are one transaction; callers never see a state where the check
// passed but the counters were not yet advanced.
type Ledger struct {
	repo Repository
}

// NewLedger creates a quota ledger on top of the given repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// CheckAndReserve reserves amount of the given kind against today's quota.
// Denial returns a *ExceededError (matches shared.ErrQuotaExceeded); any
// other error is a storage failure.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID shared.UserID, role Role, kind Kind, amount int) (*UsageQuota, error) {
	if !kind.IsValid() {
		return nil, shared.ErrInvalidKind
	}
	if amount <= 0 {
		return nil, shared.ErrInvalidAmount
	}

	req := ReserveRequest{
		UserID:       userID,
		Day:          timeutil.Today(),
		MessageLimit: LimitFor(role).Messages,
		TokenLimit:   LimitFor(role).Tokens,
	}
	switch kind {
	case KindMessage:
		req.Messages = amount
	case KindToken:
		req.Tokens = amount
	}

	return l.repo.Reserve(ctx, req)
}

// ReserveMessage reserves one AI message together with its token cost, the
// shape every AI question takes: both counters advance in one update, and
// the request is denied if either limit would be exceeded.
func (l *Ledger) ReserveMessage(ctx context.Context, userID shared.UserID, role Role, tokens int) (*UsageQuota, error) {
	if tokens < 0 {
		return nil, shared.ErrInvalidAmount
	}

	return l.repo.Reserve(ctx, ReserveRequest{
		UserID:       userID,
		Day:          timeutil.Today(),
		Messages:     1,
		Tokens:       tokens,
		MessageLimit: LimitFor(role).Messages,
		TokenLimit:   LimitFor(role).Tokens,
	})
}

// TodayUsage returns today's usage row, or an empty row when the user has
// not used the assistant yet today.
func (l *Ledger) TodayUsage(ctx context.Context, userID shared.UserID) (*UsageQuota, error) {
	day := timeutil.Today()
	q, err := l.repo.GetForDate(ctx, userID, day)
	if err != nil {
		if shared.IsNotFound(err) {
			now := time.Now()
			return NewUsageQuota(userID, day, now), nil
		}
		return nil, err
	}
	return q, nil
}

// Status is the derived quota view exposed to callers.
type Status struct {
	UserID            shared.UserID
	Day               time.Time
	Role              Role
	MessageCount      int
	TokenCount        int
	RemainingMessages int
	RemainingTokens   int
	MessagePercent    float64
	TokenPercent      float64
	Summary           string
	Unlimited         bool
}

// StatusFor assembles the derived quota view for a user and role.
func (l *Ledger) StatusFor(ctx context.Context, userID shared.UserID, role Role) (*Status, error) {
	q, err := l.TodayUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Status{
		UserID:            userID,
		Day:               q.Date,
		Role:              role,
		MessageCount:      q.MessageCount,
		TokenCount:        q.TokenCount,
		RemainingMessages: q.RemainingMessages(role),
		RemainingTokens:   q.RemainingTokens(role),
		MessagePercent:    q.MessageUsagePercent(role),
		TokenPercent:      q.TokenUsagePercent(role),
		Summary:           q.LimitSummary(role),
		Unlimited:         LimitFor(role).IsUnlimited(),
	}, nil
}
