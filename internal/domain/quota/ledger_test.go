package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

const testUser = shared.UserID("8f14e45f-ceea-4670-b1a8-d0f8f1e6a001")

// memQuotaRepo is an in-memory Repository with the same serialization
// guarantee a row lock gives: Reserve is atomic per (user, day).
type memQuotaRepo struct {
	mu   sync.Mutex
	rows map[string]*UsageQuota
}

func newMemQuotaRepo() *memQuotaRepo {
	return &memQuotaRepo{rows: make(map[string]*UsageQuota)}
}

func quotaKey(userID shared.UserID, day time.Time) string {
	return userID.String() + "|" + day.Format("2006-01-02")
}

func (r *memQuotaRepo) Reserve(_ context.Context, req ReserveRequest) (*UsageQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := quotaKey(req.UserID, req.Day)
	row, ok := r.rows[key]
	if !ok {
		row = NewUsageQuota(req.UserID, req.Day, time.Now())
		r.rows[key] = row
	}

	if req.MessageLimit != Unlimited && row.MessageCount+req.Messages > req.MessageLimit {
		return nil, &ExceededError{
			UserID: req.UserID, Day: req.Day, Kind: KindMessage,
			Limit: req.MessageLimit, Used: row.MessageCount, Requested: req.Messages,
		}
	}
	if req.TokenLimit != Unlimited && row.TokenCount+req.Tokens > req.TokenLimit {
		return nil, &ExceededError{
			UserID: req.UserID, Day: req.Day, Kind: KindToken,
			Limit: req.TokenLimit, Used: row.TokenCount, Requested: req.Tokens,
		}
	}

	row.AddUsage(req.Messages, req.Tokens, time.Now())
	cp := *row
	return &cp, nil
}

func (r *memQuotaRepo) GetForDate(_ context.Context, userID shared.UserID, day time.Time) (*UsageQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[quotaKey(userID, day)]
	if !ok {
		return nil, shared.ErrQuotaNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memQuotaRepo) GetRange(_ context.Context, userID shared.UserID, from, to time.Time) ([]*UsageQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*UsageQuota
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if row, ok := r.rows[quotaKey(userID, d)]; ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestLimitTable(t *testing.T) {
	tests := []struct {
		role     Role
		messages int
		tokens   int
	}{
		{RoleGuest, 0, 0},
		{RoleFreeMember, 10, 50_000},
		{RolePremiumMember, 100, 500_000},
		{RoleMentor, 200, 1_000_000},
		{RoleAdmin, Unlimited, Unlimited},
		{RoleSuperAdmin, Unlimited, Unlimited},
	}
	for _, tt := range tests {
		limit := LimitFor(tt.role)
		assert.Equal(t, tt.messages, limit.Messages, "messages for %s", tt.role)
		assert.Equal(t, tt.tokens, limit.Tokens, "tokens for %s", tt.role)
	}
}

func TestRoleAuthority(t *testing.T) {
	assert.True(t, RoleMentor.HasAuthorityOf(RoleFreeMember))
	assert.True(t, RoleAdmin.HasAuthorityOf(RoleAdmin))
	assert.False(t, RoleGuest.HasAuthorityOf(RoleFreeMember))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Premium_Member ")
	require.NoError(t, err)
	assert.Equal(t, RolePremiumMember, r)

	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCheckAndReserve_FreeMemberMessageBoundary(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemQuotaRepo())

	// Nine prior messages today.
	for i := 0; i < 9; i++ {
		_, err := ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindMessage, 1)
		require.NoError(t, err)
	}

	// The tenth message still fits, even with a token cost attached.
	q, err := ledger.ReserveMessage(ctx, testUser, RoleFreeMember, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, q.MessageCount)
	assert.Equal(t, 2, q.TokenCount)

	// The eleventh is denied.
	_, err = ledger.ReserveMessage(ctx, testUser, RoleFreeMember, 2)
	require.Error(t, err)
	assert.True(t, shared.IsQuotaExceeded(err))

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, KindMessage, exceeded.Kind)
	assert.Equal(t, 0, exceeded.Remaining())
}

func TestCheckAndReserve_GuestAlwaysDenied(t *testing.T) {
	ledger := NewLedger(newMemQuotaRepo())

	_, err := ledger.CheckAndReserve(context.Background(), testUser, RoleGuest, KindMessage, 1)
	assert.True(t, shared.IsQuotaExceeded(err))
}

func TestCheckAndReserve_AdminUnlimited(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemQuotaRepo())

	q, err := ledger.ReserveMessage(ctx, testUser, RoleAdmin, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, 1, q.MessageCount)
	assert.Equal(t, Unlimited, q.RemainingMessages(RoleAdmin))
	assert.Equal(t, "unlimited", q.LimitSummary(RoleAdmin))
}

func TestCheckAndReserve_TokenLimit(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemQuotaRepo())

	_, err := ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindToken, 49_999)
	require.NoError(t, err)

	// One token left; two requested.
	_, err = ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindToken, 2)
	require.Error(t, err)

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, KindToken, exceeded.Kind)
	assert.Equal(t, 1, exceeded.Remaining())

	// The last token still fits.
	_, err = ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindToken, 1)
	assert.NoError(t, err)
}

func TestCheckAndReserve_NeverExceedsLimit(t *testing.T) {
	// Property from the design: after any call sequence the counters stay
	// within the role's limits, because denial precedes the increment.
	ctx := context.Background()
	repo := newMemQuotaRepo()
	ledger := NewLedger(repo)

	for i := 0; i < 40; i++ {
		_, _ = ledger.ReserveMessage(ctx, testUser, RoleFreeMember, 7_000)
	}

	q, err := ledger.TodayUsage(ctx, testUser)
	require.NoError(t, err)
	assert.LessOrEqual(t, q.MessageCount, 10)
	assert.LessOrEqual(t, q.TokenCount, 50_000)
}

func TestCheckAndReserve_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemQuotaRepo())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindMessage, 1)
		}()
	}
	wg.Wait()

	q, err := ledger.TodayUsage(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 10, q.MessageCount)
}

func TestUsagePercent(t *testing.T) {
	q := NewUsageQuota(testUser, time.Now(), time.Now())
	q.AddUsage(5, 25_000, time.Now())

	assert.InDelta(t, 50.0, q.MessageUsagePercent(RoleFreeMember), 0.001)
	assert.InDelta(t, 50.0, q.TokenUsagePercent(RoleFreeMember), 0.001)

	// Over-limit history caps at 100.
	q.AddUsage(100, 0, time.Now())
	assert.Equal(t, 100.0, q.MessageUsagePercent(RoleFreeMember))

	// Zero-limit and unlimited roles report zero.
	assert.Equal(t, 0.0, q.MessageUsagePercent(RoleGuest))
	assert.Equal(t, 0.0, q.MessageUsagePercent(RoleAdmin))
}

func TestLimitSummary(t *testing.T) {
	q := NewUsageQuota(testUser, time.Now(), time.Now())
	q.AddUsage(3, 1_200, time.Now())

	assert.Equal(t, "messages: 3/10, tokens: 1200/50000", q.LimitSummary(RoleFreeMember))
}

func TestStatusFor(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemQuotaRepo())

	_, err := ledger.ReserveMessage(ctx, testUser, RoleFreeMember, 500)
	require.NoError(t, err)

	st, err := ledger.StatusFor(ctx, testUser, RoleFreeMember)
	require.NoError(t, err)
	assert.Equal(t, 1, st.MessageCount)
	assert.Equal(t, 9, st.RemainingMessages)
	assert.Equal(t, 49_500, st.RemainingTokens)
	assert.False(t, st.Unlimited)
}

func TestStatusFor_NoUsageYet(t *testing.T) {
	ledger := NewLedger(newMemQuotaRepo())

	st, err := ledger.StatusFor(context.Background(), testUser, RolePremiumMember)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MessageCount)
	assert.Equal(t, 100, st.RemainingMessages)
}

func TestInvalidInputs(t *testing.T) {
	ledger := NewLedger(newMemQuotaRepo())
	ctx := context.Background()

	_, err := ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, Kind("bogus"), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = ledger.CheckAndReserve(ctx, testUser, RoleFreeMember, KindMessage, 0)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = ledger.ReserveMessage(ctx, testUser, RoleFreeMember, -1)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}
