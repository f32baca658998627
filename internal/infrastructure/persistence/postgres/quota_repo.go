package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA REPOSITORY IMPLEMENTATION
// Reserve is the check-then-act critical section: the per-(user, day)
// row is locked FOR UPDATE so two concurrent requests cannot both pass
// a check that only one of them can satisfy.
// ══════════════════════════════════════════════════════════════════════════════

// QuotaRepository implements quota.Repository for PostgreSQL.
type QuotaRepository struct {
	conn *Connection
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(conn *Connection) *QuotaRepository {
	return &QuotaRepository{conn: conn}
}

// Reserve checks the request against its limits and applies the usage
// increments as one transaction. The row is created lazily on first use.
func (r *QuotaRepository) Reserve(ctx context.Context, req quota.ReserveRequest) (*quota.UsageQuota, error) {
	day := timeutil.StartOfDay(req.Day)
	var out *quota.UsageQuota

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO usage_quotas (user_id, usage_date)
			VALUES ($1, $2)
			ON CONFLICT (user_id, usage_date) DO NOTHING
		`, req.UserID.String(), day)
		if err != nil {
			return fmt.Errorf("lazy insert: %w", err)
		}

		row := tx.QueryRow(ctx, `
			SELECT message_count, token_count, created_at, updated_at
			FROM usage_quotas
			WHERE user_id = $1 AND usage_date = $2
			FOR UPDATE
		`, req.UserID.String(), day)

		q := &quota.UsageQuota{UserID: req.UserID, Date: day}
		if err := row.Scan(&q.MessageCount, &q.TokenCount, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return fmt.Errorf("lock row: %w", err)
		}

		if req.MessageLimit != quota.Unlimited && q.MessageCount+req.Messages > req.MessageLimit {
			return &quota.ExceededError{
				UserID: req.UserID, Day: day, Kind: quota.KindMessage,
				Limit: req.MessageLimit, Used: q.MessageCount, Requested: req.Messages,
			}
		}
		if req.TokenLimit != quota.Unlimited && q.TokenCount+req.Tokens > req.TokenLimit {
			return &quota.ExceededError{
				UserID: req.UserID, Day: day, Kind: quota.KindToken,
				Limit: req.TokenLimit, Used: q.TokenCount, Requested: req.Tokens,
			}
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `
			UPDATE usage_quotas
			SET message_count = message_count + $3,
			    token_count   = token_count + $4,
			    updated_at    = $5
			WHERE user_id = $1 AND usage_date = $2
		`, req.UserID.String(), day, req.Messages, req.Tokens, now)
		if err != nil {
			return fmt.Errorf("apply usage: %w", err)
		}

		q.AddUsage(req.Messages, req.Tokens, now)
		out = q
		return nil
	})
	if err != nil {
		if shared.IsQuotaExceeded(err) {
			return nil, err
		}
		return nil, shared.WrapStorage("quota", "Reserve", err)
	}
	return out, nil
}

// GetForDate returns the usage row for one day.
func (r *QuotaRepository) GetForDate(ctx context.Context, userID shared.UserID, day time.Time) (*quota.UsageQuota, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT message_count, token_count, created_at, updated_at
		FROM usage_quotas
		WHERE user_id = $1 AND usage_date = $2
	`, userID.String(), timeutil.StartOfDay(day))

	q := &quota.UsageQuota{UserID: userID, Date: timeutil.StartOfDay(day)}
	if err := row.Scan(&q.MessageCount, &q.TokenCount, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuotaNotFound
		}
		return nil, shared.WrapStorage("quota", "GetForDate", err)
	}
	return q, nil
}

// GetRange returns the usage rows in [from, to], oldest first.
func (r *QuotaRepository) GetRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]*quota.UsageQuota, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT usage_date, message_count, token_count, created_at, updated_at
		FROM usage_quotas
		WHERE user_id = $1 AND usage_date BETWEEN $2 AND $3
		ORDER BY usage_date
	`, userID.String(), timeutil.StartOfDay(from), timeutil.StartOfDay(to))
	if err != nil {
		return nil, shared.WrapStorage("quota", "GetRange", err)
	}
	defer rows.Close()

	var out []*quota.UsageQuota
	for rows.Next() {
		q := &quota.UsageQuota{UserID: userID}
		if err := rows.Scan(&q.Date, &q.MessageCount, &q.TokenCount, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, shared.WrapStorage("quota", "GetRange", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
