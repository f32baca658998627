package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// AuditLogRepository implements activity.AuditLog on the append-only
// activity_log table.
type AuditLogRepository struct {
	conn *Connection
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(conn *Connection) *AuditLogRepository {
	return &AuditLogRepository{conn: conn}
}

const auditColumns = `
	user_id, activity_type, target_id, target_type, roadmap_id,
	duration_minutes, token_count, metadata, occurred_at`

// Append stores one routed activity.
func (r *AuditLogRepository) Append(ctx context.Context, act activity.Activity) error {
	meta, err := marshalMetadata(act.Metadata)
	if err != nil {
		return shared.WrapStorage("activity", "Append", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO activity_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, act.UserID.String(), act.Type.String(), act.TargetID, string(act.TargetType),
		act.RoadmapID.String(), act.DurationMinutes, act.TokenCount, meta, act.Timestamp)
	if err != nil {
		return shared.WrapStorage("activity", "Append", err)
	}
	return nil
}

// ListByUser returns the most recent activities for a user, newest first.
func (r *AuditLogRepository) ListByUser(ctx context.Context, userID shared.UserID, limit int) ([]activity.Activity, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+auditColumns+`
		FROM activity_log
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, shared.WrapStorage("activity", "ListByUser", err)
	}
	return collectActivities(rows, "ListByUser")
}

// ListByUserAndDay returns a user's activities for one calendar day,
// oldest first.
func (r *AuditLogRepository) ListByUserAndDay(ctx context.Context, userID shared.UserID, day time.Time) ([]activity.Activity, error) {
	start := timeutil.StartOfDay(day)
	rows, err := r.conn.Query(ctx, `
		SELECT `+auditColumns+`
		FROM activity_log
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at
	`, userID.String(), start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, shared.WrapStorage("activity", "ListByUserAndDay", err)
	}
	return collectActivities(rows, "ListByUserAndDay")
}

func collectActivities(rows pgx.Rows, op string) ([]activity.Activity, error) {
	defer rows.Close()

	var out []activity.Activity
	for rows.Next() {
		var (
			act        activity.Activity
			userID     string
			actType    string
			targetType string
			roadmapID  string
			meta       []byte
		)
		err := rows.Scan(
			&userID, &actType, &act.TargetID, &targetType, &roadmapID,
			&act.DurationMinutes, &act.TokenCount, &meta, &act.Timestamp,
		)
		if err != nil {
			return nil, shared.WrapStorage("activity", op, err)
		}
		act.UserID = shared.UserID(userID)
		act.Type = activity.Type(actType)
		act.TargetType = activity.TargetType(targetType)
		act.RoadmapID = shared.RoadmapID(roadmapID)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &act.Metadata); err != nil {
				return nil, shared.WrapStorage("activity", op, fmt.Errorf("decode metadata: %w", err))
			}
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
