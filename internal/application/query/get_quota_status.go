package query

import (
	"context"
	"fmt"

	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET QUOTA STATUS QUERY
// Returns the user's AI usage for today against their role limits.
// ══════════════════════════════════════════════════════════════════════════════

// GetQuotaStatusQuery contains the quota status request parameters.
type GetQuotaStatusQuery struct {
	// UserID identifies the user (UUID).
	UserID string
}

// QuotaStatusDTO is the quota view returned to callers.
type QuotaStatusDTO struct {
	UserID            string  `json:"user_id"`
	Day               string  `json:"day"`
	Role              string  `json:"role"`
	MessagesUsed      int     `json:"messages_used"`
	TokensUsed        int     `json:"tokens_used"`
	RemainingMessages int     `json:"remaining_messages"`
	RemainingTokens   int     `json:"remaining_tokens"`
	MessagePercent    float64 `json:"message_percent"`
	TokenPercent      float64 `json:"token_percent"`
	Summary           string  `json:"summary"`
	Unlimited         bool    `json:"unlimited"`
}

// StatusCache is an optional read-through cache for quota snapshots.
// Satisfied by the redis quota cache. Misses and cache failures both
// fall through to the ledger.
type StatusCache interface {
	GetStatus(ctx context.Context, userID shared.UserID) *quota.Status
	SetStatus(ctx context.Context, status *quota.Status)
}

// GetQuotaStatusHandler handles the GetQuotaStatusQuery.
type GetQuotaStatusHandler struct {
	ledger *quota.Ledger
	roles  quota.RoleProvider
	cache  StatusCache
}

// NewGetQuotaStatusHandler creates a new GetQuotaStatusHandler.
func NewGetQuotaStatusHandler(ledger *quota.Ledger, roles quota.RoleProvider) *GetQuotaStatusHandler {
	return &GetQuotaStatusHandler{ledger: ledger, roles: roles}
}

// WithCache attaches a snapshot cache in front of the ledger.
func (h *GetQuotaStatusHandler) WithCache(cache StatusCache) *GetQuotaStatusHandler {
	h.cache = cache
	return h
}

// Handle executes the quota status query.
func (h *GetQuotaStatusHandler) Handle(ctx context.Context, q GetQuotaStatusQuery) (*QuotaStatusDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.ErrInvalidUserID
	}

	if h.cache != nil {
		if cached := h.cache.GetStatus(ctx, userID); cached != nil {
			return statusToDTO(cached), nil
		}
	}

	role, err := h.roles.RoleOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_quota_status: role: %w", err)
	}

	status, err := h.ledger.StatusFor(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("get_quota_status: %w", err)
	}

	if h.cache != nil {
		h.cache.SetStatus(ctx, status)
	}
	return statusToDTO(status), nil
}

func statusToDTO(status *quota.Status) *QuotaStatusDTO {
	return &QuotaStatusDTO{
		UserID:            status.UserID.String(),
		Day:               timeutil.DayKey(status.Day),
		Role:              status.Role.String(),
		MessagesUsed:      status.MessageCount,
		TokensUsed:        status.TokenCount,
		RemainingMessages: status.RemainingMessages,
		RemainingTokens:   status.RemainingTokens,
		MessagePercent:    status.MessagePercent,
		TokenPercent:      status.TokenPercent,
		Summary:           status.Summary,
		Unlimited:         status.Unlimited,
	}
}
