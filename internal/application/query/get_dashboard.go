// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Assembles the user's study dashboard: today's stats and streak, a
// short history window, active roadmaps and the remaining AI quota.
// ══════════════════════════════════════════════════════════════════════════════

// GetDashboardQuery contains the dashboard request parameters.
type GetDashboardQuery struct {
	// UserID identifies the user (UUID).
	UserID string

	// HistoryDays is the history window length (default 7, max 30).
	HistoryDays int
}

// Validate validates and normalizes the query.
func (q *GetDashboardQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return shared.ErrInvalidUserID
	}
	if q.HistoryDays <= 0 {
		q.HistoryDays = 7
	}
	if q.HistoryDays > 30 {
		q.HistoryDays = 30
	}
	return nil
}

// DayStatDTO is one day of the history window.
type DayStatDTO struct {
	Date            string  `json:"date"`
	StudyMinutes    int     `json:"study_minutes"`
	StudyTime       string  `json:"study_time"`
	CompletedSteps  int     `json:"completed_steps"`
	AiQuestions     int     `json:"ai_questions"`
	Searches        int     `json:"searches"`
	EfficiencyScore float64 `json:"efficiency_score"`
	ActiveDay       bool    `json:"active_day"`
	StreakDay       int     `json:"streak_day"`
}

// RoadmapDTO is one roadmap enrollment on the dashboard.
type RoadmapDTO struct {
	RoadmapID           string     `json:"roadmap_id"`
	Status              string     `json:"status"`
	Percentage          float64    `json:"percentage"`
	StudiedHours        float64    `json:"studied_hours"`
	DailyGoalHours      float64    `json:"daily_goal_hours"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// QuotaDTO is the remaining AI quota on the dashboard.
type QuotaDTO struct {
	MessagesUsed      int     `json:"messages_used"`
	TokensUsed        int     `json:"tokens_used"`
	RemainingMessages int     `json:"remaining_messages"`
	RemainingTokens   int     `json:"remaining_tokens"`
	MessagePercent    float64 `json:"message_percent"`
	Summary           string  `json:"summary"`
	Unlimited         bool    `json:"unlimited"`
}

// DashboardDTO is the assembled dashboard.
type DashboardDTO struct {
	UserID        string       `json:"user_id"`
	Today         DayStatDTO   `json:"today"`
	CurrentStreak int          `json:"current_streak"`
	History       []DayStatDTO `json:"history"`
	Roadmaps      []RoadmapDTO `json:"roadmaps"`
	Quota         QuotaDTO     `json:"quota"`
}

// GetDashboardHandler handles the GetDashboardQuery.
type GetDashboardHandler struct {
	stats    stats.Repository
	roadmaps progress.RoadmapRepository
	ledger   *quota.Ledger
	roles    quota.RoleProvider
}

// NewGetDashboardHandler creates a new GetDashboardHandler.
func NewGetDashboardHandler(
	statsRepo stats.Repository,
	roadmaps progress.RoadmapRepository,
	ledger *quota.Ledger,
	roles quota.RoleProvider,
) *GetDashboardHandler {
	return &GetDashboardHandler{
		stats:    statsRepo,
		roadmaps: roadmaps,
		ledger:   ledger,
		roles:    roles,
	}
}

// Handle executes the dashboard query.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*DashboardDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_dashboard: %w", err)
	}
	userID := shared.UserID(q.UserID)
	today := timeutil.Today()

	dto := &DashboardDTO{UserID: q.UserID}

	todayStat, err := h.stats.GetForDate(ctx, userID, today)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("get_dashboard: today: %w", err)
		}
		todayStat = stats.NewDailyStat(userID, today, timeutil.Now())
	}
	dto.Today = toDayStatDTO(todayStat)
	dto.CurrentStreak = currentStreak(ctx, h.stats, userID, todayStat)

	from := today.AddDate(0, 0, -(q.HistoryDays - 1))
	history, err := h.stats.GetRange(ctx, userID, from, today)
	if err != nil {
		return nil, fmt.Errorf("get_dashboard: history: %w", err)
	}
	dto.History = make([]DayStatDTO, 0, len(history))
	for _, day := range history {
		dto.History = append(dto.History, toDayStatDTO(day))
	}

	enrollments, err := h.roadmaps.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_dashboard: roadmaps: %w", err)
	}
	dto.Roadmaps = make([]RoadmapDTO, 0, len(enrollments))
	for _, r := range enrollments {
		dto.Roadmaps = append(dto.Roadmaps, RoadmapDTO{
			RoadmapID:           r.RoadmapID.String(),
			Status:              string(r.Status),
			Percentage:          r.Percentage.Float64(),
			StudiedHours:        r.StudiedHours.Float64(),
			DailyGoalHours:      r.DailyGoalHours,
			StartedAt:           r.StartedAt,
			CompletedAt:         r.CompletedAt,
			EstimatedCompletion: r.EstimatedCompletion,
		})
	}

	role, err := h.roles.RoleOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_dashboard: role: %w", err)
	}
	status, err := h.ledger.StatusFor(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("get_dashboard: quota: %w", err)
	}
	dto.Quota = QuotaDTO{
		MessagesUsed:      status.MessageCount,
		TokensUsed:        status.TokenCount,
		RemainingMessages: status.RemainingMessages,
		RemainingTokens:   status.RemainingTokens,
		MessagePercent:    status.MessagePercent,
		Summary:           status.Summary,
		Unlimited:         status.Unlimited,
	}

	return dto, nil
}

func toDayStatDTO(s *stats.DailyStat) DayStatDTO {
	return DayStatDTO{
		Date:            timeutil.DayKey(s.Date),
		StudyMinutes:    s.StudyMinutes,
		StudyTime:       s.FormattedStudyTime(),
		CompletedSteps:  s.CompletedSteps,
		AiQuestions:     s.AiQuestions,
		Searches:        s.Searches,
		EfficiencyScore: s.EfficiencyScore(),
		ActiveDay:       s.IsActiveDay(),
		StreakDay:       s.StreakDayNumber,
	}
}

// currentStreak resolves the streak shown on the dashboard: today's
// value when today is already active, otherwise yesterday's run (still
// alive until midnight).
func currentStreak(ctx context.Context, repo stats.Repository, userID shared.UserID, today *stats.DailyStat) int {
	if today.HasStreak() {
		return today.StreakDayNumber
	}
	yesterday, err := repo.GetForDate(ctx, userID, timeutil.Yesterday())
	if err != nil || !yesterday.IsActiveDay() {
		return 0
	}
	return yesterday.StreakDayNumber
}
