package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/application/command"
	"github.com/nextstep-hub/learning-engine/internal/application/query"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY INGESTION
// ══════════════════════════════════════════════════════════════════════════════

// recordActivityRequest is the POST /v1/activities body.
type recordActivityRequest struct {
	UserID          string                 `json:"user_id"`
	Type            string                 `json:"type"`
	TargetID        string                 `json:"target_id,omitempty"`
	RoadmapID       string                 `json:"roadmap_id,omitempty"`
	DurationMinutes int                    `json:"duration_minutes,omitempty"`
	TokenCount      int                    `json:"token_count,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt      *time.Time             `json:"occurred_at,omitempty"`
}

// recordActivityResponse reports the applied effects.
type recordActivityResponse struct {
	StepCompleted     bool    `json:"step_completed"`
	RoadmapCompleted  bool    `json:"roadmap_completed"`
	RoadmapPercentage float64 `json:"roadmap_percentage,omitempty"`
	DayBecameActive   bool    `json:"day_became_active"`
	StreakDay         int     `json:"streak_day,omitempty"`
	StudyMinutesToday int     `json:"study_minutes_today"`
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req recordActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	cmd := command.RecordActivityCommand{
		UserID:          req.UserID,
		Type:            req.Type,
		TargetID:        req.TargetID,
		RoadmapID:       req.RoadmapID,
		DurationMinutes: req.DurationMinutes,
		TokenCount:      req.TokenCount,
		Metadata:        req.Metadata,
		CorrelationID:   getRequestID(r.Context()),
	}
	if req.OccurredAt != nil {
		cmd.OccurredAt = *req.OccurredAt
	}

	result, err := s.deps.RecordActivity.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := recordActivityResponse{
		StepCompleted:     result.StepCompleted,
		RoadmapCompleted:  result.RoadmapCompleted,
		RoadmapPercentage: result.RoadmapPercentage,
		DayBecameActive:   result.DayBecameActive,
		StreakDay:         result.StreakDay,
	}
	if result.Stat != nil {
		resp.StudyMinutesToday = result.Stat.StudyMinutes
	}

	writeJSON(w, r, http.StatusAccepted, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetQuotaStatus(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.QuotaStatus.Handle(r.Context(), query.GetQuotaStatusQuery{
		UserID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Dashboard.Handle(r.Context(), query.GetDashboardQuery{
		UserID:      r.PathValue("id"),
		HistoryDays: getQueryParamInt(r, "history_days", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGetStreakLeaderboard(w http.ResponseWriter, r *http.Request) {
	// The leaderboard lives in Redis only; without it there is nothing
	// to serve.
	if s.deps.StreakBoard == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "leaderboard_unavailable", "Streak leaderboard is not enabled")
		return
	}

	limit := getQueryParamInt(r, "limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	entries, err := s.deps.StreakBoard.Top(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"healthy": true})
		return
	}

	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness runs the same dependency sweep; the orchestrator just
	// reads it on a different probe.
	s.handleHealth(w, r)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsQuotaExceeded(err):
		writeJSONError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case shared.IsValidation(err) || errors.Is(err, shared.ErrInvalidUserID):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
