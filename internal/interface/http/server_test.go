package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/application/command"
	"github.com/nextstep-hub/learning-engine/internal/application/query"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Level: logger.LevelError, Output: nullWriter{}})
}

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRecorder struct {
	got    command.RecordActivityCommand
	result *command.RecordActivityResult
	err    error
}

func (f *fakeRecorder) Handle(_ context.Context, cmd command.RecordActivityCommand) (*command.RecordActivityResult, error) {
	f.got = cmd
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &command.RecordActivityResult{}, nil
}

type fakeQuotaReader struct {
	dto *query.QuotaStatusDTO
	err error
}

func (f *fakeQuotaReader) Handle(context.Context, query.GetQuotaStatusQuery) (*query.QuotaStatusDTO, error) {
	return f.dto, f.err
}

type fakeDashboardReader struct {
	got query.GetDashboardQuery
	dto *query.DashboardDTO
	err error
}

func (f *fakeDashboardReader) Handle(_ context.Context, q query.GetDashboardQuery) (*query.DashboardDTO, error) {
	f.got = q
	return f.dto, f.err
}

type fakeStreakBoard struct {
	gotLimit int
	entries  []stats.LeaderboardEntry
}

func (f *fakeStreakBoard) Top(_ context.Context, limit int) ([]stats.LeaderboardEntry, error) {
	f.gotLimit = limit
	return f.entries, nil
}

func newTestServer(deps Dependencies) *Server {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	return NewServer(cfg, deps)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity ingestion
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordActivity_Accepted(t *testing.T) {
	recorder := &fakeRecorder{result: &command.RecordActivityResult{
		StepCompleted:   true,
		DayBecameActive: true,
		StreakDay:       4,
	}}
	s := newTestServer(Dependencies{RecordActivity: recorder})

	rec := doJSON(t, s, http.MethodPost, "/v1/activities", map[string]interface{}{
		"user_id":    "2b3e4a60-1c1f-4a8b-9e5d-0f1a2b3c4d5e",
		"type":       "step_complete",
		"target_id":  "step-9",
		"roadmap_id": "go-backend",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	assert.Equal(t, "step_complete", recorder.got.Type)
	assert.Equal(t, "go-backend", recorder.got.RoadmapID)
	assert.NotEmpty(t, recorder.got.CorrelationID)

	data, _ := json.Marshal(resp.Data)
	var body recordActivityResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.True(t, body.StepCompleted)
	assert.Equal(t, 4, body.StreakDay)
}

func TestRecordActivity_MalformedBody(t *testing.T) {
	s := newTestServer(Dependencies{RecordActivity: &fakeRecorder{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeResponse(t, rec).Error.Code)
}

func TestRecordActivity_QuotaDenialMapsTo429(t *testing.T) {
	recorder := &fakeRecorder{err: shared.ErrQuotaExceeded}
	s := newTestServer(Dependencies{RecordActivity: recorder})

	rec := doJSON(t, s, http.MethodPost, "/v1/activities", map[string]interface{}{
		"user_id": "2b3e4a60-1c1f-4a8b-9e5d-0f1a2b3c4d5e",
		"type":    "ai_question",
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "quota_exceeded", decodeResponse(t, rec).Error.Code)
}

func TestRecordActivity_ValidationMapsTo400(t *testing.T) {
	recorder := &fakeRecorder{err: shared.ErrInvalidUserID}
	s := newTestServer(Dependencies{RecordActivity: recorder})

	rec := doJSON(t, s, http.MethodPost, "/v1/activities", map[string]interface{}{
		"user_id": "not-a-uuid",
		"type":    "search",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Read side
// ─────────────────────────────────────────────────────────────────────────────

func TestGetQuotaStatus(t *testing.T) {
	s := newTestServer(Dependencies{QuotaStatus: &fakeQuotaReader{dto: &query.QuotaStatusDTO{
		UserID:            "2b3e4a60-1c1f-4a8b-9e5d-0f1a2b3c4d5e",
		Role:              "free_member",
		RemainingMessages: 7,
	}}})

	rec := doJSON(t, s, http.MethodGet, "/v1/users/2b3e4a60-1c1f-4a8b-9e5d-0f1a2b3c4d5e/quota", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var dto query.QuotaStatusDTO
	require.NoError(t, json.Unmarshal(data, &dto))
	assert.Equal(t, "free_member", dto.Role)
	assert.Equal(t, 7, dto.RemainingMessages)
}

func TestGetDashboard_PassesHistoryDays(t *testing.T) {
	reader := &fakeDashboardReader{dto: &query.DashboardDTO{}}
	s := newTestServer(Dependencies{Dashboard: reader})

	rec := doJSON(t, s, http.MethodGet, "/v1/users/u1/dashboard?history_days=14", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", reader.got.UserID)
	assert.Equal(t, 14, reader.got.HistoryDays)
}

func TestGetStreakLeaderboard_ClampsLimit(t *testing.T) {
	board := &fakeStreakBoard{entries: []stats.LeaderboardEntry{
		{UserID: "u1", StreakDay: 30, Rank: 1},
	}}
	s := newTestServer(Dependencies{StreakBoard: board})

	rec := doJSON(t, s, http.MethodGet, "/v1/streaks/leaderboard?limit=5000", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, board.gotLimit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Auth and health
// ─────────────────────────────────────────────────────────────────────────────

func TestServiceKeyAuth(t *testing.T) {
	hash, err := HashServiceKey("sekret")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.ServiceKeyHash = hash
	s := NewServer(cfg, Dependencies{
		QuotaStatus: &fakeQuotaReader{dto: &query.QuotaStatusDTO{}},
		Logger:      quietLogger(),
	})

	// No key
	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/quota", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key
	req = httptest.NewRequest(http.MethodGet, "/v1/users/u1/quota", nil)
	req.Header.Set(HeaderServiceKey, "wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct key via header
	req = httptest.NewRequest(http.MethodGet, "/v1/users/u1/quota", nil)
	req.Header.Set(HeaderServiceKey, "sekret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Correct key via bearer token
	req = httptest.NewRequest(http.MethodGet, "/v1/users/u1/quota", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health endpoints stay open
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoint_ReportsFailingCheck(t *testing.T) {
	checker := NewHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddCheck("cache", func(context.Context) error { return errors.New("connection refused") })

	s := newTestServer(Dependencies{Health: checker})

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(Dependencies{StreakBoard: &fakeStreakBoard{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/streaks/leaderboard", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), "req-123")
}

func TestRateLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	s := NewServer(cfg, Dependencies{StreakBoard: &fakeStreakBoard{}, Logger: quietLogger()})

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s, http.MethodGet, "/v1/streaks/leaderboard", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, s, http.MethodGet, "/v1/streaks/leaderboard", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
