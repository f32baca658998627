package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/progress"
	"github.com/nextstep-hub/learning-engine/internal/domain/quota"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/internal/domain/stats"
	"github.com/nextstep-hub/learning-engine/pkg/logger"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

const (
	testUserID    = "8f14e45f-ceea-4670-b1a8-d0f8f1e6a010"
	testRoadmapID = "backend-2026"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRoles struct {
	role quota.Role
}

func (f *fakeRoles) RoleOf(context.Context, shared.UserID) (quota.Role, error) {
	return f.role, nil
}

type fakeQuotaRepo struct {
	mu   sync.Mutex
	rows map[string]*quota.UsageQuota
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{rows: make(map[string]*quota.UsageQuota)}
}

func (f *fakeQuotaRepo) key(userID shared.UserID, day time.Time) string {
	return userID.String() + "|" + timeutil.DayKey(day)
}

func (f *fakeQuotaRepo) Reserve(_ context.Context, req quota.ReserveRequest) (*quota.UsageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[f.key(req.UserID, req.Day)]
	if !ok {
		row = quota.NewUsageQuota(req.UserID, req.Day, time.Now())
		f.rows[f.key(req.UserID, req.Day)] = row
	}
	if req.MessageLimit != quota.Unlimited && row.MessageCount+req.Messages > req.MessageLimit {
		return nil, &quota.ExceededError{
			UserID: req.UserID, Day: req.Day, Kind: quota.KindMessage,
			Limit: req.MessageLimit, Used: row.MessageCount, Requested: req.Messages,
		}
	}
	if req.TokenLimit != quota.Unlimited && row.TokenCount+req.Tokens > req.TokenLimit {
		return nil, &quota.ExceededError{
			UserID: req.UserID, Day: req.Day, Kind: quota.KindToken,
			Limit: req.TokenLimit, Used: row.TokenCount, Requested: req.Tokens,
		}
	}
	row.AddUsage(req.Messages, req.Tokens, time.Now())
	cp := *row
	return &cp, nil
}

func (f *fakeQuotaRepo) GetForDate(_ context.Context, userID shared.UserID, day time.Time) (*quota.UsageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[f.key(userID, day)]
	if !ok {
		return nil, shared.ErrQuotaNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeQuotaRepo) GetRange(context.Context, shared.UserID, time.Time, time.Time) ([]*quota.UsageQuota, error) {
	return nil, nil
}

type fakeStepRepo struct {
	mu   sync.Mutex
	rows map[string]*progress.StepProgress
}

func newFakeStepRepo() *fakeStepRepo {
	return &fakeStepRepo{rows: make(map[string]*progress.StepProgress)}
}

func stepKey(userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID) string {
	return userID.String() + "|" + roadmapID.String() + "|" + stepID.String()
}

func (f *fakeStepRepo) Create(_ context.Context, s *progress.StepProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepKey(s.UserID, s.RoadmapID, s.StepID)
	if _, ok := f.rows[key]; ok {
		return shared.ErrEnrollmentExists
	}
	cp := *s
	f.rows[key] = &cp
	return nil
}

func (f *fakeStepRepo) CreateBatch(ctx context.Context, steps []*progress.StepProgress) error {
	for _, s := range steps {
		if err := f.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStepRepo) Get(_ context.Context, userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID) (*progress.StepProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[stepKey(userID, roadmapID, stepID)]
	if !ok {
		return nil, shared.ErrStepNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStepRepo) Update(_ context.Context, s *progress.StepProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepKey(s.UserID, s.RoadmapID, s.StepID)
	if _, ok := f.rows[key]; !ok {
		return shared.ErrStepNotFound
	}
	cp := *s
	f.rows[key] = &cp
	return nil
}

func (f *fakeStepRepo) ListByRoadmap(_ context.Context, userID shared.UserID, roadmapID shared.RoadmapID) ([]*progress.StepProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*progress.StepProgress
	for _, row := range f.rows {
		if row.UserID == userID && row.RoadmapID == roadmapID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStepRepo) CountByRoadmap(ctx context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (int, int, error) {
	rows, err := f.ListByRoadmap(ctx, userID, roadmapID)
	if err != nil {
		return 0, 0, err
	}
	completed := 0
	for _, row := range rows {
		if row.IsCompleted() {
			completed++
		}
	}
	return completed, len(rows), nil
}

type fakeRoadmapRepo struct {
	mu   sync.Mutex
	rows map[string]*progress.RoadmapProgress
}

func newFakeRoadmapRepo() *fakeRoadmapRepo {
	return &fakeRoadmapRepo{rows: make(map[string]*progress.RoadmapProgress)}
}

func roadmapKey(userID shared.UserID, roadmapID shared.RoadmapID) string {
	return userID.String() + "|" + roadmapID.String()
}

func (f *fakeRoadmapRepo) Create(_ context.Context, r *progress.RoadmapProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := roadmapKey(r.UserID, r.RoadmapID)
	if _, ok := f.rows[key]; ok {
		return shared.ErrEnrollmentExists
	}
	cp := *r
	f.rows[key] = &cp
	return nil
}

func (f *fakeRoadmapRepo) Get(_ context.Context, userID shared.UserID, roadmapID shared.RoadmapID) (*progress.RoadmapProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[roadmapKey(userID, roadmapID)]
	if !ok {
		return nil, shared.ErrRoadmapNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeRoadmapRepo) Update(_ context.Context, r *progress.RoadmapProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := roadmapKey(r.UserID, r.RoadmapID)
	if _, ok := f.rows[key]; !ok {
		return shared.ErrRoadmapNotFound
	}
	cp := *r
	f.rows[key] = &cp
	return nil
}

func (f *fakeRoadmapRepo) ListByUser(_ context.Context, userID shared.UserID) ([]*progress.RoadmapProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*progress.RoadmapProgress
	for _, row := range f.rows {
		if row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeStatsRepo struct {
	mu   sync.Mutex
	rows map[string]*stats.DailyStat
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{rows: make(map[string]*stats.DailyStat)}
}

func statKey(userID shared.UserID, day time.Time) string {
	return userID.String() + "|" + timeutil.DayKey(day)
}

func (f *fakeStatsRepo) Apply(_ context.Context, userID shared.UserID, day time.Time, a activity.Activity) (*stats.DailyStat, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := statKey(userID, day)
	row, ok := f.rows[key]
	if !ok {
		row = stats.NewDailyStat(userID, day, time.Now())
		f.rows[key] = row
	}
	wasActive := row.IsActiveDay()
	if err := row.ApplyActivity(a, time.Now()); err != nil {
		return nil, false, err
	}
	cp := *row
	return &cp, !wasActive && row.IsActiveDay(), nil
}

func (f *fakeStatsRepo) SetStreakDay(_ context.Context, userID shared.UserID, day time.Time, streakDay int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[statKey(userID, day)]
	if !ok {
		return shared.ErrStatNotFound
	}
	row.SetStreakDay(streakDay, time.Now())
	return nil
}

func (f *fakeStatsRepo) GetForDate(_ context.Context, userID shared.UserID, day time.Time) (*stats.DailyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[statKey(userID, day)]
	if !ok {
		return nil, shared.ErrStatNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStatsRepo) GetRange(_ context.Context, userID shared.UserID, from, to time.Time) ([]*stats.DailyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*stats.DailyStat
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if row, ok := f.rows[statKey(userID, d)]; ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStatsRepo) ListActiveWithoutActivity(context.Context, time.Time, time.Time, int) ([]shared.UserID, error) {
	return nil, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []activity.Activity
}

func (f *fakeAudit) Append(_ context.Context, a activity.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, a)
	return nil
}

func (f *fakeAudit) ListByUser(context.Context, shared.UserID, int) ([]activity.Activity, error) {
	return nil, nil
}

func (f *fakeAudit) ListByUserAndDay(context.Context, shared.UserID, time.Time) ([]activity.Activity, error) {
	return nil, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Test harness
// ─────────────────────────────────────────────────────────────────────────────

type engineFixture struct {
	handler   *RecordActivityHandler
	enroll    *EnrollRoadmapHandler
	roles     *fakeRoles
	quotaRepo *fakeQuotaRepo
	steps     *fakeStepRepo
	roadmaps  *fakeRoadmapRepo
	stats     *fakeStatsRepo
	audit     *fakeAudit
	publisher *capturingPublisher
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		roles:     &fakeRoles{role: quota.RoleFreeMember},
		quotaRepo: newFakeQuotaRepo(),
		steps:     newFakeStepRepo(),
		roadmaps:  newFakeRoadmapRepo(),
		stats:     newFakeStatsRepo(),
		audit:     &fakeAudit{},
		publisher: &capturingPublisher{},
	}
	log := logger.New(logger.Options{Level: logger.LevelError, Output: testWriter{}})
	f.handler = NewRecordActivityHandler(
		f.roles, quota.NewLedger(f.quotaRepo), f.steps, f.roadmaps, f.stats,
		f.audit, f.publisher, log,
	)
	f.enroll = NewEnrollRoadmapHandler(f.roadmaps, f.steps, f.publisher, log)
	return f
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func (f *engineFixture) enrollFourSteps(t *testing.T) []string {
	t.Helper()
	stepIDs := []string{"s1", "s2", "s3", "s4"}
	_, err := f.enroll.Handle(context.Background(), EnrollRoadmapCommand{
		UserID:              testUserID,
		RoadmapID:           testRoadmapID,
		StepIDs:             stepIDs,
		TotalEstimatedHours: 20,
	})
	require.NoError(t, err)
	return stepIDs
}

// ─────────────────────────────────────────────────────────────────────────────
// Scenarios
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordActivity_StudySessionActivatesDay(t *testing.T) {
	f := newEngine(t)

	result, err := f.handler.Handle(context.Background(), RecordActivityCommand{
		UserID:          testUserID,
		Type:            "study_session",
		DurationMinutes: 45,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Stat)
	assert.Equal(t, 45, result.Stat.StudyMinutes)
	assert.True(t, result.DayBecameActive)
	assert.Equal(t, 1, result.StreakDay, "first active day starts a streak")

	stat, err := f.stats.GetForDate(context.Background(), shared.UserID(testUserID), timeutil.Today())
	require.NoError(t, err)
	assert.Equal(t, 1, stat.StreakDayNumber)

	assert.Contains(t, f.publisher.types(), shared.EventDayBecameActive)
	assert.Contains(t, f.publisher.types(), shared.EventStreakUpdated)
}

func TestRecordActivity_SecondSessionDoesNotReflip(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "study_session", DurationMinutes: 45,
	})
	require.NoError(t, err)

	result, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "study_session", DurationMinutes: 20,
	})
	require.NoError(t, err)
	assert.False(t, result.DayBecameActive)
	assert.Zero(t, result.StreakDay)
	assert.Equal(t, 65, result.Stat.StudyMinutes)
}

func TestRecordActivity_StreakContinuesFromYesterday(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	// Seed yesterday as active streak day 6.
	yesterday := stats.NewDailyStat(shared.UserID(testUserID), timeutil.Yesterday(), time.Now())
	yesterday.StudyMinutes = 60
	yesterday.SetStreakDay(6, time.Now())
	f.stats.rows[statKey(shared.UserID(testUserID), timeutil.Yesterday())] = yesterday

	result, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "study_session", DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result.StreakDay)
	assert.Contains(t, f.publisher.types(), shared.EventStreakMilestone, "day 7 is a milestone")
}

func TestRecordActivity_QuotaDenialHasNoSideEffects(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	// Exhaust the free tier.
	for i := 0; i < 10; i++ {
		_, err := f.handler.Handle(ctx, RecordActivityCommand{
			UserID: testUserID, Type: "ai_question", TargetID: "sess-1", TokenCount: 10,
		})
		require.NoError(t, err)
	}
	auditBefore := len(f.audit.entries)
	statBefore, err := f.stats.GetForDate(ctx, shared.UserID(testUserID), timeutil.Today())
	require.NoError(t, err)

	_, err = f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "ai_question", TargetID: "sess-1", TokenCount: 10,
	})
	require.Error(t, err)
	assert.True(t, shared.IsQuotaExceeded(err))

	// Nothing after the gate ran.
	assert.Len(t, f.audit.entries, auditBefore)
	statAfter, err := f.stats.GetForDate(ctx, shared.UserID(testUserID), timeutil.Today())
	require.NoError(t, err)
	assert.Equal(t, statBefore.AiQuestions, statAfter.AiQuestions)

	q, err := f.quotaRepo.GetForDate(ctx, shared.UserID(testUserID), timeutil.Today())
	require.NoError(t, err)
	assert.Equal(t, 10, q.MessageCount)

	assert.Contains(t, f.publisher.types(), shared.EventQuotaDenied)
}

func TestRecordActivity_AiQuestionCountsTowardStats(t *testing.T) {
	f := newEngine(t)

	result, err := f.handler.Handle(context.Background(), RecordActivityCommand{
		UserID: testUserID, Type: "ai_question", TargetID: "sess-1", TokenCount: 250,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Quota)
	assert.Equal(t, 1, result.Quota.MessageCount)
	assert.Equal(t, 250, result.Quota.TokenCount)
	assert.Equal(t, 1, result.Stat.AiQuestions)
	assert.False(t, result.DayBecameActive, "AI questions alone do not activate the day")
}

func TestRecordActivity_FourStepRoadmap(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	stepIDs := f.enrollFourSteps(t)

	// Complete two of four steps.
	for _, id := range stepIDs[:2] {
		_, err := f.handler.Handle(ctx, RecordActivityCommand{
			UserID:          testUserID,
			Type:            "step_complete",
			TargetID:        id,
			RoadmapID:       testRoadmapID,
			DurationMinutes: 40,
		})
		require.NoError(t, err)
	}

	roadmap, err := f.roadmaps.Get(ctx, shared.UserID(testUserID), shared.RoadmapID(testRoadmapID))
	require.NoError(t, err)
	assert.Equal(t, 50.0, roadmap.Percentage.Float64())
	assert.Equal(t, progress.RoadmapInProgress, roadmap.Status)

	// Complete the remaining two.
	var last *RecordActivityResult
	for _, id := range stepIDs[2:] {
		last, err = f.handler.Handle(ctx, RecordActivityCommand{
			UserID:    testUserID,
			Type:      "step_complete",
			TargetID:  id,
			RoadmapID: testRoadmapID,
		})
		require.NoError(t, err)
	}

	assert.True(t, last.RoadmapCompleted)
	assert.Equal(t, 100.0, last.RoadmapPercentage)

	roadmap, err = f.roadmaps.Get(ctx, shared.UserID(testUserID), shared.RoadmapID(testRoadmapID))
	require.NoError(t, err)
	assert.Equal(t, progress.RoadmapCompleted, roadmap.Status)
	assert.NotNil(t, roadmap.CompletedAt)

	assert.Contains(t, f.publisher.types(), shared.EventRoadmapCompleted)
}

func TestRecordActivity_StepCompleteActivatesDay(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	stepIDs := f.enrollFourSteps(t)

	result, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID:    testUserID,
		Type:      "step_complete",
		TargetID:  stepIDs[0],
		RoadmapID: testRoadmapID,
	})
	require.NoError(t, err)
	assert.True(t, result.StepCompleted)
	assert.True(t, result.DayBecameActive, "one completed step activates the day without study minutes")
	assert.Equal(t, 1, result.StreakDay)
}

func TestRecordActivity_DuplicateStepCompleteIsIdempotent(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	stepIDs := f.enrollFourSteps(t)

	_, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "step_complete", TargetID: stepIDs[0], RoadmapID: testRoadmapID,
	})
	require.NoError(t, err)

	result, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "step_complete", TargetID: stepIDs[0], RoadmapID: testRoadmapID,
	})
	require.NoError(t, err)
	assert.False(t, result.StepCompleted, "redelivery does not re-complete")
	assert.Equal(t, 25.0, result.RoadmapPercentage)

	// The stat counter does double-count redeliveries; completion state
	// does not.
	completed, total, err := f.steps.CountByRoadmap(ctx, shared.UserID(testUserID), shared.RoadmapID(testRoadmapID))
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 4, total)
}

func TestRecordActivity_RoadmapStartPassesThrough(t *testing.T) {
	f := newEngine(t)
	f.enrollFourSteps(t)

	result, err := f.handler.Handle(context.Background(), RecordActivityCommand{
		UserID:    testUserID,
		Type:      "roadmap_start",
		RoadmapID: testRoadmapID,
	})
	require.NoError(t, err)
	assert.False(t, result.Stat.HasActivity())
	assert.Len(t, f.audit.entries, 1, "pass-through still lands in the audit log")
}

func TestRecordActivity_ValidationFailures(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, RecordActivityCommand{UserID: "not-a-uuid", Type: "search"})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = f.handler.Handle(ctx, RecordActivityCommand{UserID: testUserID, Type: "login"})
	assert.ErrorIs(t, err, shared.ErrInvalidActivityType)

	// step_complete without a roadmap.
	_, err = f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "step_complete", TargetID: "s1",
	})
	assert.ErrorIs(t, err, shared.ErrMissingTarget)
}

func TestEnrollRoadmap(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	result, err := f.enroll.Handle(ctx, EnrollRoadmapCommand{
		UserID:              testUserID,
		RoadmapID:           testRoadmapID,
		StepIDs:             []string{"s1", "s2"},
		TotalEstimatedHours: 10,
		DailyGoalHours:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.StepCount)
	assert.Equal(t, progress.RoadmapInProgress, result.Roadmap.Status)
	require.NotNil(t, result.EstimatedCompletion)

	// Double enrollment is rejected.
	_, err = f.enroll.Handle(ctx, EnrollRoadmapCommand{
		UserID:    testUserID,
		RoadmapID: testRoadmapID,
		StepIDs:   []string{"s1", "s2"},
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestRoadmapLifecycle_PauseResume(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	f.enrollFourSteps(t)

	log := logger.New(logger.Options{Level: logger.LevelError, Output: testWriter{}})
	lifecycle := NewRoadmapLifecycleHandler(f.roadmaps, f.steps, f.publisher, log)

	r, err := lifecycle.Pause(ctx, testUserID, testRoadmapID)
	require.NoError(t, err)
	assert.Equal(t, progress.RoadmapPaused, r.Status)

	r, err = lifecycle.Resume(ctx, testUserID, testRoadmapID)
	require.NoError(t, err)
	assert.Equal(t, progress.RoadmapInProgress, r.Status)

	_, err = lifecycle.Resume(ctx, testUserID, testRoadmapID)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestRoadmapLifecycle_ResetStep(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	stepIDs := f.enrollFourSteps(t)

	_, err := f.handler.Handle(ctx, RecordActivityCommand{
		UserID: testUserID, Type: "step_complete", TargetID: stepIDs[0], RoadmapID: testRoadmapID,
	})
	require.NoError(t, err)

	log := logger.New(logger.Options{Level: logger.LevelError, Output: testWriter{}})
	lifecycle := NewRoadmapLifecycleHandler(f.roadmaps, f.steps, f.publisher, log)

	step, err := lifecycle.ResetStep(ctx, testUserID, testRoadmapID, stepIDs[0])
	require.NoError(t, err)
	assert.Equal(t, progress.StepNotStarted, step.Status)

	roadmap, err := f.roadmaps.Get(ctx, shared.UserID(testUserID), shared.RoadmapID(testRoadmapID))
	require.NoError(t, err)
	assert.Equal(t, 0.0, roadmap.Percentage.Float64())
}

func TestUpdateStepProgress(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	stepIDs := f.enrollFourSteps(t)

	log := logger.New(logger.Options{Level: logger.LevelError, Output: testWriter{}})
	update := NewUpdateStepProgressHandler(f.steps, f.roadmaps, f.publisher, log)

	pct := 60.0
	result, err := update.Handle(ctx, UpdateStepProgressCommand{
		UserID:     testUserID,
		RoadmapID:  testRoadmapID,
		StepID:     stepIDs[0],
		Percentage: &pct,
		StudyHours: 1.5,
	})
	require.NoError(t, err)
	assert.False(t, result.StepCompleted)
	assert.Equal(t, progress.StepInProgress, result.Step.Status)
	assert.InDelta(t, 1.5, result.Step.StudyHours.Float64(), 0.001)

	full := 100.0
	result, err = update.Handle(ctx, UpdateStepProgressCommand{
		UserID:     testUserID,
		RoadmapID:  testRoadmapID,
		StepID:     stepIDs[0],
		Percentage: &full,
	})
	require.NoError(t, err)
	assert.True(t, result.StepCompleted)
	assert.Equal(t, 25.0, result.RoadmapPercentage)
}
