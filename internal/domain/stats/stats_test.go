package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

var (
	statsUser    = shared.UserID("8f14e45f-ceea-4670-b1a8-d0f8f1e6a003")
	statsRoadmap = shared.RoadmapID("backend-2026")
	statsStep    = shared.StepID("http-basics")
)

func newStat(t *testing.T) *DailyStat {
	t.Helper()
	return NewDailyStat(statsUser, timeutil.Today(), time.Now())
}

func TestApplyActivity_Dispatch(t *testing.T) {
	s := newStat(t)
	now := time.Now()

	require.NoError(t, s.ApplyActivity(activity.NewStepComplete(statsUser, statsRoadmap, statsStep, 25, now), now))
	assert.Equal(t, 1, s.CompletedSteps)
	assert.Equal(t, 25, s.StudyMinutes)

	require.NoError(t, s.ApplyActivity(activity.NewStudySession(statsUser, 45, now), now))
	assert.Equal(t, 70, s.StudyMinutes)
	assert.Equal(t, 1, s.CompletedSteps, "study session leaves step counter alone")

	require.NoError(t, s.ApplyActivity(activity.NewAiQuestion(statsUser, "sess-1", "what is a goroutine?", 300, now), now))
	assert.Equal(t, 1, s.AiQuestions)

	require.NoError(t, s.ApplyActivity(activity.NewSearch(statsUser, "goroutines", 12, now), now))
	assert.Equal(t, 1, s.Searches)
}

func TestApplyActivity_RoadmapStartPassThrough(t *testing.T) {
	s := newStat(t)
	now := time.Now()

	require.NoError(t, s.ApplyActivity(activity.NewRoadmapStart(statsUser, statsRoadmap, now), now))
	assert.False(t, s.HasActivity())
}

func TestApplyActivity_UnknownType(t *testing.T) {
	s := newStat(t)

	err := s.ApplyActivity(activity.Activity{UserID: statsUser, Type: "login"}, time.Now())
	assert.ErrorIs(t, err, shared.ErrUnknownActivity)
}

func TestIsActiveDay(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		steps   int
		ai      int
		active  bool
	}{
		{"empty day", 0, 0, 0, false},
		{"29 minutes is not enough", 29, 0, 0, false},
		{"30 minutes qualifies", 30, 0, 0, true},
		{"one step qualifies alone", 0, 1, 0, true},
		{"AI questions alone do not qualify", 0, 0, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStat(t)
			s.StudyMinutes = tt.minutes
			s.CompletedSteps = tt.steps
			s.AiQuestions = tt.ai
			assert.Equal(t, tt.active, s.IsActiveDay())
		})
	}
}

func TestHasActivity(t *testing.T) {
	s := newStat(t)
	assert.False(t, s.HasActivity())

	s.Searches = 1
	assert.True(t, s.HasActivity())
	assert.False(t, s.IsActiveDay(), "a lone search makes the day non-empty but not active")
}

func TestEfficiencyScore(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		steps    int
		ai       int
		searches int
		want     float64
	}{
		{"empty day", 0, 0, 0, 0, 0},
		{"one hour of study", 60, 0, 0, 0, 20},
		{"study cap at 120 minutes", 240, 0, 0, 0, 40},
		{"two steps cap the step term", 0, 2, 0, 0, 30},
		{"five AI questions cap the AI term", 0, 0, 5, 0, 15},
		{"ten searches cap the search term", 0, 0, 0, 10, 15},
		{"mixed day", 90, 1, 2, 4, 30 + 15 + 6 + 6},
		{"everything maxed sums to 100", 999, 9, 9, 99, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStat(t)
			s.StudyMinutes = tt.minutes
			s.CompletedSteps = tt.steps
			s.AiQuestions = tt.ai
			s.Searches = tt.searches
			assert.InDelta(t, tt.want, s.EfficiencyScore(), 0.001)
		})
	}
}

func TestSetStreakDay(t *testing.T) {
	s := newStat(t)
	assert.False(t, s.HasStreak())

	s.SetStreakDay(4, time.Now())
	assert.True(t, s.HasStreak())
	assert.Equal(t, 4, s.StreakDayNumber)
}

func TestNextStreakDay(t *testing.T) {
	yesterday := newStat(t)
	yesterday.StudyMinutes = 60
	yesterday.StreakDayNumber = 6

	assert.Equal(t, 7, NextStreakDay(yesterday))

	// No row yesterday: new streak.
	assert.Equal(t, 1, NextStreakDay(nil))

	// A row that never turned active breaks the run.
	idle := newStat(t)
	idle.AiQuestions = 3
	idle.StreakDayNumber = 6
	assert.Equal(t, 1, NextStreakDay(idle))
}

func TestStreakRun(t *testing.T) {
	// Active days D, D+1, D+2, a gap at D+3, then active again at D+4.
	var prev *DailyStat
	days := make([]*DailyStat, 0, 3)
	for i := 0; i < 3; i++ {
		s := newStat(t)
		s.CompletedSteps = 1
		s.SetStreakDay(NextStreakDay(prev), time.Now())
		days = append(days, s)
		prev = s
	}
	assert.Equal(t, 3, days[2].StreakDayNumber)

	// D+3 has no active row; D+4 starts over.
	assert.Equal(t, 1, NextStreakDay(nil))
}

func TestIsMilestone(t *testing.T) {
	assert.True(t, IsMilestone(7))
	assert.True(t, IsMilestone(365))
	assert.False(t, IsMilestone(8))
	assert.False(t, IsMilestone(0))
}

func TestIsStreakContinued(t *testing.T) {
	assert.False(t, IsStreakContinued(1))
	assert.True(t, IsStreakContinued(2))
}

func TestSummaryFormatting(t *testing.T) {
	s := newStat(t)
	s.StudyMinutes = 135
	s.CompletedSteps = 2
	s.SetStreakDay(3, time.Now())

	assert.Equal(t, "2h 15m", s.FormattedStudyTime())
	assert.Contains(t, s.Summary(), "2h 15m studied, 2 steps")
	assert.Contains(t, s.Summary(), "streak day 3")
}
