// Package stats contains the per-user daily study statistics: activity
// counter rollups, the derived efficiency score and the study streak.
// This is a pure domain layer with zero external dependencies.
package stats

import (
	"fmt"
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/activity"
	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
	"github.com/nextstep-hub/learning-engine/pkg/timeutil"
)

// ActiveStudyMinutes is the study-time threshold that makes a day count
// as an active study day on its own.
const ActiveStudyMinutes = 30

// Efficiency score weights. Each component is capped independently and
// the caps sum to exactly 100.
const (
	studyMinutesDivisor = 3.0
	studyMinutesCap     = 40.0
	stepWeight          = 15.0
	stepCap             = 30.0
	aiWeight            = 3.0
	aiCap               = 15.0
	searchWeight        = 1.5
	searchCap           = 15.0
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STAT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// DailyStat is one user's activity counters for one calendar day. Rows
// are created on the first activity of the day and never deleted.
type DailyStat struct {
	UserID          shared.UserID
	Date            time.Time
	StudyMinutes    int
	CompletedSteps  int
	AiQuestions     int
	Searches        int
	StreakDayNumber int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewDailyStat creates an empty stat row for a day.
func NewDailyStat(userID shared.UserID, day time.Time, now time.Time) *DailyStat {
	return &DailyStat{
		UserID:    userID,
		Date:      timeutil.StartOfDay(day),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *DailyStat) touch(now time.Time) {
	s.UpdatedAt = now
}

// ApplyActivity dispatches one activity onto the day's counters.
// Roadmap starts pass through without a counter change.
func (s *DailyStat) ApplyActivity(a activity.Activity, now time.Time) error {
	switch a.Type {
	case activity.TypeStepComplete:
		s.CompletedSteps++
		if a.DurationMinutes > 0 {
			s.StudyMinutes += a.DurationMinutes
		}
	case activity.TypeStudySession:
		if a.DurationMinutes < 0 {
			return shared.ErrNegativeDuration
		}
		s.StudyMinutes += a.DurationMinutes
	case activity.TypeAiQuestion:
		s.AiQuestions++
	case activity.TypeSearch:
		s.Searches++
	case activity.TypeRoadmapStart:
		// Pass-through: recorded in the audit log, not in counters.
	default:
		return shared.ErrUnknownActivity
	}
	s.touch(now)
	return nil
}

// HasActivity reports whether any counter is non-zero.
func (s *DailyStat) HasActivity() bool {
	return s.StudyMinutes > 0 || s.CompletedSteps > 0 || s.AiQuestions > 0 || s.Searches > 0
}

// IsActiveDay reports whether the day counts toward the study streak:
// at least 30 study minutes, or at least one completed step.
func (s *DailyStat) IsActiveDay() bool {
	return s.StudyMinutes >= ActiveStudyMinutes || s.CompletedSteps > 0
}

// HasStreak reports whether a streak day number was already recorded.
func (s *DailyStat) HasStreak() bool {
	return s.StreakDayNumber > 0
}

// SetStreakDay records the streak day number computed for this day.
func (s *DailyStat) SetStreakDay(day int, now time.Time) {
	s.StreakDayNumber = day
	s.touch(now)
}

// EfficiencyScore derives a 0–100 score from the day's counters. Study
// minutes contribute up to 40 points, completed steps up to 30, AI
// questions and searches up to 15 each.
func (s *DailyStat) EfficiencyScore() float64 {
	score := capped(float64(s.StudyMinutes)/studyMinutesDivisor, studyMinutesCap) +
		capped(float64(s.CompletedSteps)*stepWeight, stepCap) +
		capped(float64(s.AiQuestions)*aiWeight, aiCap) +
		capped(float64(s.Searches)*searchWeight, searchCap)
	if score > 100 {
		return 100
	}
	return score
}

func capped(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// FormattedStudyTime renders the day's study time as "2h 15m".
func (s *DailyStat) FormattedStudyTime() string {
	return timeutil.FormatMinutes(s.StudyMinutes)
}

// Summary renders a one-line digest of the day for logs and dashboards.
func (s *DailyStat) Summary() string {
	return fmt.Sprintf("%s: %s studied, %d steps, %d AI questions, %d searches, streak day %d",
		timeutil.DayKey(s.Date), s.FormattedStudyTime(), s.CompletedSteps,
		s.AiQuestions, s.Searches, s.StreakDayNumber)
}
