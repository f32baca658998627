package stats

// ══════════════════════════════════════════════════════════════════════════════
// STREAK RULES
// ══════════════════════════════════════════════════════════════════════════════

// StreakMilestones are the streak day numbers worth celebrating.
var StreakMilestones = []int{7, 30, 100, 365}

// NextStreakDay computes the streak day number for a day that just
// became active. When yesterday's row exists and was active, the streak
// continues; any gap restarts it at 1. Streaks are computed once, the
// moment a day turns active, and never revised for past days.
func NextStreakDay(yesterday *DailyStat) int {
	if yesterday == nil || !yesterday.IsActiveDay() {
		return 1
	}
	return yesterday.StreakDayNumber + 1
}

// IsStreakContinued reports whether the given streak day extends an
// existing run rather than starting a new one.
func IsStreakContinued(streakDay int) bool {
	return streakDay > 1
}

// IsMilestone reports whether a streak day number is a milestone.
func IsMilestone(streakDay int) bool {
	for _, m := range StreakMilestones {
		if streakDay == m {
			return true
		}
	}
	return false
}
