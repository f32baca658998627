// Package timeutil provides timezone utilities for the KST timezone (UTC+9).
// All quota windows, daily statistics, and streaks in the learning engine are
// keyed by the calendar day in Seoul time, so every "what day is it" decision
// must go through this package.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// SeoulTZ is the Seoul timezone (UTC+9, no DST).
// South Korea has not observed DST since 1988, so this is constant year-round.
var SeoulTZ = time.FixedZone("Asia/Seoul", 9*60*60)

// Now returns the current time in Seoul timezone.
func Now() time.Time {
	return time.Now().In(SeoulTZ)
}

// ToSeoul converts a time to Seoul timezone.
func ToSeoul(t time.Time) time.Time {
	return t.In(SeoulTZ)
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a time in Seoul timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, SeoulTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Seoul timezone.
func StartOfDay(t time.Time) time.Time {
	seoul := ToSeoul(t)
	return time.Date(seoul.Year(), seoul.Month(), seoul.Day(), 0, 0, 0, 0, SeoulTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in Seoul timezone.
func EndOfDay(t time.Time) time.Time {
	seoul := ToSeoul(t)
	return time.Date(seoul.Year(), seoul.Month(), seoul.Day(), 23, 59, 59, 999999999, SeoulTZ)
}

// Today returns the start of the current day in Seoul timezone.
// This is the canonical key for per-day aggregates (usage quotas, daily stats).
func Today() time.Time {
	return StartOfDay(Now())
}

// Yesterday returns the start of the previous day in Seoul timezone.
func Yesterday() time.Time {
	return Today().AddDate(0, 0, -1)
}

// DayKey formats a time as a YYYY-MM-DD key in Seoul timezone.
// Used for cache keys and log fields, never for arithmetic.
func DayKey(t time.Time) string {
	return ToSeoul(t).Format("2006-01-02")
}

// SameDay checks if two times fall on the same calendar day in Seoul timezone.
func SameDay(a, b time.Time) bool {
	as, bs := ToSeoul(a), ToSeoul(b)
	return as.Year() == bs.Year() && as.Month() == bs.Month() && as.Day() == bs.Day()
}

// IsToday checks if the given time is today in Seoul timezone.
func IsToday(t time.Time) bool {
	return SameDay(t, Now())
}

// IsYesterday checks if the given time is yesterday in Seoul timezone.
func IsYesterday(t time.Time) bool {
	return SameDay(t, Now().AddDate(0, 0, -1))
}

// DaysBetween returns the number of whole calendar days from a to b.
// Positive when b is after a.
func DaysBetween(a, b time.Time) int {
	from := StartOfDay(a)
	to := StartOfDay(b)
	return int(to.Sub(from).Hours() / 24)
}

// DaysSince calculates the number of calendar days since the given time.
func DaysSince(t time.Time) int {
	return DaysBetween(t, Now())
}

// FormatMinutes renders a minute count as "2h 15m" (or "45m" under an hour).
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h := minutes / 60
	m := minutes % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Evening reminder window for streak warnings (20:00-22:00 KST).
const (
	ReminderWindowStart = 20
	ReminderWindowEnd   = 22
)

// IsReminderWindow checks if the given time falls in the evening window
// during which streak-at-risk reminders may be sent.
func IsReminderWindow(t time.Time) bool {
	hour := ToSeoul(t).Hour()
	return hour >= ReminderWindowStart && hour < ReminderWindowEnd
}
