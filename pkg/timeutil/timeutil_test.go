package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	// 2025-03-10 01:30 UTC is 10:30 the same day in Seoul.
	utc := time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)
	start := StartOfDay(utc)

	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, time.March, start.Month())
	assert.Equal(t, 10, start.Day())
	assert.Equal(t, 0, start.Hour())
}

func TestStartOfDay_CrossesMidnight(t *testing.T) {
	// 2025-03-10 16:00 UTC is already 2025-03-11 01:00 in Seoul.
	utc := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	start := StartOfDay(utc)

	assert.Equal(t, 11, start.Day())
}

func TestDaysBetween(t *testing.T) {
	a := Date(2025, 3, 10)
	b := Date(2025, 3, 14)

	assert.Equal(t, 4, DaysBetween(a, b))
	assert.Equal(t, -4, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a.Add(5*time.Hour)))
}

func TestSameDay(t *testing.T) {
	a := Date(2025, 3, 10).Add(2 * time.Hour)
	b := Date(2025, 3, 10).Add(23 * time.Hour)
	c := Date(2025, 3, 11)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "2025-03-10", DayKey(Date(2025, 3, 10)))
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "0m", FormatMinutes(0))
	assert.Equal(t, "45m", FormatMinutes(45))
	assert.Equal(t, "2h 15m", FormatMinutes(135))
	assert.Equal(t, "1h 0m", FormatMinutes(60))
}

func TestIsReminderWindow(t *testing.T) {
	assert.True(t, IsReminderWindow(seoulTime(2025, 3, 10, 20, 30)))
	assert.False(t, IsReminderWindow(seoulTime(2025, 3, 10, 19, 59)))
	assert.False(t, IsReminderWindow(seoulTime(2025, 3, 10, 22, 0)))
}

// seoulTime is a test helper building a Seoul-local timestamp.
func seoulTime(year, month, day, hour, min int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, 0, 0, SeoulTZ)
}
