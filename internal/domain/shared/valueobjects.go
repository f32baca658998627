// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UserID represents a unique user identifier (UUID format).
type UserID string

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID format")
	}
	return uid, nil
}

// RoadmapID represents a unique roadmap enrollment identifier.
type RoadmapID string

// IsValid checks if the roadmap ID is non-empty.
func (r RoadmapID) IsValid() bool {
	return r != ""
}

// String returns the string representation.
func (r RoadmapID) String() string {
	return string(r)
}

// StepID represents a unique roadmap step identifier.
type StepID string

// IsValid checks if the step ID is non-empty.
func (s StepID) IsValid() bool {
	return s != ""
}

// String returns the string representation.
func (s StepID) String() string {
	return string(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Percentage Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percentage represents a completion percentage in [0,100] with two-decimal
// precision. The original persistence model stores DECIMAL(5,2); keeping the
// rounding rule here makes the 100.00 comparison exact.
type Percentage float64

const (
	// PercentZero is the empty progress value.
	PercentZero Percentage = 0

	// PercentComplete is the exact completion value.
	PercentComplete Percentage = 100
)

// NewPercentage rounds the value half-up to two decimals and validates range.
func NewPercentage(v float64) (Percentage, error) {
	p := RoundPercent(v)
	if p < PercentZero || p > PercentComplete {
		return 0, NewDomainError("shared", "NewPercentage", ErrValueOutOfRange, "percentage must be in [0,100]")
	}
	return p, nil
}

// RoundPercent rounds half-up to two decimals without range validation.
func RoundPercent(v float64) Percentage {
	return Percentage(math.Floor(v*100+0.5) / 100)
}

// IsComplete checks if the percentage equals 100.00 exactly.
func (p Percentage) IsComplete() bool {
	return p == PercentComplete
}

// Float64 returns the underlying float64 value.
func (p Percentage) Float64() float64 {
	return float64(p)
}

// String returns a fixed two-decimal representation.
func (p Percentage) String() string {
	return fmt.Sprintf("%.2f", float64(p))
}

// CompletionPercent derives the percentage of completed items over total,
// rounded half-up to two decimals. Zero total yields zero.
func CompletionPercent(completed, total int) Percentage {
	if total <= 0 {
		return PercentZero
	}
	return RoundPercent(100 * float64(completed) / float64(total))
}

// ═══════════════════════════════════════════════════════════════════════════
// StudyHours Value Object
// ═══════════════════════════════════════════════════════════════════════════

// StudyHours represents accumulated study time in hours, non-negative,
// two-decimal precision.
type StudyHours float64

// IsValid checks that the value is non-negative.
func (h StudyHours) IsValid() bool {
	return h >= 0
}

// Add returns the sum of two study-hour values.
func (h StudyHours) Add(delta StudyHours) StudyHours {
	return StudyHours(math.Floor((float64(h)+float64(delta))*100+0.5) / 100)
}

// Float64 returns the underlying float64 value.
func (h StudyHours) Float64() float64 {
	return float64(h)
}
