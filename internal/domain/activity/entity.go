// Package activity defines the activity event consumed by the ingestion
// pipeline. An Activity is ephemeral: it is constructed at the boundary,
// routed once through the engine, and kept afterwards only as an audit row.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"time"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// Type classifies an activity event.
type Type string

const (
	// TypeRoadmapStart - user started a roadmap.
	TypeRoadmapStart Type = "roadmap_start"

	// TypeStepComplete - user completed a roadmap step.
	TypeStepComplete Type = "step_complete"

	// TypeStudySession - user finished a timed study session.
	TypeStudySession Type = "study_session"

	// TypeAiQuestion - user asked the AI assistant a question.
	TypeAiQuestion Type = "ai_question"

	// TypeSearch - user performed a content search.
	TypeSearch Type = "search"
)

// IsValid checks whether the type is one of the known activity types.
func (t Type) IsValid() bool {
	switch t {
	case TypeRoadmapStart, TypeStepComplete, TypeStudySession, TypeAiQuestion, TypeSearch:
		return true
	}
	return false
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// TargetType names what an activity's TargetID points at.
type TargetType string

const (
	TargetRoadmap   TargetType = "roadmap"
	TargetStep      TargetType = "step"
	TargetAiSession TargetType = "ai_session"
	TargetSearch    TargetType = "search"
)

// Activity is a single recorded user action. It carries everything the
// router needs to fan the event out; it is never re-read by the engine.
type Activity struct {
	UserID shared.UserID
	Type   Type

	// TargetID identifies the step, roadmap, or AI session the activity
	// refers to. Empty for search activities.
	TargetID   string
	TargetType TargetType

	// RoadmapID is set for step activities so the aggregator knows which
	// enrollment to recompute without an extra lookup.
	RoadmapID shared.RoadmapID

	// DurationMinutes is the study time carried by the activity, when any.
	DurationMinutes int

	// TokenCount is the token cost of an AI question, used by the ledger.
	TokenCount int

	// Metadata holds activity-specific detail (search query, AI question
	// text). Stored on the audit row, ignored by the aggregation pipeline.
	Metadata map[string]interface{}

	Timestamp time.Time
}

// Validate checks the activity for structural problems before routing.
func (a Activity) Validate() error {
	if a.UserID.IsEmpty() {
		return shared.ErrInvalidUserID
	}
	if !a.Type.IsValid() {
		return shared.ErrInvalidActivityType
	}
	if a.DurationMinutes < 0 {
		return shared.ErrNegativeDuration
	}
	if a.TokenCount < 0 {
		return shared.NewDomainError("activity", "Validate", shared.ErrNegativeValue, "token count must be non-negative")
	}
	switch a.Type {
	case TypeStepComplete:
		if a.TargetID == "" || !a.RoadmapID.IsValid() {
			return shared.ErrMissingTarget
		}
	case TypeRoadmapStart:
		if !a.RoadmapID.IsValid() {
			return shared.ErrMissingTarget
		}
	}
	return nil
}

// HasStudyTime checks if the activity carries study minutes.
func (a Activity) HasStudyTime() bool {
	return a.DurationMinutes > 0
}

// Factory helpers mirroring how the boundary layer builds events.

// NewRoadmapStart creates a roadmap-start activity.
func NewRoadmapStart(userID shared.UserID, roadmapID shared.RoadmapID, at time.Time) Activity {
	return Activity{
		UserID:     userID,
		Type:       TypeRoadmapStart,
		TargetID:   roadmapID.String(),
		TargetType: TargetRoadmap,
		RoadmapID:  roadmapID,
		Timestamp:  at,
	}
}

// NewStepComplete creates a step-completion activity.
func NewStepComplete(userID shared.UserID, roadmapID shared.RoadmapID, stepID shared.StepID, studyMinutes int, at time.Time) Activity {
	return Activity{
		UserID:          userID,
		Type:            TypeStepComplete,
		TargetID:        stepID.String(),
		TargetType:      TargetStep,
		RoadmapID:       roadmapID,
		DurationMinutes: studyMinutes,
		Timestamp:       at,
	}
}

// NewStudySession creates a study-session activity.
func NewStudySession(userID shared.UserID, durationMinutes int, at time.Time) Activity {
	return Activity{
		UserID:          userID,
		Type:            TypeStudySession,
		DurationMinutes: durationMinutes,
		Timestamp:       at,
	}
}

// NewAiQuestion creates an AI-question activity. The question text goes to
// the audit metadata; the token count feeds the quota ledger.
func NewAiQuestion(userID shared.UserID, sessionID string, question string, tokenCount int, at time.Time) Activity {
	return Activity{
		UserID:     userID,
		Type:       TypeAiQuestion,
		TargetID:   sessionID,
		TargetType: TargetAiSession,
		TokenCount: tokenCount,
		Metadata:   map[string]interface{}{"question": question},
		Timestamp:  at,
	}
}

// NewSearch creates a search activity.
func NewSearch(userID shared.UserID, query string, resultCount int, at time.Time) Activity {
	return Activity{
		UserID:     userID,
		Type:       TypeSearch,
		TargetType: TargetSearch,
		Metadata:   map[string]interface{}{"query": query, "result_count": resultCount},
		Timestamp:  at,
	}
}
