// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Progress events
	EventStepStarted      EventType = "progress.step_started"
	EventStepCompleted    EventType = "progress.step_completed"
	EventStepReset        EventType = "progress.step_reset"
	EventRoadmapStarted   EventType = "progress.roadmap_started"
	EventRoadmapCompleted EventType = "progress.roadmap_completed"
	EventRoadmapPaused    EventType = "progress.roadmap_paused"
	EventRoadmapResumed   EventType = "progress.roadmap_resumed"

	// Stats events
	EventDayBecameActive EventType = "stats.day_became_active"
	EventStreakUpdated   EventType = "stats.streak_updated"
	EventStreakMilestone EventType = "stats.streak_milestone"

	// Quota events
	EventQuotaDenied   EventType = "quota.denied"
	EventQuotaConsumed EventType = "quota.consumed"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// Payload implements Event interface. Concrete events override it.
func (e BaseEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"aggregate_id": e.AggregateId}
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StepCompletedEvent is emitted when a user completes a roadmap step.
type StepCompletedEvent struct {
	BaseEvent
	UserID       string  `json:"user_id"`
	RoadmapID    string  `json:"roadmap_id"`
	StepID       string  `json:"step_id"`
	StudyMinutes int     `json:"study_minutes"`
	RoadmapPct   float64 `json:"roadmap_pct"`
}

// Payload implements Event interface.
func (e StepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"roadmap_id":    e.RoadmapID,
		"step_id":       e.StepID,
		"study_minutes": e.StudyMinutes,
		"roadmap_pct":   e.RoadmapPct,
	}
}

// NewStepCompletedEvent creates a new StepCompletedEvent.
func NewStepCompletedEvent(userID, roadmapID, stepID string, studyMinutes int, roadmapPct float64) StepCompletedEvent {
	return StepCompletedEvent{
		BaseEvent:    NewBaseEvent(EventStepCompleted, userID),
		UserID:       userID,
		RoadmapID:    roadmapID,
		StepID:       stepID,
		StudyMinutes: studyMinutes,
		RoadmapPct:   roadmapPct,
	}
}

// RoadmapCompletedEvent is emitted when every step of a roadmap is done and
// the roadmap auto-transitions to Completed.
type RoadmapCompletedEvent struct {
	BaseEvent
	UserID     string    `json:"user_id"`
	RoadmapID  string    `json:"roadmap_id"`
	TotalSteps int       `json:"total_steps"`
	StartedAt  time.Time `json:"started_at"`
}

// Payload implements Event interface.
func (e RoadmapCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"roadmap_id":  e.RoadmapID,
		"total_steps": e.TotalSteps,
		"started_at":  e.StartedAt.Format(time.RFC3339),
	}
}

// NewRoadmapCompletedEvent creates a new RoadmapCompletedEvent.
func NewRoadmapCompletedEvent(userID, roadmapID string, totalSteps int, startedAt time.Time) RoadmapCompletedEvent {
	return RoadmapCompletedEvent{
		BaseEvent:  NewBaseEvent(EventRoadmapCompleted, userID),
		UserID:     userID,
		RoadmapID:  roadmapID,
		TotalSteps: totalSteps,
		StartedAt:  startedAt,
	}
}

// RoadmapStartedEvent is emitted when a user starts a roadmap.
type RoadmapStartedEvent struct {
	BaseEvent
	UserID              string     `json:"user_id"`
	RoadmapID           string     `json:"roadmap_id"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Payload implements Event interface.
func (e RoadmapStartedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id":    e.UserID,
		"roadmap_id": e.RoadmapID,
	}
	if e.EstimatedCompletion != nil {
		p["estimated_completion"] = e.EstimatedCompletion.Format(time.RFC3339)
	}
	return p
}

// NewRoadmapStartedEvent creates a new RoadmapStartedEvent.
func NewRoadmapStartedEvent(userID, roadmapID string, estimated *time.Time) RoadmapStartedEvent {
	return RoadmapStartedEvent{
		BaseEvent:           NewBaseEvent(EventRoadmapStarted, userID),
		UserID:              userID,
		RoadmapID:           roadmapID,
		EstimatedCompletion: estimated,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Stats Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted when a day's streak number is written.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	Day       string `json:"day"` // YYYY-MM-DD
	StreakDay int    `json:"streak_day"`
	Continued bool   `json:"continued"` // false when the streak restarted at 1
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"day":        e.Day,
		"streak_day": e.StreakDay,
		"continued":  e.Continued,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID, day string, streakDay int, continued bool) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, userID),
		UserID:    userID,
		Day:       day,
		StreakDay: streakDay,
		Continued: continued,
	}
}

// StreakMilestoneEvent is emitted when a streak reaches a milestone length
// (7, 30, 100, 365 days).
type StreakMilestoneEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	StreakDay int    `json:"streak_day"`
}

// Payload implements Event interface.
func (e StreakMilestoneEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"streak_day": e.StreakDay,
	}
}

// NewStreakMilestoneEvent creates a new StreakMilestoneEvent.
func NewStreakMilestoneEvent(userID string, streakDay int) StreakMilestoneEvent {
	return StreakMilestoneEvent{
		BaseEvent: NewBaseEvent(EventStreakMilestone, userID),
		UserID:    userID,
		StreakDay: streakDay,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quota Events
// ═══════════════════════════════════════════════════════════════════════════

// QuotaConsumedEvent is emitted after a successful AI usage reservation.
type QuotaConsumedEvent struct {
	BaseEvent
	UserID            string `json:"user_id"`
	Day               string `json:"day"`
	Messages          int    `json:"messages"`
	Tokens            int    `json:"tokens"`
	RemainingMessages int    `json:"remaining_messages"`
}

// Payload implements Event interface.
func (e QuotaConsumedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            e.UserID,
		"day":                e.Day,
		"messages":           e.Messages,
		"tokens":             e.Tokens,
		"remaining_messages": e.RemainingMessages,
	}
}

// NewQuotaConsumedEvent creates a new QuotaConsumedEvent.
func NewQuotaConsumedEvent(userID, day string, messages, tokens, remainingMessages int) QuotaConsumedEvent {
	return QuotaConsumedEvent{
		BaseEvent:         NewBaseEvent(EventQuotaConsumed, userID),
		UserID:            userID,
		Day:               day,
		Messages:          messages,
		Tokens:            tokens,
		RemainingMessages: remainingMessages,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Handler and publisher contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler processes domain events.
type EventHandler interface {
	// Handle processes the event. Errors are logged by the bus, not propagated
	// to the publisher.
	Handle(event Event) error

	// Name returns a human-readable handler name for logging.
	Name() string
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc struct {
	HandlerName string
	Fn          func(event Event) error
}

// Handle implements EventHandler.
func (f EventHandlerFunc) Handle(event Event) error {
	return f.Fn(event)
}

// Name implements EventHandler.
func (f EventHandlerFunc) Name() string {
	return f.HandlerName
}

// EventPublisher publishes domain events to interested subscribers.
type EventPublisher interface {
	Publish(event Event) error
}

// NoopPublisher discards all events. Used in tests and tools that do not
// need the event pipeline.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(Event) error { return nil }
