// Package notification contains the outbound notification model. The
// engine builds notifications from domain events; delivery is an
// external collaborator behind the Sender interface.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// Type classifies a notification.
type Type string

const (
	// TypeRoadmapCompleted congratulates the user on finishing a roadmap.
	TypeRoadmapCompleted Type = "roadmap_completed"

	// TypeStreakMilestone celebrates a streak milestone (7/30/100/365 days).
	TypeStreakMilestone Type = "streak_milestone"

	// TypeStreakReminder warns that today's streak is about to break.
	TypeStreakReminder Type = "streak_reminder"
)

// IsValid checks the type is one of the known kinds.
func (t Type) IsValid() bool {
	switch t {
	case TypeRoadmapCompleted, TypeStreakMilestone, TypeStreakReminder:
		return true
	}
	return false
}

// Priority orders delivery when a sender batches.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the wire name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Notification is one outbound message to one user.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    shared.UserID          `json:"user_id"`
	Type      Type                   `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Priority  Priority               `json:"priority"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// New creates a notification with a fresh UUID.
func New(userID shared.UserID, typ Type, title, body string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// WithPriority sets the delivery priority.
func (n *Notification) WithPriority(p Priority) *Notification {
	n.Priority = p
	return n
}

// WithData attaches structured payload data.
func (n *Notification) WithData(key string, value interface{}) *Notification {
	if n.Data == nil {
		n.Data = make(map[string]interface{})
	}
	n.Data[key] = value
	return n
}

// Sender delivers notifications. Implementations live outside the
// engine; infrastructure provides adapters.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}
