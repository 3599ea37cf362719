// Package events defines the change event payloads published through the outbox.
package events

import "time"

// Event types.
const (
	TypeCalendarEventUpserted = "calendar.event_upserted"
	TypeCalendarEventDeleted  = "calendar.event_deleted"
	TypeSessionStateChanged   = "session.state_changed"
	TypeCookingCompleted      = "cooking.completed"
)

// Topics.
const (
	TopicCalendarEvents   = "calendar_events"
	TopicActivitySessions = "activity_sessions"
	TopicCookingSessions  = "cooking_sessions"
)

// Topics lists every topic the tracker publishes to.
func Topics() []string {
	return []string{TopicCalendarEvents, TopicActivitySessions, TopicCookingSessions}
}

// Route names the topic an event type is published to.
func Route(eventType string) (string, bool) {
	switch eventType {
	case TypeCalendarEventUpserted, TypeCalendarEventDeleted:
		return TopicCalendarEvents, true
	case TypeSessionStateChanged:
		return TopicActivitySessions, true
	case TypeCookingCompleted:
		return TopicCookingSessions, true
	}
	return "", false
}

// CalendarEventUpserted is emitted when a calendar event is created, updated or moved.
type CalendarEventUpserted struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Source    string    `json:"source,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarEventDeleted is emitted when a calendar event is removed.
type CalendarEventDeleted struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	DeletedAt time.Time `json:"deleted_at"`
}

// SessionStateChanged tracks fitness session transitions (planned, in progress, completed).
type SessionStateChanged struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Kind            string    `json:"kind"`
	InProgress      bool      `json:"in_progress"`
	Status          string    `json:"status"`
	DurationMinutes int       `json:"duration_minutes"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// CookingCompleted is emitted when a finished cooking session bumps a meal's cook count.
type CookingCompleted struct {
	UserID    string    `json:"user_id"`
	MealID    string    `json:"meal_id"`
	CookCount int       `json:"cook_count"`
	CookedAt  time.Time `json:"cooked_at"`
}
