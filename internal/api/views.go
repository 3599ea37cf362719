package api

import (
	"time"

	"example.com/tracker/internal/domain"
)

// EventView is the wire shape of a calendar event.
type EventView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Source      string    `json:"source,omitempty"`
	SourceID    string    `json:"sourceId,omitempty"`
	Description string    `json:"description,omitempty"`
	DetailRoute string    `json:"detailRoute,omitempty"`
}

// SessionView is the wire shape of an activity session row.
type SessionView struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Kind            string     `json:"kind"`
	Name            string     `json:"name"`
	Date            string     `json:"date"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	InProgress      bool       `json:"inProgress"`
	Status          string     `json:"status,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// CookingView is the wire shape of a cooking session.
type CookingView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	MealID      string     `json:"mealId"`
	InProgress  bool       `json:"inProgress"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	CurrentStep int        `json:"currentStep"`
}

// MealView is the wire shape of a meal.
type MealView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Instructions []string `json:"instructions"`
}

// CookedMealView is the wire shape of a cook counter.
type CookedMealView struct {
	MealID       string    `json:"mealId"`
	CookCount    int       `json:"cookCount"`
	LastCookedAt time.Time `json:"lastCookedAt"`
}

// PlannedMealView is the wire shape of a planned meal.
type PlannedMealView struct {
	ID        string    `json:"id"`
	MealID    string    `json:"mealId"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"startTime"`
}

// ExerciseView is a workout exercise row.
type ExerciseView struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// SetView is a workout set row.
type SetView struct {
	ID         string  `json:"id,omitempty"`
	ExerciseID string  `json:"exerciseId"`
	Reps       int     `json:"reps"`
	Weight     float64 `json:"weight"`
	Position   int     `json:"position"`
}

const dateLayout = "2006-01-02"

func toEventView(ev domain.CalendarEvent) EventView {
	view := EventView{
		ID:          ev.ID,
		UserID:      ev.UserID,
		Title:       ev.Title,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		Source:      string(ev.Source),
		SourceID:    ev.SourceID,
		Description: ev.Description,
	}
	if ev.Linked() {
		if desc, err := domain.Resolve(ev.Source); err == nil {
			view.DetailRoute = desc.DetailRoute(ev.SourceID)
		}
	}
	return view
}

func toEventViews(events []domain.CalendarEvent) []EventView {
	out := make([]EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventView(ev))
	}
	return out
}

func toSessionView(kind string, s domain.ActivitySession) SessionView {
	return SessionView{
		ID:              s.ID,
		UserID:          s.UserID,
		Kind:            kind,
		Name:            s.Name,
		Date:            s.Date.Format(dateLayout),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes,
		InProgress:      s.InProgress,
		Status:          string(s.Status),
		Notes:           s.Notes,
	}
}

func toCookingView(c domain.CookingSession) CookingView {
	return CookingView{
		ID:          c.ID,
		UserID:      c.UserID,
		MealID:      c.MealID,
		InProgress:  c.InProgress,
		StartedAt:   c.StartedAt,
		EndedAt:     c.EndedAt,
		CurrentStep: c.CurrentStep,
	}
}
