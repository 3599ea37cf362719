package domain

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when no row matches; callers translate that into
// the relevant not-found error.

// CalendarRepository persists calendar events.
type CalendarRepository interface {
	InsertEvent(ctx context.Context, event CalendarEvent) error
	UpdateEvent(ctx context.Context, event CalendarEvent) error
	GetEvent(ctx context.Context, userID, id string) (*CalendarEvent, error)
	FindEventBySource(ctx context.Context, userID string, source SourceType, sourceID string) (*CalendarEvent, error)
	ListEvents(ctx context.Context, userID string, window *TimeRange) ([]CalendarEvent, error)
	DeleteEvent(ctx context.Context, userID, id string) (bool, error)
	DeleteEventsBySource(ctx context.Context, userID string, source SourceType, sourceID string) (int64, error)
}

// SchedulePatch carries the values written to a source row's schedule columns.
type SchedulePatch struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// EntityRepository performs registry-driven operations on arbitrary source tables.
type EntityRepository interface {
	EntityExists(ctx context.Context, desc SourceDescriptor, userID, id string) (bool, error)
	// ChildIDs lists the ids of the rows of rel owned by parentID.
	ChildIDs(ctx context.Context, rel ChildRelation, parentID string) ([]string, error)
	DeleteChildren(ctx context.Context, rel ChildRelation, parentID string) (int64, error)
	DeleteEntity(ctx context.Context, desc SourceDescriptor, userID, id string) (bool, error)
	UpdateSchedule(ctx context.Context, desc SourceDescriptor, userID, id string, patch SchedulePatch) (bool, error)
}

// SessionRepository persists fitness sessions in the table named by the kind.
type SessionRepository interface {
	// ListInProgress returns in-progress rows ordered newest start first.
	ListInProgress(ctx context.Context, kind ActivityKind, userID string) ([]ActivitySession, error)
	GetSession(ctx context.Context, kind ActivityKind, userID, id string) (*ActivitySession, error)
	InsertSession(ctx context.Context, kind ActivityKind, session ActivitySession) error
	UpdateSession(ctx context.Context, kind ActivityKind, session ActivitySession) error
}

// MealRepository persists meals and planned meals.
type MealRepository interface {
	GetMeal(ctx context.Context, userID, mealID string) (*Meal, error)
	InsertPlannedMeal(ctx context.Context, planned PlannedMeal) error
}

// CookingRepository persists cooking sessions and cook counts.
type CookingRepository interface {
	MealRepository
	ListActiveCooking(ctx context.Context, userID string) ([]CookingSession, error)
	GetCooking(ctx context.Context, userID, id string) (*CookingSession, error)
	InsertCooking(ctx context.Context, session CookingSession) error
	UpdateCooking(ctx context.Context, session CookingSession) error
	IncrementCookCount(ctx context.Context, userID, mealID string, at time.Time) (CookedMeal, error)
}

// WorkoutRepository persists the exercises and sets owned by a workout.
type WorkoutRepository interface {
	ListExerciseIDs(ctx context.Context, workoutID string) ([]string, error)
	InsertExercises(ctx context.Context, exercises []Exercise) error
	InsertSets(ctx context.Context, sets []WorkoutSet) error
	DeleteSets(ctx context.Context, workoutID string, ids []string) (int64, error)
	DeleteExercises(ctx context.Context, workoutID string, ids []string) (int64, error)
}

// Store is the full persistence surface required by the services.
type Store interface {
	CalendarRepository
	EntityRepository
	SessionRepository
	CookingRepository
	WorkoutRepository
}
