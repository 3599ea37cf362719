package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/tracker/internal/observability"
)

// Meal is a recipe the user can cook.
type Meal struct {
	ID           string
	UserID       string
	Name         string
	Instructions []string
}

func (m Meal) EntityID() string    { return m.ID }
func (m Meal) DisplayName() string { return m.Name }

// MealIngredient is a child row of a meal.
type MealIngredient struct {
	ID       string
	MealID   string
	Name     string
	Quantity string
}

// PlannedMeal schedules a meal for a future slot.
type PlannedMeal struct {
	ID        string
	UserID    string
	MealID    string
	Title     string
	Date      time.Time
	StartTime time.Time
	CreatedAt time.Time
}

func (p PlannedMeal) EntityID() string    { return p.ID }
func (p PlannedMeal) DisplayName() string { return p.Title }

// CookingSession tracks a meal being cooked step by step.
type CookingSession struct {
	ID          string
	UserID      string
	MealID      string
	InProgress  bool
	StartedAt   time.Time
	EndedAt     *time.Time
	CurrentStep int
}

// CookedMeal is the per-meal completion counter.
type CookedMeal struct {
	UserID       string
	MealID       string
	CookCount    int
	LastCookedAt time.Time
}

// CookingStartResult reports the live cooking session.
type CookingStartResult struct {
	Session CookingSession
	Meal    Meal
	Resumed bool
}

// CookingFinishResult reports the finished session, the updated counter and
// any non-fatal failures.
type CookingFinishResult struct {
	Session  CookingSession
	Cooked   *CookedMeal
	Event    *CalendarEvent
	Warnings []error
}

// CookingManager runs the cooking session lifecycle.
type CookingManager struct {
	cooking  CookingRepository
	calendar *CalendarService
	locks    *keyedMutex
	states   *stateTable
	settings
}

// NewCookingManager constructs a CookingManager.
func NewCookingManager(cooking CookingRepository, calendar *CalendarService, opts ...Option) *CookingManager {
	return &CookingManager{
		cooking:  cooking,
		calendar: calendar,
		locks:    newKeyedMutex(),
		states:   newStateTable(),
		settings: newSettings("cooking", opts),
	}
}

// State returns the cooking lifecycle state last observed for the user.
func (m *CookingManager) State(userID string) SessionState {
	return m.states.get(userID)
}

// Current returns the in-progress cooking session, or nil. Strays are cancelled.
func (m *CookingManager) Current(ctx context.Context, userID string) (*CookingSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	current, err := m.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		m.states.set(userID, StateIdle)
	} else {
		m.states.set(userID, StateInProgress)
	}
	return current, nil
}

// Start begins cooking mealID, or returns the session already in progress.
func (m *CookingManager) Start(ctx context.Context, userID, mealID string) (CookingStartResult, error) {
	if strings.TrimSpace(userID) == "" {
		return CookingStartResult{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(mealID) == "" {
		return CookingStartResult{}, invalid("mealId", "is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	previous := m.states.get(userID)
	m.states.set(userID, StateStarting)
	result, err := m.start(ctx, userID, mealID)
	if err != nil {
		m.states.set(userID, previous)
		return CookingStartResult{}, err
	}
	m.states.set(userID, StateInProgress)
	return result, nil
}

func (m *CookingManager) start(ctx context.Context, userID, mealID string) (CookingStartResult, error) {
	current, err := m.current(ctx, userID)
	if err != nil {
		return CookingStartResult{}, err
	}
	if current != nil {
		meal, err := m.meal(ctx, userID, current.MealID)
		if err != nil {
			return CookingStartResult{}, err
		}
		observability.RecordSessionTransition("cooking", "start_replayed")
		return CookingStartResult{Session: *current, Meal: *meal, Resumed: true}, nil
	}

	meal, err := m.meal(ctx, userID, mealID)
	if err != nil {
		return CookingStartResult{}, err
	}
	step := 0
	if len(meal.Instructions) > 0 {
		step = 1
	}
	session := CookingSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		MealID:      meal.ID,
		InProgress:  true,
		StartedAt:   m.now(),
		CurrentStep: step,
	}
	if err := m.cooking.InsertCooking(ctx, session); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			winner, readErr := m.current(ctx, userID)
			if readErr != nil {
				return CookingStartResult{}, readErr
			}
			if winner == nil {
				return CookingStartResult{}, err
			}
			return m.resumed(ctx, userID, *winner)
		}
		return CookingStartResult{}, err
	}
	observability.RecordSessionTransition("cooking", "started")
	return CookingStartResult{Session: session, Meal: *meal}, nil
}

func (m *CookingManager) resumed(ctx context.Context, userID string, session CookingSession) (CookingStartResult, error) {
	meal, err := m.meal(ctx, userID, session.MealID)
	if err != nil {
		return CookingStartResult{}, err
	}
	observability.RecordSessionTransition("cooking", "start_replayed")
	return CookingStartResult{Session: session, Meal: *meal, Resumed: true}, nil
}

// SetStep moves the session to step, which must lie within the meal's instructions.
func (m *CookingManager) SetStep(ctx context.Context, userID, sessionID string, step int) (CookingSession, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	session, err := m.live(ctx, userID, sessionID)
	if err != nil {
		return CookingSession{}, err
	}
	meal, err := m.meal(ctx, userID, session.MealID)
	if err != nil {
		return CookingSession{}, err
	}
	if step < 1 || step > len(meal.Instructions) {
		return CookingSession{}, fmt.Errorf("%w: step %d of %d", ErrStepOutOfRange, step, len(meal.Instructions))
	}
	session.CurrentStep = step
	if err := m.cooking.UpdateCooking(ctx, *session); err != nil {
		return CookingSession{}, err
	}
	return *session, nil
}

// Finish ends the session, bumps the meal's cook count and mirrors the meal on
// the calendar. Only the session write is fatal.
func (m *CookingManager) Finish(ctx context.Context, userID, sessionID string) (CookingFinishResult, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	previous := m.states.get(userID)
	m.states.set(userID, StateEnding)
	session, err := m.stop(ctx, userID, sessionID)
	if err != nil {
		m.states.set(userID, previous)
		return CookingFinishResult{}, err
	}
	m.states.set(userID, StateIdle)
	observability.RecordSessionTransition("cooking", "completed")

	result := CookingFinishResult{Session: session}
	cooked, err := m.cooking.IncrementCookCount(ctx, userID, session.MealID, *session.EndedAt)
	if err != nil {
		m.logger.Printf("cook count update failed for meal %s: %v", session.MealID, err)
		result.Warnings = append(result.Warnings, fmt.Errorf("update cook count: %w", err))
	} else {
		result.Cooked = &cooked
	}

	meal, err := m.meal(ctx, userID, session.MealID)
	if err != nil {
		result.Warnings = append(result.Warnings, err)
		return result, nil
	}
	minutes := durationMinutes(session.StartedAt, *session.EndedAt)
	event, err := m.calendar.CreateForEntity(ctx, SourceMeal, meal, userID, MirrorSpec{
		Start:       session.StartedAt,
		End:         session.EndedAt,
		Description: describeCompletion(minutes),
	})
	if err != nil {
		result.Warnings = append(result.Warnings, err)
	} else {
		result.Event = &event
	}
	return result, nil
}

// Cancel abandons the session. No cook count or calendar entry is written.
func (m *CookingManager) Cancel(ctx context.Context, userID, sessionID string) (CookingSession, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	session, err := m.stop(ctx, userID, sessionID)
	if err != nil {
		return CookingSession{}, err
	}
	m.states.set(userID, StateIdle)
	observability.RecordSessionTransition("cooking", "cancelled")
	return session, nil
}

func (m *CookingManager) stop(ctx context.Context, userID, sessionID string) (CookingSession, error) {
	session, err := m.live(ctx, userID, sessionID)
	if err != nil {
		return CookingSession{}, err
	}
	now := m.now()
	session.InProgress = false
	session.EndedAt = &now
	if err := m.cooking.UpdateCooking(ctx, *session); err != nil {
		return CookingSession{}, err
	}
	return *session, nil
}

func (m *CookingManager) live(ctx context.Context, userID, sessionID string) (*CookingSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, invalid("sessionId", "is required")
	}
	session, err := m.cooking.GetCooking(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.InProgress {
		return nil, ErrSessionNotInProgress
	}
	return session, nil
}

func (m *CookingManager) meal(ctx context.Context, userID, mealID string) (*Meal, error) {
	meal, err := m.cooking.GetMeal(ctx, userID, mealID)
	if err != nil {
		return nil, err
	}
	if meal == nil {
		return nil, ErrMealNotFound
	}
	return meal, nil
}

// current keeps the newest in-progress row and cancels the rest.
func (m *CookingManager) current(ctx context.Context, userID string) (*CookingSession, error) {
	rows, err := m.cooking.ListActiveCooking(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	now := m.now()
	for _, stray := range rows[1:] {
		stray.InProgress = false
		stray.EndedAt = &now
		if err := m.cooking.UpdateCooking(ctx, stray); err != nil {
			m.logger.Printf("cancel stray cooking session %s: %v", stray.ID, err)
			continue
		}
		observability.RecordSessionTransition("cooking", "stray_reconciled")
	}
	current := rows[0]
	return &current, nil
}

// MealPlanner schedules meals and mirrors them on the calendar.
type MealPlanner struct {
	meals    MealRepository
	calendar *CalendarService
	settings
}

// NewMealPlanner constructs a MealPlanner.
func NewMealPlanner(meals MealRepository, calendar *CalendarService, opts ...Option) *MealPlanner {
	return &MealPlanner{meals: meals, calendar: calendar, settings: newSettings("meals", opts)}
}

// MealPlanResult reports the planned meal and its mirror.
type MealPlanResult struct {
	Planned  PlannedMeal
	Event    *CalendarEvent
	Warnings []error
}

// Plan schedules mealID at start.
func (p *MealPlanner) Plan(ctx context.Context, userID, mealID string, start time.Time, end *time.Time) (MealPlanResult, error) {
	if strings.TrimSpace(userID) == "" {
		return MealPlanResult{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(mealID) == "" {
		return MealPlanResult{}, invalid("mealId", "is required")
	}
	if start.IsZero() {
		return MealPlanResult{}, invalid("start", "is required")
	}
	if end != nil && end.Before(start) {
		return MealPlanResult{}, invalid("end", "must not precede start")
	}

	meal, err := p.meals.GetMeal(ctx, userID, mealID)
	if err != nil {
		return MealPlanResult{}, err
	}
	if meal == nil {
		return MealPlanResult{}, ErrMealNotFound
	}

	planned := PlannedMeal{
		ID:        uuid.NewString(),
		UserID:    userID,
		MealID:    meal.ID,
		Title:     meal.Name,
		Date:      dateOf(start, p.loc),
		StartTime: start.UTC(),
		CreatedAt: p.now(),
	}
	if err := p.meals.InsertPlannedMeal(ctx, planned); err != nil {
		return MealPlanResult{}, err
	}

	result := MealPlanResult{Planned: planned}
	event, err := p.calendar.CreateForEntity(ctx, SourcePlannedMeal, planned, userID, MirrorSpec{
		Start:       planned.StartTime,
		End:         end,
		Description: string(StatusPlanned),
	})
	if err != nil {
		result.Warnings = append(result.Warnings, err)
	} else {
		result.Event = &event
	}
	return result, nil
}
