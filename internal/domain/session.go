package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/tracker/internal/observability"
)

// SessionStatus is the persisted status column of a session row.
type SessionStatus string

const (
	StatusNone      SessionStatus = ""
	StatusPlanned   SessionStatus = "planned"
	StatusCompleted SessionStatus = "completed"
)

// SessionState is the lifecycle state reported to clients.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateStarting   SessionState = "starting"
	StateInProgress SessionState = "in_progress"
	StateEnding     SessionState = "ending"
)

// ActivityKind describes one fitness session table.
type ActivityKind struct {
	Name        string
	Table       string
	NameColumn  string
	Source      SourceType
	DefaultName string
}

var (
	KindWorkout    = ActivityKind{Name: "workout", Table: "fitness_workouts", NameColumn: "title", Source: SourceWorkout, DefaultName: "Workout"}
	KindCardio     = ActivityKind{Name: "cardio", Table: "fitness_cardio", NameColumn: "activity_type", Source: SourceCardio, DefaultName: "Cardio"}
	KindSport      = ActivityKind{Name: "sport", Table: "fitness_sports", NameColumn: "activity_type", Source: SourceSport, DefaultName: "Sport"}
	KindStretching = ActivityKind{Name: "stretching", Table: "fitness_stretching", NameColumn: "title", Source: SourceStretching, DefaultName: "Stretching"}
)

// Kinds lists the fitness session kinds.
func Kinds() []ActivityKind {
	return []ActivityKind{KindWorkout, KindCardio, KindSport, KindStretching}
}

// ParseKind resolves a kind by name.
func ParseKind(raw string) (ActivityKind, error) {
	name := strings.TrimSpace(strings.ToLower(raw))
	for _, kind := range Kinds() {
		if kind.Name == name {
			return kind, nil
		}
	}
	return ActivityKind{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// ActivitySession is a workout, cardio, sport or stretching row.
type ActivitySession struct {
	ID              string
	UserID          string
	Name            string
	Date            time.Time
	StartTime       *time.Time
	EndTime         *time.Time
	DurationMinutes int
	InProgress      bool
	Status          SessionStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s ActivitySession) EntityID() string    { return s.ID }
func (s ActivitySession) DisplayName() string { return s.Name }

// StartInput is the payload of a start request. PlannedID promotes an existing
// planned row instead of inserting a new one.
type StartInput struct {
	Name      string
	Notes     string
	PlannedID string
}

// StartResult reports the live session. Resumed is set when an in-progress
// session already existed and was returned unchanged.
type StartResult struct {
	Session  ActivitySession
	Resumed  bool
	Promoted bool
	Warnings []error
}

// EndResult reports the completed session and any calendar warnings.
type EndResult struct {
	Session  ActivitySession
	Warnings []error
}

// PlanInput schedules a future session.
type PlanInput struct {
	Name  string
	Notes string
	Start time.Time
	End   *time.Time
}

// PlanResult reports the planned row and its mirror.
type PlanResult struct {
	Session  ActivitySession
	Event    *CalendarEvent
	Warnings []error
}

// SessionManager runs the session lifecycle for one activity kind.
type SessionManager struct {
	kind     ActivityKind
	sessions SessionRepository
	calendar *CalendarService
	locks    *keyedMutex
	states   *stateTable
	settings
}

// NewSessionManager constructs a SessionManager for kind.
func NewSessionManager(kind ActivityKind, sessions SessionRepository, calendar *CalendarService, opts ...Option) *SessionManager {
	return &SessionManager{
		kind:     kind,
		sessions: sessions,
		calendar: calendar,
		locks:    newKeyedMutex(),
		states:   newStateTable(),
		settings: newSettings("sessions:"+kind.Name, opts),
	}
}

// Kind returns the activity kind managed.
func (m *SessionManager) Kind() ActivityKind { return m.kind }

// State returns the lifecycle state last observed for the user.
func (m *SessionManager) State(userID string) SessionState {
	return m.states.get(userID)
}

// Refresh returns the user's in-progress session, or nil. Extra in-progress
// rows left behind by an earlier race are ended; the newest row is kept.
func (m *SessionManager) Refresh(ctx context.Context, userID string) (*ActivitySession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	active, err := m.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		m.states.set(userID, StateIdle)
	} else {
		m.states.set(userID, StateInProgress)
	}
	return active, nil
}

// Start begins a session. If one is already in progress it is returned
// unchanged, which makes a double submit harmless.
func (m *SessionManager) Start(ctx context.Context, userID string, in StartInput) (StartResult, error) {
	if strings.TrimSpace(userID) == "" {
		return StartResult{}, invalid("userId", "is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	previous := m.states.get(userID)
	m.states.set(userID, StateStarting)

	result, err := m.start(ctx, userID, in)
	if err != nil {
		m.states.set(userID, previous)
		return StartResult{}, err
	}
	m.states.set(userID, StateInProgress)
	return result, nil
}

func (m *SessionManager) start(ctx context.Context, userID string, in StartInput) (StartResult, error) {
	active, err := m.active(ctx, userID)
	if err != nil {
		return StartResult{}, err
	}
	if active != nil {
		observability.RecordSessionTransition(m.kind.Name, "start_replayed")
		return StartResult{Session: *active, Resumed: true}, nil
	}

	now := m.now()
	if strings.TrimSpace(in.PlannedID) != "" {
		return m.promote(ctx, userID, in, now)
	}

	session := ActivitySession{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       fallback(in.Name, m.kind.DefaultName),
		Date:       dateOf(now, m.loc),
		StartTime:  &now,
		InProgress: true,
		Status:     StatusNone,
		Notes:      in.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.sessions.InsertSession(ctx, m.kind, session); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return m.replayWinner(ctx, userID)
		}
		return StartResult{}, err
	}
	observability.RecordSessionTransition(m.kind.Name, "started")
	return StartResult{Session: session}, nil
}

// promote turns a planned row into the live session, reusing its id, and
// retires the planned mirror.
func (m *SessionManager) promote(ctx context.Context, userID string, in StartInput, now time.Time) (StartResult, error) {
	planned, err := m.sessions.GetSession(ctx, m.kind, userID, in.PlannedID)
	if err != nil {
		return StartResult{}, err
	}
	if planned == nil {
		return StartResult{}, ErrSessionNotFound
	}
	if planned.Status != StatusPlanned {
		return StartResult{}, invalid("plannedId", "does not reference a planned session")
	}

	planned.InProgress = true
	planned.Status = StatusCompleted
	planned.StartTime = &now
	planned.EndTime = nil
	planned.Date = dateOf(now, m.loc)
	planned.UpdatedAt = now
	if name := strings.TrimSpace(in.Name); name != "" {
		planned.Name = name
	}
	if in.Notes != "" {
		planned.Notes = in.Notes
	}

	if err := m.sessions.UpdateSession(ctx, m.kind, *planned); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return m.replayWinner(ctx, userID)
		}
		return StartResult{}, err
	}
	observability.RecordSessionTransition(m.kind.Name, "promoted")

	result := StartResult{Session: *planned, Promoted: true}
	if err := m.calendar.RetirePlanned(ctx, userID, m.kind.Source, planned.ID); err != nil {
		result.Warnings = append(result.Warnings, err)
	}
	return result, nil
}

func (m *SessionManager) replayWinner(ctx context.Context, userID string) (StartResult, error) {
	active, err := m.active(ctx, userID)
	if err != nil {
		return StartResult{}, err
	}
	if active == nil {
		return StartResult{}, ErrSessionConflict
	}
	observability.RecordSessionTransition(m.kind.Name, "start_replayed")
	return StartResult{Session: *active, Resumed: true}, nil
}

// End completes an in-progress session. Calendar cleanup runs afterwards and
// its failures are returned as warnings; the end itself stands.
func (m *SessionManager) End(ctx context.Context, userID, sessionID string) (EndResult, error) {
	if strings.TrimSpace(userID) == "" {
		return EndResult{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return EndResult{}, invalid("sessionId", "is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	previous := m.states.get(userID)
	m.states.set(userID, StateEnding)

	session, err := m.sessions.GetSession(ctx, m.kind, userID, sessionID)
	if err == nil && session == nil {
		err = ErrSessionNotFound
	}
	if err == nil && !session.InProgress {
		err = ErrSessionNotInProgress
	}
	if err != nil {
		m.states.set(userID, previous)
		return EndResult{}, err
	}

	result, err := m.complete(ctx, userID, *session, m.now())
	if err != nil {
		m.states.set(userID, previous)
		return EndResult{}, err
	}
	m.states.set(userID, StateIdle)
	return result, nil
}

func (m *SessionManager) complete(ctx context.Context, userID string, session ActivitySession, now time.Time) (EndResult, error) {
	start := now
	if session.StartTime != nil {
		start = *session.StartTime
	}
	session.DurationMinutes = durationMinutes(start, now)
	session.InProgress = false
	session.EndTime = &now
	session.Status = StatusCompleted
	session.UpdatedAt = now

	if err := m.sessions.UpdateSession(ctx, m.kind, session); err != nil {
		return EndResult{}, err
	}
	observability.RecordSessionTransition(m.kind.Name, "completed")

	result := EndResult{Session: session}
	if err := m.calendar.RetirePlanned(ctx, userID, m.kind.Source, session.ID); err != nil {
		m.logger.Printf("planned mirror cleanup failed for %s %s: %v", m.kind.Name, session.ID, err)
		result.Warnings = append(result.Warnings, err)
	}
	end := now
	spec := MirrorSpec{Start: start, End: &end, Description: describeCompletion(session.DurationMinutes)}
	if _, err := m.calendar.CreateForEntity(ctx, m.kind.Source, session, userID, spec); err != nil {
		result.Warnings = append(result.Warnings, err)
	}
	return result, nil
}

// Plan stores a future session and mirrors it on the calendar.
func (m *SessionManager) Plan(ctx context.Context, userID string, in PlanInput) (PlanResult, error) {
	if strings.TrimSpace(userID) == "" {
		return PlanResult{}, invalid("userId", "is required")
	}
	if in.Start.IsZero() {
		return PlanResult{}, invalid("start", "is required")
	}
	if in.End != nil && in.End.Before(in.Start) {
		return PlanResult{}, invalid("end", "must not precede start")
	}

	now := m.now()
	start := in.Start.UTC()
	session := ActivitySession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      fallback(in.Name, m.kind.DefaultName),
		Date:      dateOf(start, m.loc),
		StartTime: &start,
		Status:    StatusPlanned,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.End != nil {
		end := in.End.UTC()
		session.EndTime = &end
	}
	if err := m.sessions.InsertSession(ctx, m.kind, session); err != nil {
		return PlanResult{}, err
	}
	observability.RecordSessionTransition(m.kind.Name, "planned")

	result := PlanResult{Session: session}
	event, err := m.calendar.CreateForEntity(ctx, m.kind.Source, session, userID, MirrorSpec{
		Start:       start,
		End:         session.EndTime,
		Description: string(StatusPlanned),
	})
	if err != nil {
		result.Warnings = append(result.Warnings, err)
	} else {
		result.Event = &event
	}
	return result, nil
}

// active returns the newest in-progress row and ends any strays.
func (m *SessionManager) active(ctx context.Context, userID string) (*ActivitySession, error) {
	rows, err := m.sessions.ListInProgress(ctx, m.kind, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		m.reconcile(ctx, userID, rows[1:])
	}
	active := rows[0]
	return &active, nil
}

func (m *SessionManager) reconcile(ctx context.Context, userID string, strays []ActivitySession) {
	var errs error
	now := m.now()
	for _, stray := range strays {
		if _, err := m.complete(ctx, userID, stray, now); err != nil {
			errs = errors.Join(errs, fmt.Errorf("end stray %s: %w", stray.ID, err))
			continue
		}
		observability.RecordSessionTransition(m.kind.Name, "stray_reconciled")
	}
	m.logger.Printf("reconciled %d stray in-progress %s sessions for user %s", len(strays), m.kind.Name, userID)
	if errs != nil {
		m.logger.Printf("stray reconciliation incomplete: %v", errs)
	}
}

// durationMinutes rounds the elapsed time to whole minutes.
func durationMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(float64(elapsed) / float64(time.Minute)))
}
