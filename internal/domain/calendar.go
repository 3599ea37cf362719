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

// CalendarEvent mirrors a source entity (or stands alone when Source is empty).
type CalendarEvent struct {
	ID          string
	UserID      string
	Title       string
	StartTime   time.Time
	EndTime     time.Time
	Source      SourceType
	SourceID    string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Linked reports whether the event mirrors a source entity.
func (e CalendarEvent) Linked() bool {
	return e.Source != "" && e.SourceID != ""
}

// TimeRange bounds a calendar listing. Zero bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// EventPatch lists the schedule-relevant fields copied from a source entity.
type EventPatch struct {
	Title       *string
	StartTime   *time.Time
	EndTime     *time.Time
	Description *string
}

// apply mutates event and reports whether anything changed. Moving the start
// without an explicit end keeps the event's length.
func (p EventPatch) apply(event *CalendarEvent) bool {
	changed := false
	if p.Title != nil && *p.Title != event.Title {
		event.Title = *p.Title
		changed = true
	}
	if p.Description != nil && *p.Description != event.Description {
		event.Description = *p.Description
		changed = true
	}
	if p.StartTime != nil && !p.StartTime.Equal(event.StartTime) {
		length := event.EndTime.Sub(event.StartTime)
		event.StartTime = p.StartTime.UTC()
		if p.EndTime == nil {
			event.EndTime = event.StartTime.Add(length)
		}
		changed = true
	}
	if p.EndTime != nil && !p.EndTime.Equal(event.EndTime) {
		event.EndTime = p.EndTime.UTC()
		changed = true
	}
	return changed
}

// MirrorSpec describes the calendar footprint of a source entity.
type MirrorSpec struct {
	Start       time.Time
	End         *time.Time
	Description string
}

// RescheduleInput moves an event, optionally rewriting the linked source row.
type RescheduleInput struct {
	EventID            string
	UserID             string
	NewStart           time.Time
	NewEnd             *time.Time
	UpdateLinkedEntity bool
}

// RescheduleResult is the moved event plus any linked-entity warnings.
type RescheduleResult struct {
	Event    CalendarEvent
	Warnings []error
}

// CalendarService keeps calendar events consistent with their source entities.
type CalendarService struct {
	events   CalendarRepository
	entities EntityRepository
	settings
}

// NewCalendarService constructs a CalendarService.
func NewCalendarService(events CalendarRepository, entities EntityRepository, opts ...Option) *CalendarService {
	return &CalendarService{
		events:   events,
		entities: entities,
		settings: newSettings("calendar", opts),
	}
}

// CreateForEntity mirrors entity onto the calendar. An existing mirror for the
// same source key is updated in place so at most one event exists per entity.
// Errors are *MirrorSyncError; the source entity write is never undone.
func (s *CalendarService) CreateForEntity(ctx context.Context, source SourceType, entity Titled, userID string, spec MirrorSpec) (CalendarEvent, error) {
	desc, err := Resolve(source)
	if err != nil {
		return CalendarEvent{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return CalendarEvent{}, invalid("userId", "is required")
	}
	if entity == nil || strings.TrimSpace(entity.EntityID()) == "" {
		return CalendarEvent{}, invalid("entity", "must have an id")
	}
	if spec.Start.IsZero() {
		return CalendarEvent{}, invalid("startTime", "is required")
	}

	now := s.now()
	event := CalendarEvent{
		UserID:      userID,
		Title:       desc.Title(entity),
		StartTime:   spec.Start.UTC(),
		EndTime:     s.endFor(spec.Start, spec.End),
		Source:      source,
		SourceID:    entity.EntityID(),
		Description: spec.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, err := s.upsert(ctx, event)
	if err != nil {
		return CalendarEvent{}, s.mirrorFailure("create", source, entity.EntityID(), err)
	}
	observability.RecordMirrorWrite("create")
	return stored, nil
}

// UpdateFromSource copies changed fields onto the mirror. A source without a
// mirror is not an error.
func (s *CalendarService) UpdateFromSource(ctx context.Context, userID string, source SourceType, sourceID string, patch EventPatch) error {
	if _, err := Resolve(source); err != nil {
		return err
	}
	existing, err := s.events.FindEventBySource(ctx, userID, source, sourceID)
	if err != nil {
		return s.mirrorFailure("update", source, sourceID, err)
	}
	if existing == nil {
		return nil
	}
	if !patch.apply(existing) {
		return nil
	}
	existing.UpdatedAt = s.now()
	if err := s.events.UpdateEvent(ctx, *existing); err != nil {
		return s.mirrorFailure("update", source, sourceID, err)
	}
	observability.RecordMirrorWrite("update")
	return nil
}

// DeleteForEntity removes the mirror of a source entity. A missing mirror is not an error.
func (s *CalendarService) DeleteForEntity(ctx context.Context, userID string, source SourceType, sourceID string) error {
	return s.deleteBySource(ctx, "delete", userID, source, sourceID)
}

// RetirePlanned removes the planned mirror once an activity goes live, so the
// calendar no longer shows a planned entry for it.
func (s *CalendarService) RetirePlanned(ctx context.Context, userID string, source SourceType, sourceID string) error {
	return s.deleteBySource(ctx, "retire_planned", userID, source, sourceID)
}

func (s *CalendarService) deleteBySource(ctx context.Context, op, userID string, source SourceType, sourceID string) error {
	if _, err := Resolve(source); err != nil {
		return err
	}
	removed, err := s.events.DeleteEventsBySource(ctx, userID, source, sourceID)
	if err != nil {
		return s.mirrorFailure(op, source, sourceID, err)
	}
	if removed > 0 {
		observability.RecordMirrorWrite(op)
	}
	return nil
}

// List returns a user's events ordered by start time.
func (s *CalendarService) List(ctx context.Context, userID string, window *TimeRange) ([]CalendarEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}
	return s.events.ListEvents(ctx, userID, window)
}

// Insert stores a client supplied event. Linked events go through the same
// upsert path as mirrors so the one-event-per-source rule holds.
func (s *CalendarService) Insert(ctx context.Context, event CalendarEvent) (CalendarEvent, error) {
	if strings.TrimSpace(event.UserID) == "" {
		return CalendarEvent{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(event.Title) == "" {
		return CalendarEvent{}, invalid("title", "is required")
	}
	if event.StartTime.IsZero() {
		return CalendarEvent{}, invalid("startTime", "is required")
	}
	if event.Source != "" {
		if _, err := Resolve(event.Source); err != nil {
			return CalendarEvent{}, invalid("source", err.Error())
		}
		if strings.TrimSpace(event.SourceID) == "" {
			return CalendarEvent{}, invalid("sourceId", "is required when source is set")
		}
	}

	var end *time.Time
	if !event.EndTime.IsZero() {
		end = &event.EndTime
	}
	if end != nil && end.Before(event.StartTime) {
		return CalendarEvent{}, invalid("endTime", "must not precede startTime")
	}
	now := s.now()
	event.StartTime = event.StartTime.UTC()
	event.EndTime = s.endFor(event.StartTime, end)
	event.CreatedAt = now
	event.UpdatedAt = now

	if event.Linked() {
		return s.upsert(ctx, event)
	}
	event.ID = uuid.NewString()
	if err := s.events.InsertEvent(ctx, event); err != nil {
		return CalendarEvent{}, err
	}
	return event, nil
}

// Delete removes a single event by id.
func (s *CalendarService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("userId", "is required")
	}
	if strings.TrimSpace(id) == "" {
		return invalid("id", "is required")
	}
	removed, err := s.events.DeleteEvent(ctx, userID, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrEventNotFound
	}
	return nil
}

// Reschedule moves an event. Without NewEnd the event keeps its length. With
// UpdateLinkedEntity the source row's schedule columns follow the event; a
// failure there is returned as a warning and the move stands.
func (s *CalendarService) Reschedule(ctx context.Context, in RescheduleInput) (RescheduleResult, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return RescheduleResult{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(in.EventID) == "" {
		return RescheduleResult{}, invalid("id", "is required")
	}
	if in.NewStart.IsZero() {
		return RescheduleResult{}, invalid("newStart", "is required")
	}
	if in.NewEnd != nil && in.NewEnd.Before(in.NewStart) {
		return RescheduleResult{}, invalid("newEnd", "must not precede newStart")
	}

	event, err := s.events.GetEvent(ctx, in.UserID, in.EventID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if event == nil {
		return RescheduleResult{}, ErrEventNotFound
	}

	length := event.EndTime.Sub(event.StartTime)
	if length <= 0 {
		length = s.defaultDuration
	}
	event.StartTime = in.NewStart.UTC()
	event.EndTime = event.StartTime.Add(length)
	if in.NewEnd != nil {
		event.EndTime = in.NewEnd.UTC()
	}
	event.UpdatedAt = s.now()

	if err := s.events.UpdateEvent(ctx, *event); err != nil {
		return RescheduleResult{}, err
	}

	result := RescheduleResult{Event: *event}
	propagated := false
	if in.UpdateLinkedEntity && event.Linked() {
		if err := s.propagate(ctx, *event); err != nil {
			result.Warnings = append(result.Warnings, err)
		} else {
			propagated = true
		}
	}
	observability.RecordReschedule(propagated)
	return result, nil
}

func (s *CalendarService) propagate(ctx context.Context, event CalendarEvent) error {
	desc, err := Resolve(event.Source)
	if err != nil {
		return s.mirrorFailure("propagate", event.Source, event.SourceID, err)
	}
	if desc.Schedule.Empty() {
		return nil
	}
	patch := SchedulePatch{
		Date:  dateOf(event.StartTime, s.loc),
		Start: event.StartTime,
		End:   event.EndTime,
	}
	updated, err := s.entities.UpdateSchedule(ctx, desc, event.UserID, event.SourceID, patch)
	if err != nil {
		return s.mirrorFailure("propagate", event.Source, event.SourceID, err)
	}
	if !updated {
		return s.mirrorFailure("propagate", event.Source, event.SourceID, ErrEntityNotFound)
	}
	return nil
}

// upsert enforces the one-event-per-source invariant. A concurrent insert that
// trips the store's unique index is resolved by updating the winner.
func (s *CalendarService) upsert(ctx context.Context, event CalendarEvent) (CalendarEvent, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.events.FindEventBySource(ctx, event.UserID, event.Source, event.SourceID)
		if err != nil {
			return CalendarEvent{}, err
		}
		if existing != nil {
			event.ID = existing.ID
			event.CreatedAt = existing.CreatedAt
			if err := s.events.UpdateEvent(ctx, event); err != nil {
				return CalendarEvent{}, err
			}
			return event, nil
		}

		event.ID = uuid.NewString()
		err = s.events.InsertEvent(ctx, event)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, ErrEventConflict) {
			return CalendarEvent{}, err
		}
	}
	return CalendarEvent{}, ErrEventConflict
}

func (s *CalendarService) endFor(start time.Time, end *time.Time) time.Time {
	if end == nil || end.IsZero() || end.Before(start) {
		return start.UTC().Add(s.defaultDuration)
	}
	return end.UTC()
}

func (s *CalendarService) mirrorFailure(op string, source SourceType, sourceID string, err error) error {
	observability.RecordMirrorFailure(op)
	syncErr := &MirrorSyncError{Op: op, Source: source, SourceID: sourceID, Err: err}
	s.logger.Printf("%v", syncErr)
	return syncErr
}

// describeCompletion renders the mirror description for a finished activity.
func describeCompletion(minutes int) string {
	return fmt.Sprintf("completed · %d min", minutes)
}
