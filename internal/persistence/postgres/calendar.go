package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/events"
)

const eventColumns = `id, user_id, title, start_time, end_time, COALESCE(source, ''), COALESCE(source_id, ''), description, created_at, updated_at`

func scanEvent(row pgx.Row) (domain.CalendarEvent, error) {
	var ev domain.CalendarEvent
	var source string
	err := row.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.StartTime, &ev.EndTime, &source, &ev.SourceID, &ev.Description, &ev.CreatedAt, &ev.UpdatedAt)
	ev.Source = domain.SourceType(source)
	return ev, err
}

func upsertedPayload(ev domain.CalendarEvent) events.CalendarEventUpserted {
	return events.CalendarEventUpserted{
		EventID:   ev.ID,
		UserID:    ev.UserID,
		Title:     ev.Title,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		Source:    string(ev.Source),
		SourceID:  ev.SourceID,
		UpdatedAt: ev.UpdatedAt,
	}
}

// InsertEvent stores a new event. A second mirror for the same source key
// returns domain.ErrEventConflict.
func (s *Store) InsertEvent(ctx context.Context, ev domain.CalendarEvent) error {
	err := s.withUser(ctx, ev.UserID, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO calendar_events (id, user_id, title, start_time, end_time, source, source_id, description, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
		if _, err := tx.Exec(ctx, stmt, ev.ID, ev.UserID, ev.Title, ev.StartTime, ev.EndTime,
			nullIfEmpty(string(ev.Source)), nullIfEmpty(ev.SourceID), ev.Description, ev.CreatedAt, ev.UpdatedAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, ev.UserID, "calendar_event", ev.ID, events.TypeCalendarEventUpserted, ev.UserID, upsertedPayload(ev))
	})
	if isUniqueViolation(err) {
		return domain.ErrEventConflict
	}
	return err
}

// UpdateEvent rewrites the mutable fields of an event.
func (s *Store) UpdateEvent(ctx context.Context, ev domain.CalendarEvent) error {
	return s.withUser(ctx, ev.UserID, func(tx pgx.Tx) error {
		const stmt = `UPDATE calendar_events SET title=$1, start_time=$2, end_time=$3, description=$4, updated_at=$5
            WHERE id=$6 AND user_id=$7`
		tag, err := tx.Exec(ctx, stmt, ev.Title, ev.StartTime, ev.EndTime, ev.Description, ev.UpdatedAt, ev.ID, ev.UserID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrEventNotFound
		}
		return insertOutbox(ctx, tx, ev.UserID, "calendar_event", ev.ID, events.TypeCalendarEventUpserted, ev.UserID, upsertedPayload(ev))
	})
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, userID, id string) (*domain.CalendarEvent, error) {
	return s.queryEvent(ctx, userID, `SELECT `+eventColumns+` FROM calendar_events WHERE user_id=$1 AND id=$2`, userID, id)
}

// FindEventBySource retrieves the mirror of a source entity.
func (s *Store) FindEventBySource(ctx context.Context, userID string, source domain.SourceType, sourceID string) (*domain.CalendarEvent, error) {
	return s.queryEvent(ctx, userID, `SELECT `+eventColumns+` FROM calendar_events WHERE user_id=$1 AND source=$2 AND source_id=$3`,
		userID, string(source), sourceID)
}

func (s *Store) queryEvent(ctx context.Context, userID, query string, args ...interface{}) (*domain.CalendarEvent, error) {
	var found *domain.CalendarEvent
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		ev, err := scanEvent(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &ev
		return nil
	})
	return found, err
}

// ListEvents returns the user's events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, userID string, window *domain.TimeRange) ([]domain.CalendarEvent, error) {
	args := []interface{}{userID}
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE user_id=$1`
	if window != nil && !window.From.IsZero() {
		args = append(args, window.From)
		query += ` AND end_time >= $2`
	}
	if window != nil && !window.To.IsZero() {
		args = append(args, window.To)
		query += ` AND start_time < ` + dialect.Placeholder(len(args))
	}
	query += ` ORDER BY start_time, id`

	var results []domain.CalendarEvent
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				return err
			}
			results = append(results, ev)
		}
		return rows.Err()
	})
	return results, err
}

// DeleteEvent removes one event and reports whether it existed.
func (s *Store) DeleteEvent(ctx context.Context, userID, id string) (bool, error) {
	var removed bool
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		deleted, err := deleteEvents(ctx, tx, userID, `DELETE FROM calendar_events WHERE user_id=$1 AND id=$2
            RETURNING id, COALESCE(source, ''), COALESCE(source_id, '')`, userID, id)
		removed = deleted > 0
		return err
	})
	return removed, err
}

// DeleteEventsBySource removes every mirror of a source entity.
func (s *Store) DeleteEventsBySource(ctx context.Context, userID string, source domain.SourceType, sourceID string) (int64, error) {
	var removed int64
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		var err error
		removed, err = deleteEvents(ctx, tx, userID, `DELETE FROM calendar_events WHERE user_id=$1 AND source=$2 AND source_id=$3
            RETURNING id, COALESCE(source, ''), COALESCE(source_id, '')`, userID, string(source), sourceID)
		return err
	})
	return removed, err
}

func deleteEvents(ctx context.Context, tx pgx.Tx, userID, query string, args ...interface{}) (int64, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	var deleted []events.CalendarEventDeleted
	now := time.Now().UTC()
	for rows.Next() {
		payload := events.CalendarEventDeleted{UserID: userID, DeletedAt: now}
		if err := rows.Scan(&payload.EventID, &payload.Source, &payload.SourceID); err != nil {
			rows.Close()
			return 0, err
		}
		deleted = append(deleted, payload)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, payload := range deleted {
		if err := insertOutbox(ctx, tx, userID, "calendar_event", payload.EventID, events.TypeCalendarEventDeleted, userID, payload); err != nil {
			return 0, err
		}
	}
	return int64(len(deleted)), nil
}
