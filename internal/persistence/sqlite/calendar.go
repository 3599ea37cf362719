package sqlite

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"example.com/tracker/internal/domain"
)

func toEventRow(ev domain.CalendarEvent) eventRow {
	return eventRow{
		ID:          ev.ID,
		UserID:      ev.UserID,
		Title:       ev.Title,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		Source:      strPtr(string(ev.Source)),
		SourceID:    strPtr(ev.SourceID),
		Description: ev.Description,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
}

func (r eventRow) toDomain() domain.CalendarEvent {
	return domain.CalendarEvent{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		StartTime:   r.StartTime.UTC(),
		EndTime:     r.EndTime.UTC(),
		Source:      domain.SourceType(deref(r.Source)),
		SourceID:    deref(r.SourceID),
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// InsertEvent stores a new event.
func (s *Store) InsertEvent(ctx context.Context, ev domain.CalendarEvent) error {
	row := toEventRow(ev)
	err := s.db.WithContext(ctx).Create(&row).Error
	if isDuplicate(err) {
		return domain.ErrEventConflict
	}
	return err
}

// UpdateEvent rewrites the mutable fields of an event.
func (s *Store) UpdateEvent(ctx context.Context, ev domain.CalendarEvent) error {
	res := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ? AND user_id = ?", ev.ID, ev.UserID).
		Updates(map[string]any{
			"title":       ev.Title,
			"start_time":  ev.StartTime,
			"end_time":    ev.EndTime,
			"description": ev.Description,
			"updated_at":  ev.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, userID, id string) (*domain.CalendarEvent, error) {
	return s.firstEvent(s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id))
}

// FindEventBySource retrieves the mirror of a source entity.
func (s *Store) FindEventBySource(ctx context.Context, userID string, source domain.SourceType, sourceID string) (*domain.CalendarEvent, error) {
	return s.firstEvent(s.db.WithContext(ctx).Where("user_id = ? AND source = ? AND source_id = ?", userID, string(source), sourceID))
}

func (s *Store) firstEvent(query *gorm.DB) (*domain.CalendarEvent, error) {
	var row eventRow
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ev := row.toDomain()
	return &ev, nil
}

// ListEvents returns the user's events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, userID string, window *domain.TimeRange) ([]domain.CalendarEvent, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if window != nil && !window.From.IsZero() {
		query = query.Where("end_time >= ?", window.From.UTC())
	}
	if window != nil && !window.To.IsZero() {
		query = query.Where("start_time < ?", window.To.UTC())
	}
	var rows []eventRow
	if err := query.Order("start_time, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CalendarEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// DeleteEvent removes one event and reports whether it existed.
func (s *Store) DeleteEvent(ctx context.Context, userID, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&eventRow{})
	return res.RowsAffected > 0, res.Error
}

// DeleteEventsBySource removes every mirror of a source entity.
func (s *Store) DeleteEventsBySource(ctx context.Context, userID string, source domain.SourceType, sourceID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND source_id = ?", userID, string(source), sourceID).
		Delete(&eventRow{})
	return res.RowsAffected, res.Error
}
