package sqlite

import (
	"context"

	"gorm.io/gorm"

	"example.com/tracker/internal/domain"
)

func (s *Store) sessionQuery(ctx context.Context, kind domain.ActivityKind) *gorm.DB {
	return s.db.WithContext(ctx).Table(kind.Table).
		Select("id, user_id, " + dialect.Quote(kind.NameColumn) + " AS name, date, start_time, end_time, duration_minutes, in_progress, status, notes, created_at, updated_at")
}

func (r sessionRecord) toDomain() domain.ActivitySession {
	return domain.ActivitySession{
		ID:              r.ID,
		UserID:          r.UserID,
		Name:            r.Name,
		Date:            r.Date.UTC(),
		StartTime:       utcPtr(r.StartTime),
		EndTime:         utcPtr(r.EndTime),
		DurationMinutes: r.DurationMinutes,
		InProgress:      r.InProgress,
		Status:          domain.SessionStatus(r.Status),
		Notes:           r.Notes,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func sessionValues(kind domain.ActivityKind, session domain.ActivitySession) map[string]any {
	return map[string]any{
		kind.NameColumn:    session.Name,
		"date":             session.Date,
		"start_time":       session.StartTime,
		"end_time":         session.EndTime,
		"duration_minutes": session.DurationMinutes,
		"in_progress":      session.InProgress,
		"status":           string(session.Status),
		"notes":            session.Notes,
		"updated_at":       session.UpdatedAt,
	}
}

// ListInProgress returns in-progress rows ordered newest start first.
func (s *Store) ListInProgress(ctx context.Context, kind domain.ActivityKind, userID string) ([]domain.ActivitySession, error) {
	var rows []sessionRecord
	err := s.sessionQuery(ctx, kind).
		Where("user_id = ? AND in_progress = ?", userID, true).
		Order("start_time DESC, created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActivitySession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// GetSession retrieves one session row.
func (s *Store) GetSession(ctx context.Context, kind domain.ActivityKind, userID, id string) (*domain.ActivitySession, error) {
	var rows []sessionRecord
	err := s.sessionQuery(ctx, kind).Where("user_id = ? AND id = ?", userID, id).Limit(1).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	session := rows[0].toDomain()
	return &session, nil
}

// InsertSession stores a new session.
func (s *Store) InsertSession(ctx context.Context, kind domain.ActivityKind, session domain.ActivitySession) error {
	values := sessionValues(kind, session)
	values["id"] = session.ID
	values["user_id"] = session.UserID
	values["created_at"] = session.CreatedAt
	err := s.db.WithContext(ctx).Table(kind.Table).Create(values).Error
	if isDuplicate(err) {
		return domain.ErrSessionConflict
	}
	return err
}

// UpdateSession rewrites a session row.
func (s *Store) UpdateSession(ctx context.Context, kind domain.ActivityKind, session domain.ActivitySession) error {
	res := s.db.WithContext(ctx).Table(kind.Table).
		Where("id = ? AND user_id = ?", session.ID, session.UserID).
		Updates(sessionValues(kind, session))
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return domain.ErrSessionConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
