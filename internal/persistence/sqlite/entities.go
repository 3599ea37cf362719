package sqlite

import (
	"context"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/persistence"
)

// EntityExists reports whether the user owns the row in the source table.
func (s *Store) EntityExists(ctx context.Context, desc domain.SourceDescriptor, userID, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(desc.Table).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error
	return count > 0, err
}

// ChildIDs lists the ids of the rows of rel owned by parentID.
func (s *Store) ChildIDs(ctx context.Context, rel domain.ChildRelation, parentID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(dialect.ChildIDsSQL(rel), parentID).Scan(&ids).Error
	return ids, err
}

// DeleteChildren removes the rows of rel owned by parentID.
func (s *Store) DeleteChildren(ctx context.Context, rel domain.ChildRelation, parentID string) (int64, error) {
	res := s.db.WithContext(ctx).Exec(dialect.DeleteChildrenSQL(rel), parentID)
	return res.RowsAffected, res.Error
}

// DeleteEntity removes the parent row and reports whether it existed.
func (s *Store) DeleteEntity(ctx context.Context, desc domain.SourceDescriptor, userID, id string) (bool, error) {
	res := s.db.WithContext(ctx).Exec("DELETE FROM "+dialect.Quote(desc.Table)+" WHERE id = ? AND user_id = ?", id, userID)
	return res.RowsAffected > 0, res.Error
}

// UpdateSchedule rewrites the schedule columns of a source row.
func (s *Store) UpdateSchedule(ctx context.Context, desc domain.SourceDescriptor, userID, id string, patch domain.SchedulePatch) (bool, error) {
	values := persistence.ScheduleValues(desc.Schedule, patch)
	if len(values) == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).Table(desc.Table).Where("id = ? AND user_id = ?", id, userID).Updates(values)
	return res.RowsAffected > 0, res.Error
}
