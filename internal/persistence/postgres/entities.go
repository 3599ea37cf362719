package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"example.com/tracker/internal/domain"
)

// EntityExists reports whether the user owns the row in the source table.
func (s *Store) EntityExists(ctx context.Context, desc domain.SourceDescriptor, userID, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ` + dialect.Quote(desc.Table) + ` WHERE id=$1 AND user_id=$2)`
	var exists bool
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, id, userID).Scan(&exists)
	})
	return exists, err
}

// ChildIDs lists the ids of the rows of rel owned by parentID.
func (s *Store) ChildIDs(ctx context.Context, rel domain.ChildRelation, parentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, dialect.ChildIDsSQL(rel), parentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteChildren removes the rows of rel owned by parentID.
func (s *Store) DeleteChildren(ctx context.Context, rel domain.ChildRelation, parentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, dialect.DeleteChildrenSQL(rel), parentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteEntity removes the parent row and reports whether it existed.
func (s *Store) DeleteEntity(ctx context.Context, desc domain.SourceDescriptor, userID, id string) (bool, error) {
	query := `DELETE FROM ` + dialect.Quote(desc.Table) + ` WHERE id=$1 AND user_id=$2`
	var deleted bool
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, id, userID)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// UpdateSchedule rewrites the schedule columns of a source row.
func (s *Store) UpdateSchedule(ctx context.Context, desc domain.SourceDescriptor, userID, id string, patch domain.SchedulePatch) (bool, error) {
	if desc.Schedule.Empty() {
		return false, nil
	}
	query, args := dialect.UpdateScheduleSQL(desc, userID, id, patch)
	var updated bool
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	return updated, err
}
