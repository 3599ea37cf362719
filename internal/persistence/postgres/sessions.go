package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/events"
)

func sessionSelect(kind domain.ActivityKind) string {
	return fmt.Sprintf(`SELECT id, user_id, %s, date, start_time, end_time, duration_minutes, in_progress, status, notes, created_at, updated_at FROM %s`,
		dialect.Quote(kind.NameColumn), dialect.Quote(kind.Table))
}

func scanSession(row pgx.Row) (domain.ActivitySession, error) {
	var s domain.ActivitySession
	var status string
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Date, &s.StartTime, &s.EndTime, &s.DurationMinutes, &s.InProgress, &status, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	s.Status = domain.SessionStatus(status)
	return s, err
}

func sessionChanged(kind domain.ActivityKind, s domain.ActivitySession) events.SessionStateChanged {
	return events.SessionStateChanged{
		SessionID:       s.ID,
		UserID:          s.UserID,
		Kind:            kind.Name,
		InProgress:      s.InProgress,
		Status:          string(s.Status),
		DurationMinutes: s.DurationMinutes,
		OccurredAt:      s.UpdatedAt,
	}
}

// ListInProgress returns in-progress rows ordered newest start first.
func (s *Store) ListInProgress(ctx context.Context, kind domain.ActivityKind, userID string) ([]domain.ActivitySession, error) {
	query := sessionSelect(kind) + ` WHERE user_id=$1 AND in_progress ORDER BY start_time DESC NULLS LAST, created_at DESC`

	var results []domain.ActivitySession
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			session, err := scanSession(rows)
			if err != nil {
				return err
			}
			results = append(results, session)
		}
		return rows.Err()
	})
	return results, err
}

// GetSession retrieves one session row.
func (s *Store) GetSession(ctx context.Context, kind domain.ActivityKind, userID, id string) (*domain.ActivitySession, error) {
	var found *domain.ActivitySession
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		session, err := scanSession(tx.QueryRow(ctx, sessionSelect(kind)+` WHERE user_id=$1 AND id=$2`, userID, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &session
		return nil
	})
	return found, err
}

// InsertSession stores a new session. A second in-progress row for the user
// returns domain.ErrSessionConflict.
func (s *Store) InsertSession(ctx context.Context, kind domain.ActivityKind, session domain.ActivitySession) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (id, user_id, %s, date, start_time, end_time, duration_minutes, in_progress, status, notes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, dialect.Quote(kind.Table), dialect.Quote(kind.NameColumn))

	err := s.withUser(ctx, session.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt, session.ID, session.UserID, session.Name, session.Date, session.StartTime, session.EndTime,
			session.DurationMinutes, session.InProgress, string(session.Status), session.Notes, session.CreatedAt, session.UpdatedAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, session.UserID, kind.Name, session.ID, events.TypeSessionStateChanged, session.ID, sessionChanged(kind, session))
	})
	if isUniqueViolation(err) {
		return domain.ErrSessionConflict
	}
	return err
}

// UpdateSession rewrites a session row.
func (s *Store) UpdateSession(ctx context.Context, kind domain.ActivityKind, session domain.ActivitySession) error {
	stmt := fmt.Sprintf(`UPDATE %s SET %s=$1, date=$2, start_time=$3, end_time=$4, duration_minutes=$5, in_progress=$6, status=$7, notes=$8, updated_at=$9
        WHERE id=$10 AND user_id=$11`, dialect.Quote(kind.Table), dialect.Quote(kind.NameColumn))

	err := s.withUser(ctx, session.UserID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, session.Name, session.Date, session.StartTime, session.EndTime, session.DurationMinutes,
			session.InProgress, string(session.Status), session.Notes, session.UpdatedAt, session.ID, session.UserID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSessionNotFound
		}
		return insertOutbox(ctx, tx, session.UserID, kind.Name, session.ID, events.TypeSessionStateChanged, session.ID, sessionChanged(kind, session))
	})
	if isUniqueViolation(err) {
		return domain.ErrSessionConflict
	}
	return err
}
