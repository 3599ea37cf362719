package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/events"
)

// GetMeal retrieves a meal with its instructions.
func (s *Store) GetMeal(ctx context.Context, userID, mealID string) (*domain.Meal, error) {
	var found *domain.Meal
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		var meal domain.Meal
		var instructions []byte
		err := tx.QueryRow(ctx, `SELECT id, user_id, name, instructions FROM meals WHERE user_id=$1 AND id=$2`, userID, mealID).
			Scan(&meal.ID, &meal.UserID, &meal.Name, &instructions)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(instructions, &meal.Instructions); err != nil {
			return err
		}
		found = &meal
		return nil
	})
	return found, err
}

// InsertPlannedMeal stores a planned meal.
func (s *Store) InsertPlannedMeal(ctx context.Context, planned domain.PlannedMeal) error {
	return s.withUser(ctx, planned.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO planned_meals (id, user_id, meal_id, title, date, start_time, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			planned.ID, planned.UserID, planned.MealID, planned.Title, planned.Date, planned.StartTime, planned.CreatedAt)
		return err
	})
}

const cookingColumns = `id, user_id, meal_id, in_progress, started_at, ended_at, current_step`

func scanCooking(row pgx.Row) (domain.CookingSession, error) {
	var c domain.CookingSession
	err := row.Scan(&c.ID, &c.UserID, &c.MealID, &c.InProgress, &c.StartedAt, &c.EndedAt, &c.CurrentStep)
	return c, err
}

// ListActiveCooking returns in-progress cooking sessions, newest first.
func (s *Store) ListActiveCooking(ctx context.Context, userID string) ([]domain.CookingSession, error) {
	var results []domain.CookingSession
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+cookingColumns+` FROM cooking_sessions WHERE user_id=$1 AND in_progress ORDER BY started_at DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCooking(rows)
			if err != nil {
				return err
			}
			results = append(results, c)
		}
		return rows.Err()
	})
	return results, err
}

// GetCooking retrieves a cooking session.
func (s *Store) GetCooking(ctx context.Context, userID, id string) (*domain.CookingSession, error) {
	var found *domain.CookingSession
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		c, err := scanCooking(tx.QueryRow(ctx, `SELECT `+cookingColumns+` FROM cooking_sessions WHERE user_id=$1 AND id=$2`, userID, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &c
		return nil
	})
	return found, err
}

// InsertCooking stores a new cooking session.
func (s *Store) InsertCooking(ctx context.Context, c domain.CookingSession) error {
	err := s.withUser(ctx, c.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO cooking_sessions (`+cookingColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			c.ID, c.UserID, c.MealID, c.InProgress, c.StartedAt, c.EndedAt, c.CurrentStep)
		return err
	})
	if isUniqueViolation(err) {
		return domain.ErrSessionConflict
	}
	return err
}

// UpdateCooking rewrites a cooking session.
func (s *Store) UpdateCooking(ctx context.Context, c domain.CookingSession) error {
	return s.withUser(ctx, c.UserID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE cooking_sessions SET in_progress=$1, ended_at=$2, current_step=$3 WHERE id=$4 AND user_id=$5`,
			c.InProgress, c.EndedAt, c.CurrentStep, c.ID, c.UserID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSessionNotFound
		}
		return nil
	})
}

// IncrementCookCount upserts the cooked_meals counter.
func (s *Store) IncrementCookCount(ctx context.Context, userID, mealID string, at time.Time) (domain.CookedMeal, error) {
	cooked := domain.CookedMeal{UserID: userID, MealID: mealID}
	err := s.withUser(ctx, userID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO cooked_meals (user_id, meal_id, cook_count, last_cooked_at) VALUES ($1,$2,1,$3)
            ON CONFLICT (user_id, meal_id) DO UPDATE SET cook_count = cooked_meals.cook_count + 1, last_cooked_at = EXCLUDED.last_cooked_at
            RETURNING cook_count, last_cooked_at`, userID, mealID, at).Scan(&cooked.CookCount, &cooked.LastCookedAt)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, userID, "meal", mealID, events.TypeCookingCompleted, userID, events.CookingCompleted{
			UserID:    userID,
			MealID:    mealID,
			CookCount: cooked.CookCount,
			CookedAt:  cooked.LastCookedAt,
		})
	})
	return cooked, err
}
