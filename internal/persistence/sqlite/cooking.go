package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/tracker/internal/domain"
)

// InsertMeal stores a meal and its ingredients.
func (s *Store) InsertMeal(ctx context.Context, meal domain.Meal, ingredients ...domain.MealIngredient) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := mealRow{ID: meal.ID, UserID: meal.UserID, Name: meal.Name, Instructions: meal.Instructions}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, ing := range ingredients {
			if err := tx.Create(&ingredientRow{ID: ing.ID, MealID: meal.ID, Name: ing.Name, Quantity: ing.Quantity}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMeal retrieves a meal with its instructions.
func (s *Store) GetMeal(ctx context.Context, userID, mealID string) (*domain.Meal, error) {
	var row mealRow
	if err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, mealID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Meal{ID: row.ID, UserID: row.UserID, Name: row.Name, Instructions: row.Instructions}, nil
}

// InsertPlannedMeal stores a planned meal.
func (s *Store) InsertPlannedMeal(ctx context.Context, planned domain.PlannedMeal) error {
	return s.db.WithContext(ctx).Create(&plannedMealRow{
		ID:        planned.ID,
		UserID:    planned.UserID,
		MealID:    planned.MealID,
		Title:     planned.Title,
		Date:      planned.Date,
		StartTime: planned.StartTime,
		CreatedAt: planned.CreatedAt,
	}).Error
}

func (r cookingRow) toDomain() domain.CookingSession {
	return domain.CookingSession{
		ID:          r.ID,
		UserID:      r.UserID,
		MealID:      r.MealID,
		InProgress:  r.InProgress,
		StartedAt:   r.StartedAt.UTC(),
		EndedAt:     utcPtr(r.EndedAt),
		CurrentStep: r.CurrentStep,
	}
}

// ListActiveCooking returns in-progress cooking sessions, newest first.
func (s *Store) ListActiveCooking(ctx context.Context, userID string) ([]domain.CookingSession, error) {
	var rows []cookingRow
	err := s.db.WithContext(ctx).Where("user_id = ? AND in_progress = ?", userID, true).Order("started_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.CookingSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// GetCooking retrieves a cooking session.
func (s *Store) GetCooking(ctx context.Context, userID, id string) (*domain.CookingSession, error) {
	var row cookingRow
	if err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	session := row.toDomain()
	return &session, nil
}

// InsertCooking stores a new cooking session.
func (s *Store) InsertCooking(ctx context.Context, c domain.CookingSession) error {
	err := s.db.WithContext(ctx).Create(&cookingRow{
		ID:          c.ID,
		UserID:      c.UserID,
		MealID:      c.MealID,
		InProgress:  c.InProgress,
		StartedAt:   c.StartedAt,
		EndedAt:     c.EndedAt,
		CurrentStep: c.CurrentStep,
	}).Error
	if isDuplicate(err) {
		return domain.ErrSessionConflict
	}
	return err
}

// UpdateCooking rewrites a cooking session.
func (s *Store) UpdateCooking(ctx context.Context, c domain.CookingSession) error {
	res := s.db.WithContext(ctx).Model(&cookingRow{}).
		Where("id = ? AND user_id = ?", c.ID, c.UserID).
		Updates(map[string]any{"in_progress": c.InProgress, "ended_at": c.EndedAt, "current_step": c.CurrentStep})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// IncrementCookCount upserts the cooked_meals counter.
func (s *Store) IncrementCookCount(ctx context.Context, userID, mealID string, at time.Time) (domain.CookedMeal, error) {
	var row cookedMealRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "meal_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"cook_count":     gorm.Expr("cook_count + 1"),
				"last_cooked_at": at,
			}),
		}).Create(&cookedMealRow{UserID: userID, MealID: mealID, CookCount: 1, LastCookedAt: at}).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ? AND meal_id = ?", userID, mealID).First(&row).Error
	})
	if err != nil {
		return domain.CookedMeal{}, err
	}
	return domain.CookedMeal{UserID: row.UserID, MealID: row.MealID, CookCount: row.CookCount, LastCookedAt: row.LastCookedAt.UTC()}, nil
}
