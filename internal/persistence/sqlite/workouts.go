package sqlite

import (
	"context"

	"gorm.io/gorm"

	"example.com/tracker/internal/domain"
)

// ListExerciseIDs returns the ids of a workout's exercises.
func (s *Store) ListExerciseIDs(ctx context.Context, workoutID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&exerciseRow{}).Where("workout_id = ?", workoutID).Order("position, id").Pluck("id", &ids).Error
	return ids, err
}

// InsertExercises stores exercises in one transaction.
func (s *Store) InsertExercises(ctx context.Context, exercises []domain.Exercise) error {
	rows := make([]exerciseRow, 0, len(exercises))
	for _, ex := range exercises {
		rows = append(rows, exerciseRow{ID: ex.ID, WorkoutID: ex.WorkoutID, Name: ex.Name, Position: ex.Position})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// InsertSets stores sets in one transaction.
func (s *Store) InsertSets(ctx context.Context, sets []domain.WorkoutSet) error {
	rows := make([]setRow, 0, len(sets))
	for _, set := range sets {
		rows = append(rows, setRow{ID: set.ID, ExerciseID: set.ExerciseID, Reps: set.Reps, Weight: set.Weight, Position: set.Position})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// DeleteSets removes sets belonging to the workout's exercises.
func (s *Store) DeleteSets(ctx context.Context, workoutID string, ids []string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("id IN ? AND exercise_id IN (?)", ids, s.db.Model(&exerciseRow{}).Select("id").Where("workout_id = ?", workoutID)).
		Delete(&setRow{})
	return res.RowsAffected, res.Error
}

// DeleteExercises removes exercises of the workout along with any sets still
// attached to them.
func (s *Store) DeleteExercises(ctx context.Context, workoutID string, ids []string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&exerciseRow{}).Select("id").Where("id IN ? AND workout_id = ?", ids, workoutID)
		if err := tx.Where("exercise_id IN (?)", owned).Delete(&setRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ? AND workout_id = ?", ids, workoutID).Delete(&exerciseRow{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
