package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"example.com/tracker/internal/domain"
)

// ListExerciseIDs returns the ids of a workout's exercises.
func (s *Store) ListExerciseIDs(ctx context.Context, workoutID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM fitness_exercises WHERE workout_id=$1 ORDER BY position, id`, workoutID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// InsertExercises stores exercises in one batch.
func (s *Store) InsertExercises(ctx context.Context, exercises []domain.Exercise) error {
	batch := &pgx.Batch{}
	for _, ex := range exercises {
		batch.Queue(`INSERT INTO fitness_exercises (id, workout_id, name, position) VALUES ($1,$2,$3,$4)`,
			ex.ID, ex.WorkoutID, ex.Name, ex.Position)
	}
	return s.sendBatch(ctx, batch)
}

// InsertSets stores sets in one batch.
func (s *Store) InsertSets(ctx context.Context, sets []domain.WorkoutSet) error {
	batch := &pgx.Batch{}
	for _, set := range sets {
		batch.Queue(`INSERT INTO fitness_sets (id, exercise_id, reps, weight, position) VALUES ($1,$2,$3,$4,$5)`,
			set.ID, set.ExerciseID, set.Reps, set.Weight, set.Position)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteSets removes sets belonging to the workout's exercises.
func (s *Store) DeleteSets(ctx context.Context, workoutID string, ids []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fitness_sets WHERE id = ANY($1)
        AND exercise_id IN (SELECT id FROM fitness_exercises WHERE workout_id=$2)`, ids, workoutID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExercises removes exercises of the workout along with any sets still
// attached to them.
func (s *Store) DeleteExercises(ctx context.Context, workoutID string, ids []string) (removed int64, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM fitness_sets WHERE exercise_id IN
        (SELECT id FROM fitness_exercises WHERE id = ANY($1) AND workout_id=$2)`, ids, workoutID); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM fitness_exercises WHERE id = ANY($1) AND workout_id=$2`, ids, workoutID)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
