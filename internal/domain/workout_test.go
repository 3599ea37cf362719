package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/domain"
)

func TestWorkoutInsertOrdersExercisesBeforeSets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	planned, err := h.session(t, "workout").Plan(ctx, "u1", domain.PlanInput{Start: t0.Add(time.Hour)})
	require.NoError(t, err)
	workoutID := planned.Session.ID

	inserted, err := h.services.Workouts.Insert(ctx, domain.WorkoutInsert{
		UserID:    "u1",
		WorkoutID: workoutID,
		Exercises: []domain.Exercise{{Name: "Deadlift"}},
	})
	require.NoError(t, err)
	exerciseID := inserted.Exercises[0].ID
	require.NotEmpty(t, exerciseID)
	require.Equal(t, workoutID, inserted.Exercises[0].WorkoutID)

	_, err = h.services.Workouts.Insert(ctx, domain.WorkoutInsert{
		UserID:    "u1",
		WorkoutID: workoutID,
		Sets:      []domain.WorkoutSet{{ExerciseID: exerciseID, Reps: 3, Weight: 140}},
	})
	require.NoError(t, err, "sets may reference exercises stored earlier")

	_, err = h.services.Workouts.Insert(ctx, domain.WorkoutInsert{
		UserID:    "u1",
		WorkoutID: workoutID,
		Sets:      []domain.WorkoutSet{{ExerciseID: "foreign", Reps: 1}},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "sets[0].exerciseId", verr.Field)

	_, err = h.services.Workouts.Insert(ctx, domain.WorkoutInsert{UserID: "u2", WorkoutID: workoutID, Exercises: []domain.Exercise{{Name: "Row"}}})
	require.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestWorkoutDeleteRemovesSetsThenExercises(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workoutID := seedWorkout(t, h, "u1")

	removed, err := h.services.Workouts.Delete(ctx, domain.WorkoutDelete{UserID: "u1", WorkoutID: workoutID, ExerciseIDs: []string{"ex-2"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	ids, err := h.store.ListExerciseIDs(ctx, workoutID)
	require.NoError(t, err)
	require.Equal(t, []string{"ex-1"}, ids)

	_, err = h.services.Workouts.Delete(ctx, domain.WorkoutDelete{UserID: "u1", WorkoutID: workoutID})
	require.True(t, domain.IsValidation(err))
}
