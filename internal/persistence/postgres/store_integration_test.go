//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/tracker/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("tracker"),
		postgrescontainer.WithUsername("tracker"),
		postgrescontainer.WithPassword("tracker"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, Migrate(ctx, pool))
	// Migrate is idempotent.
	require.NoError(t, Migrate(ctx, pool))
	return NewStore(pool), pool
}

func TestStoreEnforcesSingleInProgressSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	userID := uuid.NewString()
	now := time.Now().UTC()
	first := domain.ActivitySession{ID: uuid.NewString(), UserID: userID, Name: "Run", Date: now, StartTime: &now, InProgress: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertSession(ctx, domain.KindCardio, first))

	second := first
	second.ID = uuid.NewString()
	err := store.InsertSession(ctx, domain.KindCardio, second)
	require.ErrorIs(t, err, domain.ErrSessionConflict)

	// Another kind is independent.
	second.Name = "Tennis"
	require.NoError(t, store.InsertSession(ctx, domain.KindSport, second))

	active, err := store.ListInProgress(ctx, domain.KindCardio, userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, first.ID, active[0].ID)
	require.Equal(t, "Run", active[0].Name)
}

func TestStoreScopesEventReadsToOwner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	owner := uuid.NewString()
	now := time.Now().UTC()
	ev := domain.CalendarEvent{ID: uuid.NewString(), UserID: owner, Title: "Workout: Legs", StartTime: now, EndTime: now.Add(time.Hour),
		Source: domain.SourceWorkout, SourceID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEvent(ctx, ev))

	stored, err := store.GetEvent(ctx, owner, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, ev.SourceID, stored.SourceID)

	other, err := store.GetEvent(ctx, uuid.NewString(), ev.ID)
	require.NoError(t, err)
	require.Nil(t, other)

	dup := ev
	dup.ID = uuid.NewString()
	require.ErrorIs(t, store.InsertEvent(ctx, dup), domain.ErrEventConflict)
}

func TestStoreCascadeAndOutbox(t *testing.T) {
	ctx := context.Background()
	store, pool := newTestStore(t)

	userID := uuid.NewString()
	now := time.Now().UTC()
	workout := domain.ActivitySession{ID: uuid.NewString(), UserID: userID, Name: "Push", Date: now, StartTime: &now, Status: domain.StatusCompleted, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertSession(ctx, domain.KindWorkout, workout))

	exercises := []domain.Exercise{
		{ID: uuid.NewString(), WorkoutID: workout.ID, Name: "Bench", Position: 0},
		{ID: uuid.NewString(), WorkoutID: workout.ID, Name: "Dips", Position: 1},
	}
	require.NoError(t, store.InsertExercises(ctx, exercises))
	require.NoError(t, store.InsertSets(ctx, []domain.WorkoutSet{
		{ID: uuid.NewString(), ExerciseID: exercises[0].ID, Reps: 5, Weight: 80},
		{ID: uuid.NewString(), ExerciseID: exercises[0].ID, Reps: 5, Weight: 80},
		{ID: uuid.NewString(), ExerciseID: exercises[1].ID, Reps: 10},
	}))

	services := domain.NewServices(store)
	_, err := services.Calendar.CreateForEntity(ctx, domain.SourceWorkout, workout, userID, domain.MirrorSpec{Start: now})
	require.NoError(t, err)

	result, err := services.Cascade.DeleteWithChildren(ctx, domain.SourceWorkout, workout.ID, userID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.EqualValues(t, 5, result.ChildrenDeleted)

	var orphans int
	require.NoError(t, pool.QueryRow(ctx, `SELECT (SELECT count(*) FROM fitness_sets) + (SELECT count(*) FROM fitness_exercises)`).Scan(&orphans))
	require.Zero(t, orphans)

	mirror, err := store.FindEventBySource(ctx, userID, domain.SourceWorkout, workout.ID)
	require.NoError(t, err)
	require.Nil(t, mirror)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE user_id=$1 AND published_at IS NULL`, userID).Scan(&pending))
	// session insert, mirror upsert, mirror delete
	require.Equal(t, 3, pending)
}

func TestStoreCascadeDeletesMealDependents(t *testing.T) {
	ctx := context.Background()
	store, pool := newTestStore(t)

	userID := uuid.NewString()
	mealID := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO meals (id, user_id, name, instructions) VALUES ($1, $2, 'Soup', '["Chop","Simmer"]')`, mealID, userID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO meal_ingredients (id, meal_id, name, quantity) VALUES ($1, $2, 'Leek', '2')`, uuid.NewString(), mealID)
	require.NoError(t, err)

	services := domain.NewServices(store)
	started, err := services.Cooking.Start(ctx, userID, mealID)
	require.NoError(t, err)
	finished, err := services.Cooking.Finish(ctx, userID, started.Session.ID)
	require.NoError(t, err)
	require.Empty(t, finished.Warnings)
	planned, err := services.Meals.Plan(ctx, userID, mealID, time.Now().UTC().Add(24*time.Hour), nil)
	require.NoError(t, err)
	require.Empty(t, planned.Warnings)

	result, err := services.Cascade.DeleteWithChildren(ctx, domain.SourceMeal, mealID, userID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.EqualValues(t, 4, result.ChildrenDeleted)

	var dependents int
	require.NoError(t, pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM meal_ingredients WHERE meal_id=$1) +
		(SELECT count(*) FROM planned_meals WHERE meal_id=$1) +
		(SELECT count(*) FROM cooking_sessions WHERE meal_id=$1) +
		(SELECT count(*) FROM cooked_meals WHERE meal_id=$1) +
		(SELECT count(*) FROM meals WHERE id=$1)`, mealID).Scan(&dependents))
	require.Zero(t, dependents)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM calendar_events WHERE user_id=$1 AND source IN ('meal', 'planned_meal')`, userID).Scan(&events))
	require.Zero(t, events)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
