package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Exercise is a child row of a workout.
type Exercise struct {
	ID        string
	WorkoutID string
	Name      string
	Position  int
}

// WorkoutSet is a child row of an exercise.
type WorkoutSet struct {
	ID         string
	ExerciseID string
	Reps       int
	Weight     float64
	Position   int
}

// WorkoutInsert carries pre-formatted child rows for one workout.
type WorkoutInsert struct {
	UserID    string
	WorkoutID string
	Exercises []Exercise
	Sets      []WorkoutSet
}

// WorkoutDelete names the child rows to remove from one workout.
type WorkoutDelete struct {
	UserID      string
	WorkoutID   string
	SetIDs      []string
	ExerciseIDs []string
}

// WorkoutService writes exercises and sets.
type WorkoutService struct {
	workouts WorkoutRepository
	entities EntityRepository
}

// NewWorkoutService constructs a WorkoutService.
func NewWorkoutService(workouts WorkoutRepository, entities EntityRepository) *WorkoutService {
	return &WorkoutService{workouts: workouts, entities: entities}
}

// Insert stores exercises before sets so that sets may reference exercises
// created in the same request.
func (s *WorkoutService) Insert(ctx context.Context, in WorkoutInsert) (WorkoutInsert, error) {
	if err := s.owned(ctx, in.UserID, in.WorkoutID); err != nil {
		return WorkoutInsert{}, err
	}
	if len(in.Exercises) == 0 && len(in.Sets) == 0 {
		return WorkoutInsert{}, invalid("sets", "must not be empty")
	}

	known := make(map[string]struct{})
	for i := range in.Exercises {
		ex := &in.Exercises[i]
		if strings.TrimSpace(ex.Name) == "" {
			return WorkoutInsert{}, invalid(fmt.Sprintf("exercises[%d].name", i), "is required")
		}
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		ex.WorkoutID = in.WorkoutID
		known[ex.ID] = struct{}{}
	}
	if len(in.Sets) > 0 {
		existing, err := s.workouts.ListExerciseIDs(ctx, in.WorkoutID)
		if err != nil {
			return WorkoutInsert{}, err
		}
		for _, id := range existing {
			known[id] = struct{}{}
		}
	}
	for i := range in.Sets {
		set := &in.Sets[i]
		if _, ok := known[set.ExerciseID]; !ok {
			return WorkoutInsert{}, invalid(fmt.Sprintf("sets[%d].exerciseId", i), "does not belong to the workout")
		}
		if set.Reps < 0 || set.Weight < 0 {
			return WorkoutInsert{}, invalid(fmt.Sprintf("sets[%d]", i), "must not be negative")
		}
		if set.ID == "" {
			set.ID = uuid.NewString()
		}
	}

	if len(in.Exercises) > 0 {
		if err := s.workouts.InsertExercises(ctx, in.Exercises); err != nil {
			return WorkoutInsert{}, err
		}
	}
	if len(in.Sets) > 0 {
		if err := s.workouts.InsertSets(ctx, in.Sets); err != nil {
			return WorkoutInsert{}, err
		}
	}
	return in, nil
}

// Delete removes sets before exercises. It returns the number of rows removed.
func (s *WorkoutService) Delete(ctx context.Context, in WorkoutDelete) (int64, error) {
	if err := s.owned(ctx, in.UserID, in.WorkoutID); err != nil {
		return 0, err
	}
	if len(in.SetIDs) == 0 && len(in.ExerciseIDs) == 0 {
		return 0, invalid("setIds", "must not be empty")
	}
	var removed int64
	if len(in.SetIDs) > 0 {
		n, err := s.workouts.DeleteSets(ctx, in.WorkoutID, in.SetIDs)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if len(in.ExerciseIDs) > 0 {
		n, err := s.workouts.DeleteExercises(ctx, in.WorkoutID, in.ExerciseIDs)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (s *WorkoutService) owned(ctx context.Context, userID, workoutID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("userId", "is required")
	}
	if strings.TrimSpace(workoutID) == "" {
		return invalid("workoutId", "is required")
	}
	ok, err := s.entities.EntityExists(ctx, MustResolve(SourceWorkout), userID, workoutID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntityNotFound
	}
	return nil
}
