package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SourceType names the kind of domain row a calendar event mirrors.
type SourceType string

const (
	SourceWorkout     SourceType = "workout"
	SourceCardio      SourceType = "cardio"
	SourceSport       SourceType = "sport"
	SourceStretching  SourceType = "stretching"
	SourceMeal        SourceType = "meal"
	SourcePlannedMeal SourceType = "planned_meal"
	SourceScratchpad  SourceType = "scratchpad"
	SourceExpense     SourceType = "expense"
)

// Titled is implemented by every entity that can be mirrored on the calendar.
type Titled interface {
	EntityID() string
	DisplayName() string
}

// ChildRelation describes rows owned by a parent entity. Through is set when
// the child reaches the parent via an intermediate table (sets belong to
// exercises, which belong to a workout). Mirrored names the source under which
// child rows carry their own calendar events.
type ChildRelation struct {
	Table      string
	ForeignKey string
	Through    *ChildRelation
	Mirrored   SourceType
}

// ScheduleColumns names the columns holding the schedule of a source row.
// Empty names are absent from the table.
type ScheduleColumns struct {
	Date  string
	Start string
	End   string
}

// Empty reports whether the source has no schedule columns at all.
func (c ScheduleColumns) Empty() bool {
	return c.Date == "" && c.Start == "" && c.End == ""
}

// SourceDescriptor is the registry entry for one source type.
type SourceDescriptor struct {
	Type        SourceType
	Table       string
	Label       string
	RoutePrefix string
	// Children are listed in delete order.
	Children []ChildRelation
	Schedule ScheduleColumns
}

// Title formats the calendar title for an entity of this source.
func (d SourceDescriptor) Title(entity Titled) string {
	if entity == nil {
		return d.Label
	}
	return d.TitleFor(entity.DisplayName())
}

// TitleFor formats the calendar title for a bare entity name.
func (d SourceDescriptor) TitleFor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, d.Label) {
		return d.Label
	}
	return d.Label + ": " + name
}

// DetailRoute returns the navigation target for the entity.
func (d SourceDescriptor) DetailRoute(id string) string {
	return d.RoutePrefix + "/" + id
}

var workoutExercises = ChildRelation{Table: "fitness_exercises", ForeignKey: "workout_id"}

var sessionSchedule = ScheduleColumns{Date: "date", Start: "start_time", End: "end_time"}

var registry = map[SourceType]SourceDescriptor{
	SourceWorkout: {
		Type:        SourceWorkout,
		Table:       "fitness_workouts",
		Label:       "Workout",
		RoutePrefix: "/fitness/workouts",
		Children: []ChildRelation{
			{Table: "fitness_sets", ForeignKey: "exercise_id", Through: &workoutExercises},
			workoutExercises,
		},
		Schedule: sessionSchedule,
	},
	SourceCardio: {
		Type:        SourceCardio,
		Table:       "fitness_cardio",
		Label:       "Cardio",
		RoutePrefix: "/fitness/cardio",
		Schedule:    sessionSchedule,
	},
	SourceSport: {
		Type:        SourceSport,
		Table:       "fitness_sports",
		Label:       "Sport",
		RoutePrefix: "/fitness/sports",
		Schedule:    sessionSchedule,
	},
	SourceStretching: {
		Type:        SourceStretching,
		Table:       "fitness_stretching",
		Label:       "Stretching",
		RoutePrefix: "/fitness/stretching",
		Schedule:    sessionSchedule,
	},
	SourceMeal: {
		Type:        SourceMeal,
		Table:       "meals",
		Label:       "Meal",
		RoutePrefix: "/meals",
		// Every table referencing meals(id) must be listed here.
		Children: []ChildRelation{
			{Table: "meal_ingredients", ForeignKey: "meal_id"},
			{Table: "planned_meals", ForeignKey: "meal_id", Mirrored: SourcePlannedMeal},
			{Table: "cooking_sessions", ForeignKey: "meal_id"},
			{Table: "cooked_meals", ForeignKey: "meal_id"},
		},
	},
	SourcePlannedMeal: {
		Type:        SourcePlannedMeal,
		Table:       "planned_meals",
		Label:       "Planned meal",
		RoutePrefix: "/meals/planned",
		Schedule:    ScheduleColumns{Date: "date", Start: "start_time"},
	},
	SourceScratchpad: {
		Type:        SourceScratchpad,
		Table:       "scratchpad_notes",
		Label:       "Note",
		RoutePrefix: "/scratchpad",
		Schedule:    ScheduleColumns{Date: "date"},
	},
	SourceExpense: {
		Type:        SourceExpense,
		Table:       "expenses",
		Label:       "Expense",
		RoutePrefix: "/expenses",
		Schedule:    ScheduleColumns{Date: "date"},
	},
}

// Resolve looks up the registry entry for a source type.
func Resolve(source SourceType) (SourceDescriptor, error) {
	desc, ok := registry[source]
	if !ok {
		return SourceDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return desc, nil
}

// MustResolve is Resolve for compile-time constants; it panics on unknown types.
func MustResolve(source SourceType) SourceDescriptor {
	desc, err := Resolve(source)
	if err != nil {
		panic(err)
	}
	return desc
}

// ParseSourceType validates a client supplied source type.
func ParseSourceType(raw string) (SourceType, error) {
	source := SourceType(strings.TrimSpace(strings.ToLower(raw)))
	if _, err := Resolve(source); err != nil {
		return "", err
	}
	return source, nil
}

// Sources lists every registered descriptor ordered by type.
func Sources() []SourceDescriptor {
	out := make([]SourceDescriptor, 0, len(registry))
	for _, desc := range registry {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
