package sqlite

import "time"

// SessionColumns is shared by the four fitness session tables.
type SessionColumns struct {
	UserID          string `gorm:"index;not null"`
	Date            time.Time
	StartTime       *time.Time
	EndTime         *time.Time
	DurationMinutes int
	InProgress      bool `gorm:"index"`
	Status          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type workoutRow struct {
	ID    string `gorm:"primaryKey"`
	Title string
	SessionColumns `gorm:"embedded"`
}

func (workoutRow) TableName() string { return "fitness_workouts" }

type cardioRow struct {
	ID           string `gorm:"primaryKey"`
	ActivityType string
	SessionColumns `gorm:"embedded"`
}

func (cardioRow) TableName() string { return "fitness_cardio" }

type sportRow struct {
	ID           string `gorm:"primaryKey"`
	ActivityType string
	SessionColumns `gorm:"embedded"`
}

func (sportRow) TableName() string { return "fitness_sports" }

type stretchingRow struct {
	ID    string `gorm:"primaryKey"`
	Title string
	SessionColumns `gorm:"embedded"`
}

func (stretchingRow) TableName() string { return "fitness_stretching" }

// sessionRecord is the kind-independent read shape; the name column is aliased.
type sessionRecord struct {
	ID              string
	UserID          string
	Name            string
	Date            time.Time
	StartTime       *time.Time
	EndTime         *time.Time
	DurationMinutes int
	InProgress      bool
	Status          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type exerciseRow struct {
	ID        string `gorm:"primaryKey"`
	WorkoutID string `gorm:"index;not null"`
	Name      string
	Position  int
}

func (exerciseRow) TableName() string { return "fitness_exercises" }

type setRow struct {
	ID         string `gorm:"primaryKey"`
	ExerciseID string `gorm:"index;not null"`
	Reps       int
	Weight     float64
	Position   int
}

func (setRow) TableName() string { return "fitness_sets" }

type mealRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index;not null"`
	Name         string
	Instructions []string `gorm:"serializer:json"`
}

func (mealRow) TableName() string { return "meals" }

type ingredientRow struct {
	ID       string `gorm:"primaryKey"`
	MealID   string `gorm:"index;not null"`
	Name     string
	Quantity string
}

func (ingredientRow) TableName() string { return "meal_ingredients" }

type plannedMealRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	MealID    string
	Title     string
	Date      time.Time
	StartTime time.Time
	CreatedAt time.Time
}

func (plannedMealRow) TableName() string { return "planned_meals" }

type cookingRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	MealID      string
	InProgress  bool
	StartedAt   time.Time
	EndedAt     *time.Time
	CurrentStep int
}

func (cookingRow) TableName() string { return "cooking_sessions" }

type cookedMealRow struct {
	UserID       string `gorm:"primaryKey"`
	MealID       string `gorm:"primaryKey"`
	CookCount    int
	LastCookedAt time.Time
}

func (cookedMealRow) TableName() string { return "cooked_meals" }

type noteRow struct {
	ID     string `gorm:"primaryKey"`
	UserID string `gorm:"index;not null"`
	Title  string
	Date   *time.Time
}

func (noteRow) TableName() string { return "scratchpad_notes" }

type expenseRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Description string
	Amount      float64
	Date        *time.Time
}

func (expenseRow) TableName() string { return "expenses" }

type eventRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Title       string
	StartTime   time.Time `gorm:"index"`
	EndTime     time.Time
	Source      *string
	SourceID    *string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (eventRow) TableName() string { return "calendar_events" }
