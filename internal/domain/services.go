package domain

// Services bundles the engine components built over one store.
type Services struct {
	Calendar *CalendarService
	Cascade  *CascadeDeleter
	Sessions map[string]*SessionManager
	Cooking  *CookingManager
	Meals    *MealPlanner
	Workouts *WorkoutService
}

// NewServices wires every component against store.
func NewServices(store Store, opts ...Option) *Services {
	calendar := NewCalendarService(store, store, opts...)
	sessions := make(map[string]*SessionManager, len(Kinds()))
	for _, kind := range Kinds() {
		sessions[kind.Name] = NewSessionManager(kind, store, calendar, opts...)
	}
	return &Services{
		Calendar: calendar,
		Cascade:  NewCascadeDeleter(store, calendar, opts...),
		Sessions: sessions,
		Cooking:  NewCookingManager(store, calendar, opts...),
		Meals:    NewMealPlanner(store, calendar, opts...),
		Workouts: NewWorkoutService(store, store),
	}
}

// Session returns the manager for kind, or ErrUnknownKind.
func (s *Services) Session(kind string) (*SessionManager, error) {
	parsed, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return s.Sessions[parsed.Name], nil
}
