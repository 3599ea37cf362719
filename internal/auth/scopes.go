package auth

// Known OAuth scopes.
const (
	ScopeCalendarRead    = "calendar:read"
	ScopeCalendarWrite   = "calendar:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
)
