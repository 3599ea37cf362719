package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSource is returned when a source type has no registry entry.
	ErrUnknownSource = errors.New("unknown source type")
	// ErrUnknownKind is returned when an activity kind is not registered.
	ErrUnknownKind = errors.New("unknown activity kind")
	// ErrSessionNotFound is returned when a session cannot be located for the user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotInProgress is returned when ending or stepping a session that is not live.
	ErrSessionNotInProgress = errors.New("session is not in progress")
	// ErrSessionConflict signals that the store rejected a second in-progress row.
	ErrSessionConflict = errors.New("another session is already in progress")
	// ErrEventNotFound is returned when a calendar event cannot be located.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrEventConflict signals a duplicate mirror for the same source entity.
	ErrEventConflict = errors.New("calendar event already exists for source")
	// ErrEntityNotFound is returned when a source entity cannot be located for the user.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrMealNotFound is returned when a meal cannot be located for the user.
	ErrMealNotFound = errors.New("meal not found")
	// ErrStepOutOfRange is returned when a cooking step falls outside the meal instructions.
	ErrStepOutOfRange = errors.New("cooking step out of range")
	// ErrDeleteDeclined is returned when the confirmer rejects a cascade delete.
	ErrDeleteDeclined = errors.New("delete not confirmed")
)

// ValidationError reports a missing or malformed input field. It is raised
// before any store call is issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// MirrorSyncError wraps a calendar mirror write that failed after the source
// entity write already committed. Callers surface it as a warning.
type MirrorSyncError struct {
	Op       string
	Source   SourceType
	SourceID string
	Err      error
}

func (e *MirrorSyncError) Error() string {
	return fmt.Sprintf("calendar sync failed (op=%s source=%s id=%s): %v", e.Op, e.Source, e.SourceID, e.Err)
}

func (e *MirrorSyncError) Unwrap() error { return e.Err }

// IsMirrorSync reports whether err is, or wraps, a MirrorSyncError.
func IsMirrorSync(err error) bool {
	var target *MirrorSyncError
	return errors.As(err, &target)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
