package domain

import (
	"context"
	"sync"
)

// Lifecycle is the session surface a view model drives.
type Lifecycle interface {
	Refresh(ctx context.Context, userID string) (*ActivitySession, error)
	Start(ctx context.Context, userID string, in StartInput) (StartResult, error)
	End(ctx context.Context, userID, sessionID string) (EndResult, error)
}

// SessionView holds the display state of one user's live session. Every
// transition is followed by a refresh so the view reflects the store.
type SessionView struct {
	lifecycle Lifecycle
	userID    string

	mu     sync.Mutex
	state  SessionState
	active *ActivitySession
}

// NewSessionView constructs an idle view for userID.
func NewSessionView(lifecycle Lifecycle, userID string) *SessionView {
	return &SessionView{lifecycle: lifecycle, userID: userID, state: StateIdle}
}

// Refresh re-reads the in-progress session.
func (v *SessionView) Refresh(ctx context.Context) (*ActivitySession, error) {
	active, err := v.lifecycle.Refresh(ctx, v.userID)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = active
	if active != nil {
		v.state = StateInProgress
	} else {
		v.state = StateIdle
	}
	return active, nil
}

// Start begins or resumes a session.
func (v *SessionView) Start(ctx context.Context, in StartInput) (StartResult, error) {
	restore := v.transition(StateStarting)
	result, err := v.lifecycle.Start(ctx, v.userID, in)
	if err != nil {
		restore()
		return StartResult{}, err
	}
	if _, err := v.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// End completes the active session.
func (v *SessionView) End(ctx context.Context) (EndResult, error) {
	active := v.Active()
	if active == nil {
		return EndResult{}, ErrSessionNotInProgress
	}
	restore := v.transition(StateEnding)
	result, err := v.lifecycle.End(ctx, v.userID, active.ID)
	if err != nil {
		restore()
		return EndResult{}, err
	}
	if _, err := v.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// ClearLocal drops the cached session without touching the store.
func (v *SessionView) ClearLocal() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = nil
	v.state = StateIdle
}

// State returns the displayed lifecycle state.
func (v *SessionView) State() SessionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Active returns a copy of the displayed session, or nil.
func (v *SessionView) Active() *ActivitySession {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return nil
	}
	copied := *v.active
	return &copied
}

func (v *SessionView) transition(state SessionState) func() {
	v.mu.Lock()
	previous := v.state
	v.state = state
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		v.state = previous
		v.mu.Unlock()
	}
}
