package domain

import (
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultEventDuration is used when a mirror is created without an end time.
const DefaultEventDuration = time.Hour

type settings struct {
	logger          *log.Logger
	now             func() time.Time
	loc             *time.Location
	defaultDuration time.Duration
}

// Option configures optional behaviour shared by the domain services.
type Option func(*settings)

// WithLogger overrides the logger used to report non-fatal failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source. Tests use it to pin session durations.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the user-facing time zone used to derive calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDefaultEventDuration overrides the mirror length used when no end is given.
func WithDefaultEventDuration(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

func newSettings(prefix string, opts []Option) settings {
	s := settings{
		logger:          log.New(log.Writer(), "["+prefix+"] ", log.LstdFlags|log.Lshortfile),
		now:             func() time.Time { return time.Now().UTC() },
		loc:             time.UTC,
		defaultDuration: DefaultEventDuration,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// dateOf returns midnight UTC of the calendar day t falls on in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

// keyedMutex serialises operations per key (user and activity kind).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// stateTable records the last known lifecycle state per key.
type stateTable struct {
	mu     sync.RWMutex
	states map[string]SessionState
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[string]SessionState)}
}

func (t *stateTable) get(key string) SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if state, ok := t.states[key]; ok {
		return state
	}
	return StateIdle
}

func (t *stateTable) set(key string, state SessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == StateIdle {
		delete(t.states, key)
		return
	}
	t.states[key] = state
}
