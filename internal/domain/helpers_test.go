package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/persistence/sqlite"
	"example.com/tracker/internal/testsupport"
)

var (
	t0           = time.Date(2025, time.October, 27, 18, 0, 0, 0, time.UTC)
	errStoreDown = errors.New("store unavailable")
)

// faultyStore wraps a real store and fails selected calls.
type faultyStore struct {
	*sqlite.Store

	mu    sync.Mutex
	fails map[string]error
	calls []string
}

func newFaultyStore(t *testing.T) *faultyStore {
	return &faultyStore{Store: testsupport.NewSQLiteStore(t), fails: map[string]error{}}
}

func (f *faultyStore) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[op] = err
}

func (f *faultyStore) heal(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fails, op)
}

func (f *faultyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fails[op]
}

func (f *faultyStore) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *faultyStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *faultyStore) InsertEvent(ctx context.Context, ev domain.CalendarEvent) error {
	if err := f.check("InsertEvent"); err != nil {
		return err
	}
	return f.Store.InsertEvent(ctx, ev)
}

func (f *faultyStore) DeleteEventsBySource(ctx context.Context, userID string, source domain.SourceType, sourceID string) (int64, error) {
	if err := f.check("DeleteEventsBySource"); err != nil {
		return 0, err
	}
	return f.Store.DeleteEventsBySource(ctx, userID, source, sourceID)
}

func (f *faultyStore) DeleteChildren(ctx context.Context, rel domain.ChildRelation, parentID string) (int64, error) {
	if err := f.check("DeleteChildren:" + rel.Table); err != nil {
		return 0, err
	}
	return f.Store.DeleteChildren(ctx, rel, parentID)
}

func (f *faultyStore) DeleteEntity(ctx context.Context, desc domain.SourceDescriptor, userID, id string) (bool, error) {
	if err := f.check("DeleteEntity"); err != nil {
		return false, err
	}
	return f.Store.DeleteEntity(ctx, desc, userID, id)
}

func (f *faultyStore) UpdateSchedule(ctx context.Context, desc domain.SourceDescriptor, userID, id string, patch domain.SchedulePatch) (bool, error) {
	if err := f.check("UpdateSchedule"); err != nil {
		return false, err
	}
	return f.Store.UpdateSchedule(ctx, desc, userID, id, patch)
}

func (f *faultyStore) IncrementCookCount(ctx context.Context, userID, mealID string, at time.Time) (domain.CookedMeal, error) {
	if err := f.check("IncrementCookCount"); err != nil {
		return domain.CookedMeal{}, err
	}
	return f.Store.IncrementCookCount(ctx, userID, mealID, at)
}

type harness struct {
	store    *faultyStore
	clock    *testsupport.Clock
	services *domain.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newFaultyStore(t)
	clock := testsupport.NewClock(t0)
	services := domain.NewServices(store, domain.WithClock(clock.Now), domain.WithLogger(testsupport.Logger(t)))
	return &harness{store: store, clock: clock, services: services}
}

func (h *harness) session(t *testing.T, kind string) *domain.SessionManager {
	t.Helper()
	m, err := h.services.Session(kind)
	require.NoError(t, err)
	return m
}

func (h *harness) events(t *testing.T, userID string) []domain.CalendarEvent {
	t.Helper()
	events, err := h.services.Calendar.List(context.Background(), userID, nil)
	require.NoError(t, err)
	return events
}

func (h *harness) inProgress(t *testing.T, kind domain.ActivityKind, userID string) []domain.ActivitySession {
	t.Helper()
	rows, err := h.store.ListInProgress(context.Background(), kind, userID)
	require.NoError(t, err)
	return rows
}

// note is a minimal Titled entity.
type note struct{ id, name string }

func (n note) EntityID() string    { return n.id }
func (n note) DisplayName() string { return n.name }
