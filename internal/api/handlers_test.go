package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/persistence/sqlite"
	"example.com/tracker/internal/testsupport"
)

var t0 = time.Date(2025, time.October, 27, 18, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	store *sqlite.Store
	clock *testsupport.Clock
	mux   *http.ServeMux
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := testsupport.NewSQLiteStore(t)
	clock := testsupport.NewClock(t0)
	services := domain.NewServices(store, domain.WithClock(clock.Now), domain.WithLogger(testsupport.Logger(t)))

	mux := http.NewServeMux()
	handlerOpts := append([]Option{WithoutAuth(), WithLogger(testsupport.Logger(t))}, opts...)
	NewHandler(services, handlerOpts...).RegisterRoutes(mux)
	return &fixture{t: t, store: store, clock: clock, mux: mux}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) post(path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.do(newPost(f.t, path, body))
}

func newPost(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeAs[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestCalendarActions(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/calendar/insert", map[string]any{"event": map[string]any{
		"userId":    "u1",
		"title":     "Dentist",
		"startTime": t0,
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	inserted := decodeAs[EventResponse](t, rr)
	require.True(t, inserted.OK)
	require.NotEmpty(t, inserted.Event.ID)
	require.Equal(t, t0.Add(time.Hour), inserted.Event.EndTime, "end defaults to one hour after start")

	rr = f.post("/calendar/list", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rr.Code)
	listed := decodeAs[[]EventView](t, rr)
	require.Len(t, listed, 1)

	moved := t0.Add(48 * time.Hour)
	rr = f.post("/calendar/update", map[string]any{"id": inserted.Event.ID, "userId": "u1", "newStart": moved})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeAs[EventResponse](t, rr)
	require.Equal(t, moved, updated.Event.StartTime)
	require.Equal(t, moved.Add(time.Hour), updated.Event.EndTime, "length is kept without newEnd")

	rr = f.post("/calendar/delete", map[string]any{"id": inserted.Event.ID, "userId": "u1"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.post("/calendar/list", map[string]any{"userId": "u1"})
	require.Empty(t, decodeAs[[]EventView](t, rr))

	rr = f.post("/calendar/delete", map[string]any{"id": inserted.Event.ID, "userId": "u1"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCalendarValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/calendar/list", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeAs[errorBody](t, rr)
	require.Equal(t, "validation_failed", body.Type)
	require.Equal(t, "userId", body.Field)

	rr = f.post("/calendar/update", map[string]any{"id": "e1", "userId": "u1"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "newStart", decodeAs[errorBody](t, rr).Field)

	rr = f.post("/calendar/insert", map[string]any{"event": map[string]any{
		"userId": "u1", "title": "x", "startTime": t0, "source": "spaceship", "sourceId": "s1",
	}})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.post("/calendar/explode", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodPost, "/calendar/list", bytes.NewBufferString("{not json")))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCardioSessionOverHTTP(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/sessions/cardio/start", map[string]any{"userId": "u1", "name": "Run"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	started := decodeAs[SessionResponse](t, rr)
	require.True(t, started.Session.InProgress)
	require.False(t, started.Resumed)

	rr = f.post("/sessions/cardio/start", map[string]any{"userId": "u1", "name": "Run again"})
	require.Equal(t, http.StatusOK, rr.Code)
	replay := decodeAs[SessionResponse](t, rr)
	require.True(t, replay.Resumed)
	require.Equal(t, started.Session.ID, replay.Session.ID)
	require.Equal(t, "Run", replay.Session.Name)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/sessions/cardio?userId=u1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	state := decodeAs[SessionStateResponse](t, rr)
	require.Equal(t, string(domain.StateInProgress), state.State)
	require.NotNil(t, state.Session)
	require.Equal(t, started.Session.ID, state.Session.ID)

	f.clock.Advance(32 * time.Minute)
	rr = f.post("/sessions/cardio/end", map[string]any{"userId": "u1", "sessionId": started.Session.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	ended := decodeAs[SessionResponse](t, rr)
	require.Equal(t, 32, ended.Session.DurationMinutes)
	require.False(t, ended.Session.InProgress)
	require.Equal(t, string(domain.StatusCompleted), ended.Session.Status)
	require.Empty(t, ended.Warnings)

	rr = f.post("/sessions/cardio/end", map[string]any{"userId": "u1", "sessionId": started.Session.ID})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/sessions/cardio?userId=u1", nil))
	state = decodeAs[SessionStateResponse](t, rr)
	require.Equal(t, string(domain.StateIdle), state.State)
	require.Nil(t, state.Session)

	rr = f.post("/calendar/list", map[string]any{"userId": "u1"})
	events := decodeAs[[]EventView](t, rr)
	require.Len(t, events, 1)
	require.Equal(t, "cardio", events[0].Source)
	require.Equal(t, started.Session.ID, events[0].SourceID)
	require.Equal(t, "/fitness/cardio/"+started.Session.ID, events[0].DetailRoute)
}

func TestUnknownSessionKind(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/sessions/yoga/start", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.post("/sessions/cardio/dance", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/sessions/cardio", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlanThenPromoteRetiresPlannedMirror(t *testing.T) {
	f := newFixture(t)

	slot := t0.Add(24 * time.Hour)
	rr := f.post("/sessions/workout/plan", map[string]any{"userId": "u1", "name": "Legs", "start": slot})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	planned := decodeAs[SessionResponse](t, rr)
	require.Equal(t, string(domain.StatusPlanned), planned.Session.Status)
	require.NotNil(t, planned.Event)
	require.Equal(t, "planned", planned.Event.Description)

	rr = f.post("/sessions/workout/start", map[string]any{"userId": "u1", "plannedId": planned.Session.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	promoted := decodeAs[SessionResponse](t, rr)
	require.True(t, promoted.Promoted)
	require.Equal(t, planned.Session.ID, promoted.Session.ID)
	require.True(t, promoted.Session.InProgress)

	rr = f.post("/calendar/list", map[string]any{"userId": "u1"})
	require.Empty(t, decodeAs[[]EventView](t, rr), "planned mirror is retired on promotion")
}

func TestCascadeDeleteOverHTTP(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/sessions/workout/plan", map[string]any{"userId": "u1", "name": "Push", "start": t0})
	require.Equal(t, http.StatusOK, rr.Code)
	workoutID := decodeAs[SessionResponse](t, rr).Session.ID

	rr = f.post("/workout/insert", map[string]any{
		"userId":    "u1",
		"workoutId": workoutID,
		"exercises": []map[string]any{{"id": "ex-1", "name": "Bench", "position": 1}, {"id": "ex-2", "name": "Dips", "position": 2}},
		"sets": []map[string]any{
			{"exerciseId": "ex-1", "reps": 5, "weight": 80, "position": 1},
			{"exerciseId": "ex-1", "reps": 5, "weight": 80, "position": 2},
			{"exerciseId": "ex-2", "reps": 10, "position": 1},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	inserted := decodeAs[WorkoutInsertResponse](t, rr)
	require.Len(t, inserted.Sets, 3)
	for _, set := range inserted.Sets {
		require.NotEmpty(t, set.ID)
	}

	rr = f.post("/workout/insert", map[string]any{
		"userId": "u1", "workoutId": workoutID,
		"sets": []map[string]any{{"exerciseId": "ex-404", "reps": 1}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.post("/entities/workout/delete", map[string]any{"userId": "u1", "id": workoutID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	deleted := decodeAs[EntityDeleteResponse](t, rr)
	require.EqualValues(t, 5, deleted.ChildrenDeleted)
	require.Empty(t, deleted.Warnings)

	ids, err := f.store.ListExerciseIDs(context.Background(), workoutID)
	require.NoError(t, err)
	require.Empty(t, ids)

	rr = f.post("/calendar/list", map[string]any{"userId": "u1"})
	require.Empty(t, decodeAs[[]EventView](t, rr))

	rr = f.post("/entities/workout/delete", map[string]any{"userId": "u1", "id": workoutID})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.post("/entities/spaceship/delete", map[string]any{"userId": "u1", "id": workoutID})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWorkoutDeleteOrder(t *testing.T) {
	f := newFixture(t)

	rr := f.post("/sessions/workout/plan", map[string]any{"userId": "u1", "start": t0})
	workoutID := decodeAs[SessionResponse](t, rr).Session.ID
	rr = f.post("/workout/insert", map[string]any{
		"userId": "u1", "workoutId": workoutID,
		"exercises": []map[string]any{{"id": "ex-1", "name": "Squat"}},
		"sets":      []map[string]any{{"id": "set-1", "exerciseId": "ex-1", "reps": 3}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.post("/workout/delete", map[string]any{"userId": "u1", "workoutId": workoutID, "setIds": []string{"set-1"}, "exerciseIds": []string{"ex-1"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.EqualValues(t, 2, decodeAs[WorkoutDeleteResponse](t, rr).Deleted)

	rr = f.post("/workout/delete", map[string]any{"userId": "u2", "workoutId": workoutID, "setIds": []string{"set-1"}})
	require.Equal(t, http.StatusNotFound, rr.Code, "other users cannot touch the workout")
}

func TestCookingOverHTTP(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertMeal(context.Background(), domain.Meal{
		ID: "meal-1", UserID: "u1", Name: "Risotto", Instructions: []string{"Toast rice", "Add stock", "Stir in parmesan"},
	}))

	rr := f.post("/cooking/start", map[string]any{"userId": "u1", "mealId": "meal-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	started := decodeAs[CookingResponse](t, rr)
	require.NotNil(t, started.Session)
	require.Equal(t, 1, started.Session.CurrentStep)
	require.Len(t, started.Meal.Instructions, 3)

	rr = f.post("/cooking/step", map[string]any{"userId": "u1", "sessionId": started.Session.ID, "step": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, 3, decodeAs[CookingResponse](t, rr).Session.CurrentStep)

	rr = f.post("/cooking/step", map[string]any{"userId": "u1", "sessionId": started.Session.ID, "step": 4})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	f.clock.Advance(40 * time.Minute)
	rr = f.post("/cooking/finish", map[string]any{"userId": "u1", "sessionId": started.Session.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	finished := decodeAs[CookingResponse](t, rr)
	require.False(t, finished.Session.InProgress)
	require.NotNil(t, finished.Cooked)
	require.Equal(t, 1, finished.Cooked.CookCount)
	require.NotNil(t, finished.Event)
	require.Equal(t, "meal", finished.Event.Source)
	require.Equal(t, string(domain.StateIdle), finished.State)

	rr = f.post("/cooking/current", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Nil(t, decodeAs[CookingResponse](t, rr).Session)

	rr = f.post("/cooking/start", map[string]any{"userId": "u1", "mealId": "missing"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMealPlanOverHTTP(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertMeal(context.Background(), domain.Meal{ID: "meal-1", UserID: "u1", Name: "Tacos"}))

	slot := time.Date(2025, time.October, 30, 19, 0, 0, 0, time.UTC)
	rr := f.post("/meals/plan", map[string]any{"userId": "u1", "mealId": "meal-1", "start": slot})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeAs[MealPlanResponse](t, rr)
	require.Equal(t, "2025-10-30", resp.Planned.Date)
	require.NotNil(t, resp.Event)
	require.Equal(t, "planned_meal", resp.Event.Source)
	require.Equal(t, resp.Planned.ID, resp.Event.SourceID)

	rr = f.post("/meals/plan", map[string]any{"userId": "u1", "mealId": "meal-1"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthorization(t *testing.T) {
	store := testsupport.NewSQLiteStore(t)
	mux := http.NewServeMux()
	NewHandler(domain.NewServices(store)).RegisterRoutes(mux)

	withClaims := func(req *http.Request, subject string, scopes ...string) *http.Request {
		set := make(map[string]struct{}, len(scopes))
		for _, scope := range scopes {
			set[scope] = struct{}{}
		}
		claims := &auth.Claims{Subject: subject, Scopes: set, ExpiresAt: time.Now().Add(time.Hour)}
		return req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	serve := func(req *http.Request) int {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr.Code
	}

	body := map[string]any{"userId": "u1"}
	require.Equal(t, http.StatusUnauthorized, serve(newPost(t, "/calendar/list", body)))
	require.Equal(t, http.StatusForbidden, serve(withClaims(newPost(t, "/calendar/list", body), "u1", auth.ScopeActivitiesRead)))
	require.Equal(t, http.StatusForbidden, serve(withClaims(newPost(t, "/calendar/list", body), "u2", auth.ScopeCalendarRead)))
	require.Equal(t, http.StatusOK, serve(withClaims(newPost(t, "/calendar/list", body), "u1", auth.ScopeCalendarRead)))
	require.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/healthz", nil)))
}
