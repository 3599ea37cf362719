package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/api"
	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/drag"
	"example.com/tracker/internal/testsupport"
)

func newServer(t *testing.T) (*httptest.Server, *domain.Services) {
	t.Helper()
	store := testsupport.NewSQLiteStore(t)
	services := domain.NewServices(store, domain.WithLogger(testsupport.Logger(t)))
	mux := http.NewServeMux()
	api.NewHandler(services, api.WithoutAuth()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, services
}

var _ drag.Rescheduler = (*CalendarClient)(nil)

func TestCalendarClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)
	c := NewCalendarClient(srv.URL + "/")

	start := time.Date(2025, time.October, 27, 9, 0, 0, 0, time.UTC)
	event, err := c.Insert(ctx, domain.CalendarEvent{UserID: "u1", Title: "Standup", StartTime: start, EndTime: start.Add(15 * time.Minute)})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)

	events, err := c.List(ctx, "u1", &domain.TimeRange{From: start.Add(-time.Hour), To: start.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "Standup", events[0].Title)

	moved := start.Add(24 * time.Hour)
	result, err := c.Reschedule(ctx, domain.RescheduleInput{EventID: event.ID, UserID: "u1", NewStart: moved})
	require.NoError(t, err)
	require.True(t, result.Event.StartTime.Equal(moved))
	require.True(t, result.Event.EndTime.Equal(moved.Add(15*time.Minute)))

	require.NoError(t, c.Delete(ctx, "u1", event.ID))
	err = c.Delete(ctx, "u1", event.ID)
	require.ErrorIs(t, err, domain.ErrEventNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestCalendarClientValidationError(t *testing.T) {
	srv, _ := newServer(t)
	c := NewCalendarClient(srv.URL)

	_, err := c.List(context.Background(), "", nil)
	require.Error(t, err)
	require.True(t, domain.IsValidation(err))
}

func TestCalendarClientDrivesDragDrops(t *testing.T) {
	ctx := context.Background()
	srv, services := newServer(t)
	c := NewCalendarClient(srv.URL)

	start := time.Date(2025, time.October, 27, 7, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	planned, err := services.Sessions["stretching"].Plan(ctx, "u1", domain.PlanInput{Start: start, End: &end})
	require.NoError(t, err)
	require.NotNil(t, planned.Event)

	var warnings []error
	g := drag.NewGesture(drag.DropHandler(ctx, c, "u1", true, func(r domain.RescheduleResult) {
		warnings = append(warnings, r.Warnings...)
	}))
	grid := drag.DayGrid{CellWidth: 100, CellHeight: 100, Columns: 7, Rows: 1, FirstDay: time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC)}

	g.PointerDown(drag.Point{X: 50, Y: 50}, drag.Context{ID: planned.Event.ID, OriginalStart: planned.Event.StartTime, OriginalEnd: planned.Event.EndTime})
	g.PointerMove(drag.Point{X: 450, Y: 50})
	fired, err := g.PointerUp(drag.Point{X: 450, Y: 50}, grid.Target)
	require.NoError(t, err)
	require.True(t, fired)
	require.Empty(t, warnings)

	events, err := services.Calendar.List(ctx, "u1", nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].StartTime.Equal(time.Date(2025, time.October, 31, 7, 0, 0, 0, time.UTC)))
	require.True(t, events[0].EndTime.Equal(time.Date(2025, time.October, 31, 7, 30, 0, 0, time.UTC)))
}

func TestCalendarClientSendsBearerToken(t *testing.T) {
	store := testsupport.NewSQLiteStore(t)
	mux := http.NewServeMux()
	api.NewHandler(domain.NewServices(store)).RegisterRoutes(mux)
	cfg := auth.Config{Secret: "test-secret"}
	srv := httptest.NewServer(auth.NewMiddleware(cfg).Wrap(mux))
	t.Cleanup(srv.Close)

	_, err := NewCalendarClient(srv.URL).List(context.Background(), "u1", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	token := testsupport.Token(t, cfg.Secret, "u1", auth.ScopeCalendarRead)
	events, err := NewCalendarClient(srv.URL, WithToken(token)).List(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Empty(t, events)
}
