// Package api exposes HTTP handlers for the activity lifecycle and calendar engine.
package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/observability"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	services    *domain.Services
	logger      *log.Logger
	authEnabled bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger routes handler logs to logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithoutAuth trusts the userId in request bodies. Used for local single-user mode.
func WithoutAuth() Option {
	return func(h *Handler) { h.authEnabled = false }
}

// NewHandler builds a Handler.
func NewHandler(services *domain.Services, opts ...Option) *Handler {
	h := &Handler{services: services, logger: discardLogger(), authEnabled: true}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.route(mux, "POST /calendar/{action}", h.calendar)
	h.route(mux, "POST /workout/{action}", h.workout)
	h.route(mux, "GET /sessions/{kind}", h.sessionState)
	h.route(mux, "POST /sessions/{kind}/{action}", h.sessionAction)
	h.route(mux, "POST /cooking/{action}", h.cooking)
	h.route(mux, "POST /entities/{source}/delete", h.deleteEntity)
	h.route(mux, "POST /meals/plan", h.planMeal)
	h.route(mux, "GET /healthz", healthz)
}

func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		observability.ObserveHTTPRequest(r.Method, pattern, rec.status, time.Since(start))
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize checks the caller's scope and that they act on their own rows.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope, userID string) bool {
	if !h.authEnabled {
		return true
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	if userID != "" && claims.Subject != userID {
		writeError(w, http.StatusForbidden, "forbidden", "token subject does not match userId")
		return false
	}
	return true
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	switch action := r.PathValue("action"); action {
	case "list":
		h.listEvents(w, r)
	case "insert":
		h.insertEvent(w, r)
	case "update":
		h.updateEvent(w, r)
	case "delete":
		h.deleteEvent(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown calendar action "+action)
	}
}

// CalendarListRequest is the payload for POST /calendar/list.
type CalendarListRequest struct {
	UserID string     `json:"userId"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// Validate ensures request correctness.
func (r CalendarListRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return &domain.ValidationError{Field: "to", Reason: "must not precede from"}
	}
	return nil
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	var req CalendarListRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeCalendarRead, req.UserID) {
		return
	}

	var window *domain.TimeRange
	if req.From != nil || req.To != nil {
		window = &domain.TimeRange{}
		if req.From != nil {
			window.From = *req.From
		}
		if req.To != nil {
			window.To = *req.To
		}
	}
	events, err := h.services.Calendar.List(r.Context(), req.UserID, window)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventViews(events))
}

// EventInput is a calendar event supplied by the client, without id.
type EventInput struct {
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Source      string     `json:"source,omitempty"`
	SourceID    string     `json:"sourceId,omitempty"`
	Description string     `json:"description,omitempty"`
}

// CalendarInsertRequest is the payload for POST /calendar/insert.
type CalendarInsertRequest struct {
	Event *EventInput `json:"event"`
}

// Validate ensures request correctness.
func (r CalendarInsertRequest) Validate() error {
	if r.Event == nil {
		return &domain.ValidationError{Field: "event", Reason: "is required"}
	}
	if strings.TrimSpace(r.Event.UserID) == "" {
		return &domain.ValidationError{Field: "event.userId", Reason: "is required"}
	}
	if r.Event.StartTime.IsZero() {
		return &domain.ValidationError{Field: "event.startTime", Reason: "is required"}
	}
	return nil
}

// EventResponse wraps a written event.
type EventResponse struct {
	OK       bool      `json:"ok"`
	Event    EventView `json:"event"`
	Warnings []string  `json:"warnings,omitempty"`
}

func (h *Handler) insertEvent(w http.ResponseWriter, r *http.Request) {
	var req CalendarInsertRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeCalendarWrite, req.Event.UserID) {
		return
	}

	in := req.Event
	event := domain.CalendarEvent{
		UserID:      in.UserID,
		Title:       in.Title,
		StartTime:   in.StartTime,
		Source:      domain.SourceType(strings.ToLower(strings.TrimSpace(in.Source))),
		SourceID:    in.SourceID,
		Description: in.Description,
	}
	if in.EndTime != nil {
		event.EndTime = *in.EndTime
	}
	stored, err := h.services.Calendar.Insert(r.Context(), event)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{OK: true, Event: toEventView(stored)})
}

// CalendarUpdateRequest is the payload for POST /calendar/update.
type CalendarUpdateRequest struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	NewStart           *time.Time `json:"newStart"`
	NewEnd             *time.Time `json:"newEnd,omitempty"`
	UpdateLinkedEntity bool       `json:"updateLinkedEntity,omitempty"`
}

// Validate ensures request correctness.
func (r CalendarUpdateRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if r.NewStart == nil || r.NewStart.IsZero() {
		return &domain.ValidationError{Field: "newStart", Reason: "is required"}
	}
	return nil
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	var req CalendarUpdateRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeCalendarWrite, req.UserID) {
		return
	}

	result, err := h.services.Calendar.Reschedule(r.Context(), domain.RescheduleInput{
		EventID:            req.ID,
		UserID:             req.UserID,
		NewStart:           *req.NewStart,
		NewEnd:             req.NewEnd,
		UpdateLinkedEntity: req.UpdateLinkedEntity,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{
		OK:       true,
		Event:    toEventView(result.Event),
		Warnings: warningStrings(result.Warnings),
	})
}

// CalendarDeleteRequest is the payload for POST /calendar/delete.
type CalendarDeleteRequest struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// Validate ensures request correctness.
func (r CalendarDeleteRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	return nil
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	var req CalendarDeleteRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeCalendarWrite, req.UserID) {
		return
	}
	if err := h.services.Calendar.Delete(r.Context(), req.UserID, req.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{OK: true})
}

func (h *Handler) workout(w http.ResponseWriter, r *http.Request) {
	switch action := r.PathValue("action"); action {
	case "insert":
		h.insertWorkoutRows(w, r)
	case "delete":
		h.deleteWorkoutRows(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown workout action "+action)
	}
}

// WorkoutInsertRequest is the payload for POST /workout/insert.
type WorkoutInsertRequest struct {
	UserID    string         `json:"userId"`
	WorkoutID string         `json:"workoutId"`
	Exercises []ExerciseView `json:"exercises,omitempty"`
	Sets      []SetView      `json:"sets"`
}

// Validate ensures request correctness.
func (r WorkoutInsertRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(r.WorkoutID) == "" {
		return &domain.ValidationError{Field: "workoutId", Reason: "is required"}
	}
	if len(r.Exercises) == 0 && len(r.Sets) == 0 {
		return &domain.ValidationError{Field: "sets", Reason: "must not be empty"}
	}
	return nil
}

// WorkoutInsertResponse echoes the stored rows with their ids.
type WorkoutInsertResponse struct {
	Exercises []ExerciseView `json:"exercises"`
	Sets      []SetView      `json:"sets"`
}

func (h *Handler) insertWorkoutRows(w http.ResponseWriter, r *http.Request) {
	var req WorkoutInsertRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesWrite, req.UserID) {
		return
	}

	in := domain.WorkoutInsert{UserID: req.UserID, WorkoutID: req.WorkoutID}
	for _, ex := range req.Exercises {
		in.Exercises = append(in.Exercises, domain.Exercise{ID: ex.ID, Name: ex.Name, Position: ex.Position})
	}
	for _, set := range req.Sets {
		in.Sets = append(in.Sets, domain.WorkoutSet{ID: set.ID, ExerciseID: set.ExerciseID, Reps: set.Reps, Weight: set.Weight, Position: set.Position})
	}

	stored, err := h.services.Workouts.Insert(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := WorkoutInsertResponse{
		Exercises: make([]ExerciseView, 0, len(stored.Exercises)),
		Sets:      make([]SetView, 0, len(stored.Sets)),
	}
	for _, ex := range stored.Exercises {
		resp.Exercises = append(resp.Exercises, ExerciseView{ID: ex.ID, Name: ex.Name, Position: ex.Position})
	}
	for _, set := range stored.Sets {
		resp.Sets = append(resp.Sets, SetView{ID: set.ID, ExerciseID: set.ExerciseID, Reps: set.Reps, Weight: set.Weight, Position: set.Position})
	}
	writeJSON(w, http.StatusOK, resp)
}

// WorkoutDeleteRequest is the payload for POST /workout/delete.
type WorkoutDeleteRequest struct {
	UserID      string   `json:"userId"`
	WorkoutID   string   `json:"workoutId"`
	SetIDs      []string `json:"setIds"`
	ExerciseIDs []string `json:"exerciseIds"`
}

// Validate ensures request correctness.
func (r WorkoutDeleteRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(r.WorkoutID) == "" {
		return &domain.ValidationError{Field: "workoutId", Reason: "is required"}
	}
	if len(r.SetIDs) == 0 && len(r.ExerciseIDs) == 0 {
		return &domain.ValidationError{Field: "setIds", Reason: "must not be empty"}
	}
	return nil
}

// WorkoutDeleteResponse reports how many rows were removed.
type WorkoutDeleteResponse struct {
	OK      bool  `json:"ok"`
	Deleted int64 `json:"deleted"`
}

func (h *Handler) deleteWorkoutRows(w http.ResponseWriter, r *http.Request) {
	var req WorkoutDeleteRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesWrite, req.UserID) {
		return
	}
	removed, err := h.services.Workouts.Delete(r.Context(), domain.WorkoutDelete{
		UserID:      req.UserID,
		WorkoutID:   req.WorkoutID,
		SetIDs:      req.SetIDs,
		ExerciseIDs: req.ExerciseIDs,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkoutDeleteResponse{OK: true, Deleted: removed})
}
