package api

import (
	"net/http"
	"strings"
	"time"

	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
)

// SessionStateResponse answers GET /sessions/{kind}.
type SessionStateResponse struct {
	State   string       `json:"state"`
	Session *SessionView `json:"session"`
}

func (h *Handler) sessionState(w http.ResponseWriter, r *http.Request) {
	manager, err := h.services.Session(r.PathValue("kind"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		h.writeDomainError(w, &domain.ValidationError{Field: "userId", Reason: "is required"})
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesRead, userID) {
		return
	}

	active, err := manager.Refresh(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := SessionStateResponse{State: string(manager.State(userID))}
	if active != nil {
		view := toSessionView(manager.Kind().Name, *active)
		resp.Session = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionRequest is the payload shared by the session actions.
type SessionRequest struct {
	UserID    string     `json:"userId"`
	SessionID string     `json:"sessionId,omitempty"`
	PlannedID string     `json:"plannedId,omitempty"`
	Name      string     `json:"name,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
}

// Validate ensures request correctness. Action specific fields are checked
// by the session manager.
func (r SessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	return nil
}

// SessionResponse reports a session after a lifecycle transition.
type SessionResponse struct {
	Session  SessionView `json:"session"`
	Resumed  bool        `json:"resumed,omitempty"`
	Promoted bool        `json:"promoted,omitempty"`
	Event    *EventView  `json:"event,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

func (h *Handler) sessionAction(w http.ResponseWriter, r *http.Request) {
	manager, err := h.services.Session(r.PathValue("kind"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	action := r.PathValue("action")
	if action != "start" && action != "end" && action != "plan" {
		writeError(w, http.StatusNotFound, "not_found", "unknown session action "+action)
		return
	}

	var req SessionRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesWrite, req.UserID) {
		return
	}

	kind := manager.Kind().Name
	ctx := r.Context()
	switch action {
	case "start":
		result, err := manager.Start(ctx, req.UserID, domain.StartInput{Name: req.Name, Notes: req.Notes, PlannedID: req.PlannedID})
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			Session:  toSessionView(kind, result.Session),
			Resumed:  result.Resumed,
			Promoted: result.Promoted,
			Warnings: warningStrings(result.Warnings),
		})
	case "end":
		result, err := manager.End(ctx, req.UserID, req.SessionID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			Session:  toSessionView(kind, result.Session),
			Warnings: warningStrings(result.Warnings),
		})
	case "plan":
		in := domain.PlanInput{Name: req.Name, Notes: req.Notes, End: req.End}
		if req.Start != nil {
			in.Start = *req.Start
		}
		result, err := manager.Plan(ctx, req.UserID, in)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		resp := SessionResponse{
			Session:  toSessionView(kind, result.Session),
			Warnings: warningStrings(result.Warnings),
		}
		if result.Event != nil {
			view := toEventView(*result.Event)
			resp.Event = &view
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CookingRequest is the payload shared by the cooking actions.
type CookingRequest struct {
	UserID    string `json:"userId"`
	MealID    string `json:"mealId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Step      int    `json:"step,omitempty"`
}

// Validate ensures request correctness.
func (r CookingRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	return nil
}

// CookingResponse reports the cooking session after an action.
type CookingResponse struct {
	State    string          `json:"state"`
	Session  *CookingView    `json:"session"`
	Meal     *MealView       `json:"meal,omitempty"`
	Resumed  bool            `json:"resumed,omitempty"`
	Cooked   *CookedMealView `json:"cooked,omitempty"`
	Event    *EventView      `json:"event,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (h *Handler) cooking(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	switch action {
	case "current", "start", "step", "finish", "cancel":
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown cooking action "+action)
		return
	}

	var req CookingRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	scope := auth.ScopeActivitiesWrite
	if action == "current" {
		scope = auth.ScopeActivitiesRead
	}
	if !h.authorize(w, r, scope, req.UserID) {
		return
	}

	cooking := h.services.Cooking
	ctx := r.Context()
	var (
		resp    CookingResponse
		session *domain.CookingSession
		err     error
	)
	switch action {
	case "current":
		session, err = cooking.Current(ctx, req.UserID)
	case "start":
		var result domain.CookingStartResult
		result, err = cooking.Start(ctx, req.UserID, req.MealID)
		if err == nil {
			session = &result.Session
			resp.Resumed = result.Resumed
			resp.Meal = &MealView{ID: result.Meal.ID, Name: result.Meal.Name, Instructions: result.Meal.Instructions}
		}
	case "step":
		var updated domain.CookingSession
		updated, err = cooking.SetStep(ctx, req.UserID, req.SessionID, req.Step)
		session = &updated
	case "finish":
		var result domain.CookingFinishResult
		result, err = cooking.Finish(ctx, req.UserID, req.SessionID)
		if err == nil {
			session = &result.Session
			if result.Cooked != nil {
				resp.Cooked = &CookedMealView{MealID: result.Cooked.MealID, CookCount: result.Cooked.CookCount, LastCookedAt: result.Cooked.LastCookedAt}
			}
			if result.Event != nil {
				view := toEventView(*result.Event)
				resp.Event = &view
			}
			resp.Warnings = warningStrings(result.Warnings)
		}
	case "cancel":
		var cancelled domain.CookingSession
		cancelled, err = cooking.Cancel(ctx, req.UserID, req.SessionID)
		session = &cancelled
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp.State = string(cooking.State(req.UserID))
	if session != nil {
		view := toCookingView(*session)
		resp.Session = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// EntityDeleteRequest is the payload for POST /entities/{source}/delete.
type EntityDeleteRequest struct {
	UserID string `json:"userId"`
	ID     string `json:"id"`
}

// Validate ensures request correctness.
func (r EntityDeleteRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(r.ID) == "" {
		return &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	return nil
}

// EntityDeleteResponse reports a cascade delete.
type EntityDeleteResponse struct {
	OK              bool     `json:"ok"`
	Source          string   `json:"source"`
	ID              string   `json:"id"`
	ChildrenDeleted int64    `json:"childrenDeleted"`
	Warnings        []string `json:"warnings,omitempty"`
}

func (h *Handler) deleteEntity(w http.ResponseWriter, r *http.Request) {
	source, err := domain.ParseSourceType(r.PathValue("source"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var req EntityDeleteRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesWrite, req.UserID) {
		return
	}

	result, err := h.services.Cascade.DeleteWithChildren(r.Context(), source, req.ID, req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EntityDeleteResponse{
		OK:              true,
		Source:          string(result.Source),
		ID:              result.EntityID,
		ChildrenDeleted: result.ChildrenDeleted,
		Warnings:        warningStrings(result.Warnings),
	})
}

// MealPlanRequest is the payload for POST /meals/plan.
type MealPlanRequest struct {
	UserID string     `json:"userId"`
	MealID string     `json:"mealId"`
	Start  *time.Time `json:"start"`
	End    *time.Time `json:"end,omitempty"`
}

// Validate ensures request correctness.
func (r MealPlanRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(r.MealID) == "" {
		return &domain.ValidationError{Field: "mealId", Reason: "is required"}
	}
	if r.Start == nil || r.Start.IsZero() {
		return &domain.ValidationError{Field: "start", Reason: "is required"}
	}
	return nil
}

// MealPlanResponse reports the planned meal and its mirror.
type MealPlanResponse struct {
	Planned  PlannedMealView `json:"planned"`
	Event    *EventView      `json:"event,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

func (h *Handler) planMeal(w http.ResponseWriter, r *http.Request) {
	var req MealPlanRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.authorize(w, r, auth.ScopeActivitiesWrite, req.UserID) {
		return
	}

	result, err := h.services.Meals.Plan(r.Context(), req.UserID, req.MealID, *req.Start, req.End)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp := MealPlanResponse{
		Planned: PlannedMealView{
			ID:        result.Planned.ID,
			MealID:    result.Planned.MealID,
			Title:     result.Planned.Title,
			Date:      result.Planned.Date.Format(dateLayout),
			StartTime: result.Planned.StartTime,
		},
		Warnings: warningStrings(result.Warnings),
	}
	if result.Event != nil {
		view := toEventView(*result.Event)
		resp.Event = &view
	}
	writeJSON(w, http.StatusOK, resp)
}
