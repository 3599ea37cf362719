// Package client calls the calendar endpoints over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/tracker/internal/api"
	"example.com/tracker/internal/domain"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Type   string
	Field  string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker api: %d %s: %s", e.Status, e.Type, e.Detail)
}

// Unwrap maps the error onto the domain sentinels so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Type == "validation_failed":
		return &domain.ValidationError{Field: e.Field, Reason: e.Detail}
	case e.Status == http.StatusNotFound:
		return domain.ErrEventNotFound
	case e.Status == http.StatusConflict:
		return domain.ErrEventConflict
	}
	return nil
}

// CalendarClient talks to POST /calendar/{action}.
type CalendarClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a CalendarClient.
type Option func(*CalendarClient)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *CalendarClient) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CalendarClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewCalendarClient builds a client for the service at baseURL.
func NewCalendarClient(baseURL string, opts ...Option) *CalendarClient {
	c := &CalendarClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the user's events, optionally bounded by window.
func (c *CalendarClient) List(ctx context.Context, userID string, window *domain.TimeRange) ([]domain.CalendarEvent, error) {
	req := api.CalendarListRequest{UserID: userID}
	if window != nil {
		if !window.From.IsZero() {
			req.From = &window.From
		}
		if !window.To.IsZero() {
			req.To = &window.To
		}
	}
	var views []api.EventView
	if err := c.post(ctx, "list", req, &views); err != nil {
		return nil, err
	}
	events := make([]domain.CalendarEvent, 0, len(views))
	for _, view := range views {
		events = append(events, fromView(view))
	}
	return events, nil
}

// Insert stores a standalone or linked event.
func (c *CalendarClient) Insert(ctx context.Context, event domain.CalendarEvent) (domain.CalendarEvent, error) {
	in := &api.EventInput{
		UserID:      event.UserID,
		Title:       event.Title,
		StartTime:   event.StartTime,
		Source:      string(event.Source),
		SourceID:    event.SourceID,
		Description: event.Description,
	}
	if !event.EndTime.IsZero() {
		in.EndTime = &event.EndTime
	}
	var resp api.EventResponse
	if err := c.post(ctx, "insert", api.CalendarInsertRequest{Event: in}, &resp); err != nil {
		return domain.CalendarEvent{}, err
	}
	return fromView(resp.Event), nil
}

// Delete removes one event.
func (c *CalendarClient) Delete(ctx context.Context, userID, id string) error {
	return c.post(ctx, "delete", api.CalendarDeleteRequest{ID: id, UserID: userID}, nil)
}

// Reschedule moves an event through POST /calendar/update.
func (c *CalendarClient) Reschedule(ctx context.Context, in domain.RescheduleInput) (domain.RescheduleResult, error) {
	start := in.NewStart
	var resp api.EventResponse
	err := c.post(ctx, "update", api.CalendarUpdateRequest{
		ID:                 in.EventID,
		UserID:             in.UserID,
		NewStart:           &start,
		NewEnd:             in.NewEnd,
		UpdateLinkedEntity: in.UpdateLinkedEntity,
	}, &resp)
	if err != nil {
		return domain.RescheduleResult{}, err
	}
	result := domain.RescheduleResult{Event: fromView(resp.Event)}
	for _, warning := range resp.Warnings {
		result.Warnings = append(result.Warnings, errors.New(warning))
	}
	return result, nil
}

func (c *CalendarClient) post(ctx context.Context, action string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calendar/"+action, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Type  string `json:"type"`
			Field string `json:"field"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Type, apiErr.Field, apiErr.Detail = body.Type, body.Field, body.Error
		} else {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

func fromView(view api.EventView) domain.CalendarEvent {
	return domain.CalendarEvent{
		ID:          view.ID,
		UserID:      view.UserID,
		Title:       view.Title,
		StartTime:   view.StartTime,
		EndTime:     view.EndTime,
		Source:      domain.SourceType(view.Source),
		SourceID:    view.SourceID,
		Description: view.Description,
	}
}
