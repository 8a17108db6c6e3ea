// Package api provides HTTP handlers for the Mingle API.
package api

import (
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/geo"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/participation"
	"github.com/onnwee/mingle/internal/user"
	"github.com/onnwee/mingle/internal/validate"
)

// Event name validation constraints.
const (
	MinEventNameLength = 3
	MaxEventNameLength = 80
)

// CreateEventRequest represents the request body for creating an event.
type CreateEventRequest struct {
	EventName        string          `json:"event_name"`
	Categories       []string        `json:"categories"`
	Date             time.Time       `json:"date"`
	StartTime        string          `json:"start_time"`
	EndTime          string          `json:"end_time"`
	Longitude        float64         `json:"longitude"`
	Latitude         float64         `json:"latitude"`
	LocationName     string          `json:"location_name"`
	Location         *event.Location `json:"location,omitempty"`
	ShortDescription string          `json:"short_description"`
	Description      string          `json:"description,omitempty"`
	EventImage       *string         `json:"event_image,omitempty"`
	EventPrice       *event.Price    `json:"event_price,omitempty"`
}

// UpdateEventRequest represents the request body for updating an event.
// Nil fields are left unchanged.
type UpdateEventRequest struct {
	EventName        *string      `json:"event_name,omitempty"`
	Categories       []string     `json:"categories,omitempty"`
	Date             *time.Time   `json:"date,omitempty"`
	StartTime        *string      `json:"start_time,omitempty"`
	EndTime          *string      `json:"end_time,omitempty"`
	Longitude        *float64     `json:"longitude,omitempty"`
	Latitude         *float64     `json:"latitude,omitempty"`
	LocationName     *string      `json:"location_name,omitempty"`
	ShortDescription *string      `json:"short_description,omitempty"`
	Description      *string      `json:"description,omitempty"`
	EventImage       *string      `json:"event_image,omitempty"`
	EventPrice       *event.Price `json:"event_price,omitempty"`
}

// EventHandlers holds dependencies for event HTTP handlers.
type EventHandlers struct {
	eventRepo event.Repository
	partRepo  participation.Repository
	userRepo  user.Repository
}

// NewEventHandlers creates a new EventHandlers instance.
func NewEventHandlers(eventRepo event.Repository, partRepo participation.Repository, userRepo user.Repository) *EventHandlers {
	return &EventHandlers{
		eventRepo: eventRepo,
		partRepo:  partRepo,
		userRepo:  userRepo,
	}
}

// validateEventName validates the event name length after trimming.
// Returns error message if validation fails, empty string if valid.
func validateEventName(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < MinEventNameLength {
		return "event name must be at least " + strconv.Itoa(MinEventNameLength) + " characters"
	}
	if len(trimmed) > MaxEventNameLength {
		return "event name must not exceed " + strconv.Itoa(MaxEventNameLength) + " characters"
	}
	return ""
}

// validateTimeWindow validates that start time is before end time. Times are
// clock strings like "18:00".
func validateTimeWindow(startTime, endTime string) string {
	if startTime != "" && endTime != "" && startTime >= endTime {
		return "start time must be before end time"
	}
	return ""
}

// validateCategories checks every category code against the recognised set.
// Returns the first invalid code, or empty string if all valid.
func validateCategories(categories []string) string {
	for _, c := range categories {
		if !event.ValidCategory(c) {
			return c
		}
	}
	return ""
}

// eventIDFromPath extracts the numeric event ID from /events/{id}[/...].
func eventIDFromPath(path string) (int64, bool) {
	pathParts := strings.Split(strings.TrimPrefix(path, "/events/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(pathParts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateEvent handles POST /events - creates a new event.
func (h *EventHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if errMsg := validateEventName(req.EventName); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}
	if invalid := validateCategories(req.Categories); invalid != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCategory)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCategory, "Unknown category: "+invalid)
		return
	}
	if !geo.ValidCoordinate(req.Longitude, req.Latitude) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCoordinate)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCoordinate, "Event coordinates are out of range")
		return
	}
	if errMsg := validateTimeWindow(req.StartTime, req.EndTime); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidTimeRange)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidTimeRange, errMsg)
		return
	}
	if req.EventImage != nil && *req.EventImage != "" {
		if _, err := validate.MediaURL(*req.EventImage); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid event image URL")
			return
		}
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	creator, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load creator", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create event")
		return
	}

	newEvent := &event.Event{
		Name:             html.EscapeString(strings.TrimSpace(req.EventName)),
		Categories:       req.Categories,
		Date:             req.Date,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Longitude:        req.Longitude,
		Latitude:         req.Latitude,
		LocationName:     html.EscapeString(req.LocationName),
		Location:         req.Location,
		ShortDescription: html.EscapeString(req.ShortDescription),
		Description:      html.EscapeString(req.Description),
		Image:            req.EventImage,
		Price:            req.EventPrice,
		Status:           event.StatusUpcoming,
		CreatorID:        userID,
		Creator:          event.Creator{Username: creator.Username, DisplayName: creator.DisplayName()},
	}

	id, err := h.eventRepo.Create(r.Context(), newEvent)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create event", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create event")
		return
	}

	stored, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reload created event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create event")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode event response", "error", err)
	}
}

// GetEvent handles GET /events/{id} - retrieves a single event with its
// participant count.
func (h *EventHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	found, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve event")
		return
	}

	count, err := h.partRepo.CountForEvent(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count participants", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve event")
		return
	}

	response := struct {
		*event.Event
		ParticipantCount int `json:"participants"`
	}{found, count}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode event response", "error", err)
	}
}

// UpdateEvent handles PATCH /events/{id} - updates mutable event fields.
// Only the event creator may update.
func (h *EventHandlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	existing, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve event")
		return
	}
	if existing.CreatorID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event creator may update the event")
		return
	}

	if req.EventName != nil {
		if errMsg := validateEventName(*req.EventName); errMsg != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
			return
		}
		existing.Name = html.EscapeString(strings.TrimSpace(*req.EventName))
	}
	if req.Categories != nil {
		if invalid := validateCategories(req.Categories); invalid != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCategory)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCategory, "Unknown category: "+invalid)
			return
		}
		existing.Categories = req.Categories
	}
	if req.Date != nil {
		existing.Date = *req.Date
	}
	if req.StartTime != nil {
		existing.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		existing.EndTime = *req.EndTime
	}
	if errMsg := validateTimeWindow(existing.StartTime, existing.EndTime); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidTimeRange)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidTimeRange, errMsg)
		return
	}
	if req.Longitude != nil && req.Latitude != nil {
		if !geo.ValidCoordinate(*req.Longitude, *req.Latitude) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCoordinate)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCoordinate, "Event coordinates are out of range")
			return
		}
		existing.Longitude = *req.Longitude
		existing.Latitude = *req.Latitude
	}
	if req.LocationName != nil {
		existing.LocationName = html.EscapeString(*req.LocationName)
	}
	if req.ShortDescription != nil {
		existing.ShortDescription = html.EscapeString(*req.ShortDescription)
	}
	if req.Description != nil {
		existing.Description = html.EscapeString(*req.Description)
	}
	if req.EventImage != nil {
		if *req.EventImage != "" {
			if _, err := validate.MediaURL(*req.EventImage); err != nil {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid event image URL")
				return
			}
		}
		existing.Image = req.EventImage
	}
	if req.EventPrice != nil {
		existing.Price = req.EventPrice
	}

	if err := h.eventRepo.Update(r.Context(), existing); err != nil {
		slog.ErrorContext(r.Context(), "failed to update event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update event")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(existing); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode event response", "error", err)
	}
}

// DeleteEvent handles DELETE /events/{id}. Only the event creator may delete.
func (h *EventHandlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	err := h.eventRepo.Delete(r.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
		case errors.Is(err, event.ErrNotCreator):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event creator may delete the event")
		default:
			slog.ErrorContext(r.Context(), "failed to delete event", "error", err, "event_id", id)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete event")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelEvent handles POST /events/{id}/cancel - marks the event cancelled
// without deleting its record. Only the event creator may cancel.
func (h *EventHandlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	existing, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve event")
		return
	}
	if existing.CreatorID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event creator may cancel the event")
		return
	}
	if existing.Status == event.StatusCancelled {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Event is already cancelled")
		return
	}

	if err := h.eventRepo.UpdateStatus(r.Context(), id, event.StatusCancelled); err != nil {
		slog.ErrorContext(r.Context(), "failed to cancel event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to cancel event")
		return
	}

	existing.Status = event.StatusCancelled
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(existing); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode event response", "error", err)
	}
}

// JoinEvent handles POST /events/{id}/join - records the authenticated user
// as a participant.
func (h *EventHandlers) JoinEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	existing, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get event", "error", err, "event_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve event")
		return
	}
	// Completed and cancelled events no longer accept participants.
	if existing.Status == event.StatusCompleted || existing.Status == event.StatusCancelled {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Event is no longer open for joining")
		return
	}

	if err := h.partRepo.Join(r.Context(), id, userID); err != nil {
		if errors.Is(err, participation.ErrAlreadyJoined) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAlreadyJoined)
			WriteError(w, ctx, http.StatusConflict, ErrCodeAlreadyJoined, "You have already joined this event")
			return
		}
		slog.ErrorContext(r.Context(), "failed to join event", "error", err, "event_id", id, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to join event")
		return
	}

	count, err := h.partRepo.CountForEvent(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count participants", "error", err, "event_id", id)
		count = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"event_id":     id,
		"participants": count,
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode join response", "error", err)
	}
}

// LeaveEvent handles POST /events/{id}/leave - removes the authenticated
// user's participation.
func (h *EventHandlers) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	if err := h.partRepo.Leave(r.Context(), id, userID); err != nil {
		if errors.Is(err, participation.ErrNotJoined) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotJoined)
			WriteError(w, ctx, http.StatusConflict, ErrCodeNotJoined, "You have not joined this event")
			return
		}
		slog.ErrorContext(r.Context(), "failed to leave event", "error", err, "event_id", id, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to leave event")
		return
	}

	count, err := h.partRepo.CountForEvent(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to count participants", "error", err, "event_id", id)
		count = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"event_id":     id,
		"participants": count,
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode leave response", "error", err)
	}
}
