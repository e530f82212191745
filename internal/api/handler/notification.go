package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dealstream/api/internal/api/middleware"
	"github.com/dealstream/api/internal/api/response"
	"github.com/dealstream/api/internal/domain"
	"github.com/dealstream/api/internal/service"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListUnread returns the caller's unread notifications, newest first.
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	notifications, err := h.notifications.GetUnread(r.Context(), user.ID)
	if err != nil {
		response.InternalError(w, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	response.OK(w, notifications)
}

// MarkRead marks a single notification as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		response.BadRequest(w, "invalid notification ID")
		return
	}

	notification, err := h.notifications.MarkAsRead(r.Context(), id, user.ID)
	if err != nil {
		writeNotificationError(w, err)
		return
	}

	response.OK(w, notification)
}

// MarkAllRead marks every unread notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	updated, err := h.notifications.MarkAllAsRead(r.Context(), user.ID)
	if err != nil {
		response.InternalError(w, "failed to mark notifications read")
		return
	}

	response.OK(w, map[string]any{"updated": len(updated)})
}

// Delete removes one of the caller's notifications.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		response.BadRequest(w, "invalid notification ID")
		return
	}

	if err := h.notifications.Delete(r.Context(), id, user.ID); err != nil {
		writeNotificationError(w, err)
		return
	}

	response.NoContent(w)
}

func writeNotificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "notification not found")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "not your notification")
	default:
		response.InternalError(w, "notification operation failed")
	}
}
