// Package handler exposes the in-app notification HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"

	"github.com/KHABI-TEQ/Backend-sub001/internal/notification/inapp"
	"github.com/KHABI-TEQ/Backend-sub001/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidNotificationID = "invalid notification ID"

// Handler handles HTTP requests for in-app notifications.
type Handler struct {
	inApp *inapp.Service
}

// New creates a new notification handler.
func New(inApp *inapp.Service) *Handler {
	return &Handler{inApp: inApp}
}

// HandleList returns the requester's notifications, newest first.
// GET /api/v1/notifications?page=&pageSize=
func (h *Handler) HandleList(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, total, err := h.inApp.List(c.Request.Context(), identity.UserID(), page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"notifications": items, "total": total})
}

// HandleUnreadCount returns the requester's unread notification count.
// GET /api/v1/notifications/unread-count
func (h *Handler) HandleUnreadCount(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := h.inApp.CountUnread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

// HandleMarkRead marks one notification as read.
// POST /api/v1/notifications/:notificationId/read
func (h *Handler) HandleMarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidNotificationID, nil)
		return
	}

	if err := h.inApp.MarkRead(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

// HandleMarkAllRead marks every notification of the requester as read.
// POST /api/v1/notifications/read-all
func (h *Handler) HandleMarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.inApp.MarkAllRead(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

// HandleDelete removes one notification.
// DELETE /api/v1/notifications/:notificationId
func (h *Handler) HandleDelete(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidNotificationID, nil)
		return
	}

	if err := h.inApp.Delete(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}
