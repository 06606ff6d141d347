// README: Durable notification listing and read-marking.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/notify"
)

const notificationPageSize = 50

type NotificationHandler struct {
	notify *notify.Service
}

func NewNotificationHandler(svc *notify.Service) *NotificationHandler {
	return &NotificationHandler{notify: svc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.notify.List(c.Request.Context(), callerID(c), notificationPageSize)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.notify.MarkRead(c.Request.Context(), callerID(c), id); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}
