// README: Shared handler utilities: JSON helpers and error-to-status mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/http/middleware"
	"lastmile/internal/modules/delivery"
	"lastmile/internal/modules/order"
	"lastmile/internal/modules/rider"
	"lastmile/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, rider.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, delivery.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, delivery.ErrNotEligible),
		errors.Is(err, delivery.ErrAlreadyAccepted):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, delivery.ErrInvalidCode):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, delivery.ErrCodeExpired):
		writeError(c, http.StatusGone, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(c.GetString(middleware.ContextUserID))
}
