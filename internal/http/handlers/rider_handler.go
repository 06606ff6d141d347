// README: Rider-facing handlers: location updates.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/rider"
	"lastmile/internal/types"
)

type RiderHandler struct {
	riders *rider.Service
}

func NewRiderHandler(svc *rider.Service) *RiderHandler {
	return &RiderHandler{riders: svc}
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *RiderHandler) UpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cell, err := h.riders.UpdateLocation(c.Request.Context(), callerID(c), types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cell": cell})
}
