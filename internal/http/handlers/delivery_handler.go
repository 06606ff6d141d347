// README: Handlers for the dispatch operations: offer, accept, cancel, pickup, deliver.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/delivery"
	"lastmile/internal/types"
)

type DeliveryHandler struct {
	dispatch *delivery.Service
}

func NewDeliveryHandler(svc *delivery.Service) *DeliveryHandler {
	return &DeliveryHandler{dispatch: svc}
}

// deliveryResponse is the API view of a dispatch record. Code hashes never
// leave the server.
type deliveryResponse struct {
	ID             types.ID        `json:"id"`
	OrderItemID    types.ID        `json:"order_item_id"`
	Status         delivery.Status `json:"status"`
	Cell           string          `json:"cell"`
	RiderID        *types.ID       `json:"rider_id,omitempty"`
	OfferExpiresAt time.Time       `json:"offer_expires_at"`
	PickupDeadline *time.Time      `json:"pickup_deadline,omitempty"`
	DeliveryDue    *time.Time      `json:"delivery_deadline,omitempty"`
	Attempts       int             `json:"attempts"`
	FeeCents       int64           `json:"fee_cents"`
	AcceptedAt     *time.Time      `json:"accepted_at,omitempty"`
	PickedUpAt     *time.Time      `json:"picked_up_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}

func toResponse(d *delivery.DeliveryItem) deliveryResponse {
	return deliveryResponse{
		ID:             d.ID,
		OrderItemID:    d.OrderItemID,
		Status:         d.Status,
		Cell:           d.Cell,
		RiderID:        d.RiderID,
		OfferExpiresAt: d.OfferExpiresAt,
		PickupDeadline: d.PickupDeadline,
		DeliveryDue:    d.DeliveryDeadline,
		Attempts:       d.Attempts,
		FeeCents:       d.RiderEarnings.Amount,
		AcceptedAt:     d.AcceptedAt,
		PickedUpAt:     d.PickedUpAt,
		DeliveredAt:    d.DeliveredAt,
	}
}

type readyRequest struct {
	SellerLat float64 `json:"seller_lat"`
	SellerLng float64 `json:"seller_lng"`
}

// Ready is the seller marking an order item ready for pickup, which opens
// (or returns the existing) delivery offer.
func (h *DeliveryHandler) Ready(c *gin.Context) {
	var req readyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.dispatch.CreateOffer(c.Request.Context(), delivery.CreateOfferCommand{
		OrderItemID: types.ID(c.Param("id")),
		StoreID:     callerID(c),
		Seller:      types.Point{Lat: req.SellerLat, Lng: req.SellerLng},
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(d))
}

func (h *DeliveryHandler) Accept(c *gin.Context) {
	d, err := h.dispatch.AcceptOffer(c.Request.Context(), delivery.AcceptCommand{
		DeliveryItemID: types.ID(c.Param("id")),
		RiderID:        callerID(c),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(d))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *DeliveryHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.dispatch.CancelAssignment(c.Request.Context(), delivery.CancelCommand{
		DeliveryItemID: types.ID(c.Param("id")),
		RiderID:        callerID(c),
		Reason:         req.Reason,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": delivery.StatusPending})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *DeliveryHandler) ConfirmPickup(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		writeError(c, http.StatusBadRequest, "missing code")
		return
	}
	d, err := h.dispatch.ConfirmPickup(c.Request.Context(), delivery.ConfirmPickupCommand{
		DeliveryItemID: types.ID(c.Param("id")),
		RiderID:        callerID(c),
		Code:           req.Code,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(d))
}

func (h *DeliveryHandler) ConfirmDelivery(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		writeError(c, http.StatusBadRequest, "missing code")
		return
	}
	d, err := h.dispatch.ConfirmDelivery(c.Request.Context(), delivery.ConfirmDeliveryCommand{
		DeliveryItemID: types.ID(c.Param("id")),
		RiderID:        callerID(c),
		Code:           req.Code,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(d))
}

// Nearby lists open offers around the rider's reported position.
func (h *DeliveryHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	offers, err := h.dispatch.NearbyOffers(c.Request.Context(), types.Point{Lat: lat, Lng: lng})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	out := make([]deliveryResponse, len(offers))
	for i := range offers {
		out[i] = toResponse(&offers[i])
	}
	c.JSON(http.StatusOK, gin.H{"offers": out})
}
