// README: DeliveryItem dispatch record, status state machine, and broadcast payloads.
package delivery

import (
	"time"

	"lastmile/internal/types"
)

type Status string

const (
	// StatusPending: unassigned, offer open. Re-entered after cancel/timeout.
	StatusPending        Status = "pending"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

// AllowedTransitions represents the delivery state flow as code. Statuses
// only move forward except for the cancel/timeout reset to pending.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusReadyForPickup},
	StatusReadyForPickup: {StatusOutForDelivery, StatusPending},
	StatusOutForDelivery: {StatusDelivered, StatusPending},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Reoffer reasons, carried on reoffer events so consumers can distinguish a
// voluntary cancel from the two timeout sweeps.
const (
	ReasonRiderCancel     = "rider_cancel"
	ReasonPickupTimeout   = "pickup_timeout"
	ReasonDeliveryTimeout = "delivery_timeout"
)

// DeliveryItem is the dispatch record for exactly one order item. It is never
// deleted; cancellation and timeout reset it to pending with the rider
// cleared.
type DeliveryItem struct {
	ID          types.ID
	OrderItemID types.ID
	Seller      types.Point
	Cell        string
	Status      Status
	RiderID     *types.ID

	OfferExpiresAt   time.Time
	PickupDeadline   *time.Time
	DeliveryDeadline *time.Time

	PickupCodeHash        *string
	PickupCodeExpiresAt   *time.Time
	DeliveryCodeHash      *string
	DeliveryCodeExpiresAt *time.Time
	Attempts              int

	RiderEarnings types.Money

	AcceptedAt  *time.Time
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	ReofferedAt *time.Time
	CreatedAt   time.Time
}

type Event struct {
	ID             int64
	DeliveryItemID types.ID
	FromStatus     Status
	ToStatus       Status
	ActorType      string
	ActorID        *types.ID
	Reason         string
	CreatedAt      time.Time
}

// revenueShareBps is the rider's cut of the item line total, in basis points.
const revenueShareBps = 500

// ComputeEarnings is the rider payout: fixed base pay + fixed bonus + 5% of
// the item line total.
func ComputeEarnings(baseCents, bonusCents int64, lineTotal types.Money) types.Money {
	return types.Money{
		Amount:   baseCents + bonusCents + lineTotal.Amount*revenueShareBps/10000,
		Currency: lineTotal.Currency,
	}
}

// OfferPayload is broadcast on cell and rider channels when a delivery is
// offered or reoffered.
type OfferPayload struct {
	DeliveryItemID types.ID `json:"delivery_item_id"`
	OrderItemID    types.ID `json:"order_item_id"`
	ItemName       string   `json:"item_name"`
	PickupAddress  string   `json:"pickup_address"`
	DropoffAddress string   `json:"dropoff_address"`
	BuyerName      string   `json:"buyer_name"`
	Cell           string   `json:"cell"`
	FeeCents       int64    `json:"fee_cents"`
	ExpiresAt      string   `json:"expires_at"`
	Reason         string   `json:"reason,omitempty"`
}

// AssignmentPayload notifies the seller and rider of a confirmed assignment.
// The raw pickup code travels only on the seller side.
type AssignmentPayload struct {
	DeliveryItemID types.ID  `json:"delivery_item_id"`
	OrderItemID    types.ID  `json:"order_item_id"`
	RiderID        types.ID  `json:"rider_id"`
	PickupCode     string    `json:"pickup_code,omitempty"`
	PickupDeadline time.Time `json:"pickup_deadline"`
}

// StatusPayload carries plain status-change notifications.
type StatusPayload struct {
	DeliveryItemID types.ID `json:"delivery_item_id"`
	OrderItemID    types.ID `json:"order_item_id"`
	Status         Status   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
}
