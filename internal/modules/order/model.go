// README: Order aggregate and per-item delivery status definitions.
package order

import (
	"time"

	"lastmile/internal/types"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// DeliveryStatus tracks one item's path from the seller to the buyer. It is
// mirrored from the item's dispatch record as delivery progresses.
type DeliveryStatus string

const (
	DeliveryPending        DeliveryStatus = "pending"
	DeliveryReadyForPickup DeliveryStatus = "ready_for_pickup"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
)

type Order struct {
	ID              types.ID
	BuyerID         types.ID
	BuyerName       string
	BuyerEmail      string
	DeliveryAddress string
	Status          Status
	Total           types.Money
	CreatedAt       time.Time
	DeliveredAt     *time.Time
}

type OrderItem struct {
	ID             types.ID
	OrderID        types.ID
	StoreID        types.ID
	ProductName    string
	PickupAddress  string
	Quantity       int
	UnitPrice      types.Money
	DeliveryStatus DeliveryStatus
	AssignedAt     *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
}

// LineTotal is quantity x unit price, the base for the rider revenue share.
func (i OrderItem) LineTotal() types.Money {
	return types.Money{
		Amount:   i.UnitPrice.Amount * int64(i.Quantity),
		Currency: i.UnitPrice.Currency,
	}
}
