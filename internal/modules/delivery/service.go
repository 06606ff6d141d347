// README: Delivery dispatcher: offer creation/broadcast, accept/cancel, pickup and
// drop-off code verification. State mutations run in one transaction; notifications
// are fired only after commit.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lastmile/internal/config"
	"lastmile/internal/geo"
	"lastmile/internal/modules/order"
	"lastmile/internal/modules/rider"
	"lastmile/internal/types"
)

var (
	ErrNotFound        = errors.New("delivery not found")
	ErrNotEligible     = errors.New("delivery state precondition failed")
	ErrAlreadyAccepted = errors.New("delivery already accepted by another rider")
	ErrForbidden       = errors.New("caller is not the assigned rider")
	ErrInvalidCode     = errors.New("confirmation code mismatch")
	ErrCodeExpired     = errors.New("confirmation code expired")
)

// RiderDirectory is the slice of the rider module the dispatcher needs.
type RiderDirectory interface {
	FindNearby(ctx context.Context, cell string) ([]rider.Rider, error)
	ApplyPenalty(ctx context.Context, riderID types.ID, reason string) (*rider.Rider, error)
}

// Notifier is the post-commit fan-out contract. All three calls are
// best-effort: failures are logged by the implementation and never surface
// here.
type Notifier interface {
	Publish(ctx context.Context, channel, event string, payload any)
	Notify(ctx context.Context, userID types.ID, role, notifType, title, message, link string)
	Email(to, subject, body string)
}

type Service struct {
	store  *Store
	orders *order.Store
	riders RiderDirectory
	notify Notifier
	cfg    config.DispatchConfig
}

func NewService(store *Store, orders *order.Store, riders RiderDirectory, notify Notifier, cfg config.DispatchConfig) *Service {
	return &Service{store: store, orders: orders, riders: riders, notify: notify, cfg: cfg}
}

type CreateOfferCommand struct {
	OrderItemID types.ID
	StoreID     types.ID
	Seller      types.Point
}

type AcceptCommand struct {
	DeliveryItemID types.ID
	RiderID        types.ID
}

type CancelCommand struct {
	DeliveryItemID types.ID
	RiderID        types.ID
	Reason         string
}

type ConfirmPickupCommand struct {
	DeliveryItemID types.ID
	RiderID        types.ID
	Code           string
}

type ConfirmDeliveryCommand struct {
	DeliveryItemID types.ID
	RiderID        types.ID
	Code           string
}

// CreateOffer opens a delivery offer for an order item the seller marked
// ready. Idempotent: if a dispatch record already exists for the item, it is
// returned as-is rather than erroring.
func (s *Service) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (*DeliveryItem, error) {
	if existing, err := s.store.GetByOrderItem(ctx, cmd.OrderItemID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	item, err := s.orders.GetItem(ctx, cmd.OrderItemID)
	if errors.Is(err, order.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cmd.StoreID != "" && item.StoreID != cmd.StoreID {
		return nil, ErrForbidden
	}
	ord, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusPaid || item.DeliveryStatus != order.DeliveryPending {
		return nil, ErrNotEligible
	}

	now := time.Now()
	d := &DeliveryItem{
		ID:             newID(),
		OrderItemID:    item.ID,
		Seller:         cmd.Seller,
		Cell:           geo.Encode(cmd.Seller.Lat, cmd.Seller.Lng),
		Status:         StatusPending,
		OfferExpiresAt: now.Add(time.Duration(s.cfg.OfferTTLMinutes) * time.Minute),
		RiderEarnings:  ComputeEarnings(s.cfg.BasePayCents, s.cfg.BonusCents, item.LineTotal()),
		CreatedAt:      now,
	}
	inserted, err := s.store.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the creation race; the winner's record is the offer.
		return s.store.GetByOrderItem(ctx, cmd.OrderItemID)
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     "",
		ToStatus:       StatusPending,
		ActorType:      "seller",
		CreatedAt:      now,
	})
	s.broadcastOffer(ctx, d, item, ord, "")
	return d, nil
}

// AcceptOffer atomically claims a pending delivery for the rider and issues
// the pickup code. Exactly one of any set of concurrent callers succeeds; the
// rest receive ErrAlreadyAccepted.
func (s *Service) AcceptOffer(ctx context.Context, cmd AcceptCommand) (*DeliveryItem, error) {
	d, err := s.store.Get(ctx, cmd.DeliveryItemID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusDelivered {
		return nil, ErrNotEligible
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	hash, err := HashCode(code)
	if err != nil {
		return nil, err
	}
	pickupDeadline := time.Now().Add(time.Duration(s.cfg.PickupWindowMinutes) * time.Minute)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.AssignRiderTx(ctx, tx, d.ID, cmd.RiderID, hash, ExpiresIn(s.cfg.CodeTTLHours), pickupDeadline)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyAccepted
	}
	mirrored, err := s.orders.UpdateItemStatusTx(ctx, tx, d.OrderItemID, order.DeliveryPending, order.DeliveryReadyForPickup)
	if err != nil {
		return nil, err
	}
	if !mirrored {
		// Mirror out of step with the dispatch record; roll everything back
		// rather than commit divergent statuses.
		return nil, ErrNotEligible
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     StatusPending,
		ToStatus:       StatusReadyForPickup,
		ActorType:      "rider",
		ActorID:        &cmd.RiderID,
		CreatedAt:      time.Now(),
	})

	item, ordRec := s.lookupOrder(ctx, d.OrderItemID)
	assignment := AssignmentPayload{
		DeliveryItemID: d.ID,
		OrderItemID:    d.OrderItemID,
		RiderID:        cmd.RiderID,
		PickupDeadline: pickupDeadline,
	}
	s.notify.Publish(ctx, "rider:"+string(cmd.RiderID), "assignment_confirmed", assignment)
	if item != nil {
		sellerCopy := assignment
		sellerCopy.PickupCode = code
		s.notify.Publish(ctx, "seller:"+string(item.StoreID), "delivery_accepted", sellerCopy)
		s.notify.Notify(ctx, item.StoreID, "seller", "delivery_accepted",
			"Rider assigned",
			fmt.Sprintf("A rider is on the way for %s. Pickup code: %s", item.ProductName, code),
			"/seller/deliveries/"+string(d.ID))
	}
	if ordRec != nil {
		s.notify.Publish(ctx, "buyer:"+string(ordRec.BuyerID), "delivery_accepted", StatusPayload{
			DeliveryItemID: d.ID,
			OrderItemID:    d.OrderItemID,
			Status:         StatusReadyForPickup,
		})
	}

	return s.store.Get(ctx, d.ID)
}

// CancelAssignment lets the assigned rider walk away without penalty. The
// delivery returns to pending and is immediately reoffered nearby.
func (s *Service) CancelAssignment(ctx context.Context, cmd CancelCommand) error {
	d, err := s.store.Get(ctx, cmd.DeliveryItemID)
	if err != nil {
		return err
	}
	if d.RiderID == nil || *d.RiderID != cmd.RiderID {
		return ErrForbidden
	}
	if d.Status == StatusDelivered {
		return ErrNotEligible
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	offerExpiry := time.Now().Add(time.Duration(s.cfg.OfferTTLMinutes) * time.Minute)
	prior, ok, err := s.store.ReleaseByRiderTx(ctx, tx, d.ID, cmd.RiderID, offerExpiry)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEligible
	}
	wasOut := prior == StatusOutForDelivery
	if err := s.orders.ResetItemStatusTx(ctx, tx, d.OrderItemID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     prior,
		ToStatus:       StatusPending,
		ActorType:      "rider",
		ActorID:        &cmd.RiderID,
		Reason:         cmd.Reason,
		CreatedAt:      time.Now(),
	})

	item, ordRec := s.lookupOrder(ctx, d.OrderItemID)
	if wasOut && ordRec != nil {
		s.notify.Publish(ctx, "buyer:"+string(ordRec.BuyerID), "delivery_disrupted", StatusPayload{
			DeliveryItemID: d.ID,
			OrderItemID:    d.OrderItemID,
			Status:         StatusPending,
			Reason:         ReasonRiderCancel,
		})
		s.notify.Notify(ctx, ordRec.BuyerID, "buyer", "delivery_disrupted",
			"Delivery delayed",
			"Your rider had to cancel. We are finding a new rider for your package.",
			"/orders/"+string(ordRec.ID))
	}
	s.reoffer(ctx, d.ID, ReasonRiderCancel, item, ordRec)
	return nil
}

// ConfirmPickup verifies the pickup code at the store. On success the
// delivery goes out for delivery and the drop-off code is issued to the
// buyer out-of-band.
func (s *Service) ConfirmPickup(ctx context.Context, cmd ConfirmPickupCommand) (*DeliveryItem, error) {
	d, err := s.store.Get(ctx, cmd.DeliveryItemID)
	if err != nil {
		return nil, err
	}
	if d.RiderID == nil || *d.RiderID != cmd.RiderID {
		return nil, ErrForbidden
	}
	if d.Status != StatusReadyForPickup || d.PickupCodeHash == nil {
		return nil, ErrNotEligible
	}
	if d.PickupCodeExpiresAt != nil && time.Now().After(*d.PickupCodeExpiresAt) {
		return nil, ErrCodeExpired
	}
	if !VerifyCode(cmd.Code, *d.PickupCodeHash) {
		_, _ = s.store.IncrementAttempts(ctx, d.ID)
		return nil, ErrInvalidCode
	}

	dropCode, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	dropHash, err := HashCode(dropCode)
	if err != nil {
		return nil, err
	}
	deliveryDeadline := time.Now().Add(time.Duration(s.cfg.DeliveryWindowMinutes) * time.Minute)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkPickedUpTx(ctx, tx, d.ID, cmd.RiderID, dropHash, ExpiresIn(s.cfg.CodeTTLHours), deliveryDeadline)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}
	mirrored, err := s.orders.UpdateItemStatusTx(ctx, tx, d.OrderItemID, order.DeliveryReadyForPickup, order.DeliveryOutForDelivery)
	if err != nil {
		return nil, err
	}
	if !mirrored {
		return nil, ErrNotEligible
	}
	item, err := s.orders.GetItem(ctx, d.OrderItemID)
	if err != nil {
		return nil, err
	}
	// First picked-up item moves the whole order to shipped; later items
	// find it already there and the conditional update is a no-op.
	if _, err := s.orders.UpdateOrderStatusTx(ctx, tx, item.OrderID, order.StatusPaid, order.StatusShipped); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     StatusReadyForPickup,
		ToStatus:       StatusOutForDelivery,
		ActorType:      "rider",
		ActorID:        &cmd.RiderID,
		CreatedAt:      time.Now(),
	})

	ordRec, err := s.orders.GetOrder(ctx, item.OrderID)
	if err == nil {
		s.notify.Email(ordRec.BuyerEmail,
			"Your delivery is on the way",
			fmt.Sprintf("Your %s is out for delivery. Your delivery code is %s. Share it only with your rider at handoff.", item.ProductName, dropCode))
		s.notify.Notify(ctx, ordRec.BuyerID, "buyer", "out_for_delivery",
			"Out for delivery",
			fmt.Sprintf("Your %s is on its way. We emailed you a delivery code; share it only with your rider.", item.ProductName),
			"/orders/"+string(ordRec.ID))
		s.notify.Publish(ctx, "buyer:"+string(ordRec.BuyerID), "out_for_delivery", StatusPayload{
			DeliveryItemID: d.ID,
			OrderItemID:    d.OrderItemID,
			Status:         StatusOutForDelivery,
		})
	}
	s.notify.Publish(ctx, "seller:"+string(item.StoreID), "picked_up", StatusPayload{
		DeliveryItemID: d.ID,
		OrderItemID:    d.OrderItemID,
		Status:         StatusOutForDelivery,
	})

	return s.store.Get(ctx, d.ID)
}

// ConfirmDelivery verifies the drop-off code at the buyer's door and closes
// out the delivery, rolling the parent order up to delivered when this was
// the last outstanding item.
func (s *Service) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (*DeliveryItem, error) {
	d, err := s.store.Get(ctx, cmd.DeliveryItemID)
	if err != nil {
		return nil, err
	}
	if d.RiderID == nil || *d.RiderID != cmd.RiderID {
		return nil, ErrForbidden
	}
	if d.Status != StatusOutForDelivery || d.DeliveryCodeHash == nil {
		return nil, ErrNotEligible
	}
	if d.DeliveryCodeExpiresAt != nil && time.Now().After(*d.DeliveryCodeExpiresAt) {
		return nil, ErrCodeExpired
	}
	if !VerifyCode(cmd.Code, *d.DeliveryCodeHash) {
		_, _ = s.store.IncrementAttempts(ctx, d.ID)
		return nil, ErrInvalidCode
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkDeliveredTx(ctx, tx, d.ID, cmd.RiderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}
	mirrored, err := s.orders.UpdateItemStatusTx(ctx, tx, d.OrderItemID, order.DeliveryOutForDelivery, order.DeliveryDelivered)
	if err != nil {
		return nil, err
	}
	if !mirrored {
		return nil, ErrNotEligible
	}
	item, err := s.orders.GetItem(ctx, d.OrderItemID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.orders.CountUndeliveredTx(ctx, tx, item.OrderID)
	if err != nil {
		return nil, err
	}
	orderDone := remaining == 0
	if orderDone {
		if _, err := s.orders.UpdateOrderStatusTx(ctx, tx, item.OrderID, order.StatusShipped, order.StatusDelivered); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		DeliveryItemID: d.ID,
		FromStatus:     StatusOutForDelivery,
		ToStatus:       StatusDelivered,
		ActorType:      "rider",
		ActorID:        &cmd.RiderID,
		CreatedAt:      time.Now(),
	})

	done := StatusPayload{
		DeliveryItemID: d.ID,
		OrderItemID:    d.OrderItemID,
		Status:         StatusDelivered,
	}
	s.notify.Publish(ctx, "rider:"+string(cmd.RiderID), "delivered", done)
	s.notify.Publish(ctx, "seller:"+string(item.StoreID), "delivered", done)
	if ordRec, err := s.orders.GetOrder(ctx, item.OrderID); err == nil {
		s.notify.Publish(ctx, "buyer:"+string(ordRec.BuyerID), "delivered", done)
		s.notify.Email(ordRec.BuyerEmail,
			"Delivery confirmed",
			fmt.Sprintf("Your %s was delivered. Thanks for shopping with us.", item.ProductName))
		title, msg := "Item delivered", fmt.Sprintf("Your %s has been delivered.", item.ProductName)
		if orderDone {
			title, msg = "Order delivered", "All items in your order have been delivered."
		}
		s.notify.Notify(ctx, ordRec.BuyerID, "buyer", "delivered", title, msg, "/orders/"+string(ordRec.ID))
	}

	return s.store.Get(ctx, d.ID)
}

// NearbyOffers lists open offers in the rider's cell and its neighbors.
func (s *Service) NearbyOffers(ctx context.Context, p types.Point) ([]DeliveryItem, error) {
	return s.store.OpenOffersByCells(ctx, geo.Cluster(geo.Encode(p.Lat, p.Lng)))
}

func (s *Service) Get(ctx context.Context, id types.ID) (*DeliveryItem, error) {
	return s.store.Get(ctx, id)
}

// broadcastOffer publishes the offer on the seller cell's channel and pings
// nearby riders' individual channels. Best-effort, post-commit.
func (s *Service) broadcastOffer(ctx context.Context, d *DeliveryItem, item *order.OrderItem, ord *order.Order, reason string) {
	payload := OfferPayload{
		DeliveryItemID: d.ID,
		OrderItemID:    d.OrderItemID,
		Cell:           d.Cell,
		FeeCents:       d.RiderEarnings.Amount,
		ExpiresAt:      d.OfferExpiresAt.Format(time.RFC3339),
		Reason:         reason,
	}
	if item != nil {
		payload.ItemName = item.ProductName
		payload.PickupAddress = item.PickupAddress
	}
	if ord != nil {
		payload.DropoffAddress = ord.DeliveryAddress
		payload.BuyerName = ord.BuyerName
	}

	event := "offer_created"
	if reason != "" {
		event = "offer_reoffered"
	}
	s.notify.Publish(ctx, "cell:"+d.Cell, event, payload)

	nearby, err := s.riders.FindNearby(ctx, d.Cell)
	if err != nil {
		return
	}
	for _, r := range nearby {
		s.notify.Publish(ctx, "rider:"+string(r.ID), event, payload)
	}
}

// reoffer re-broadcasts a released delivery using its refreshed offer window.
func (s *Service) reoffer(ctx context.Context, id types.ID, reason string, item *order.OrderItem, ord *order.Order) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return
	}
	s.broadcastOffer(ctx, d, item, ord, reason)
}

func (s *Service) lookupOrder(ctx context.Context, orderItemID types.ID) (*order.OrderItem, *order.Order) {
	item, err := s.orders.GetItem(ctx, orderItemID)
	if err != nil {
		return nil, nil
	}
	ord, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return item, nil
	}
	return item, ord
}

func newID() types.ID {
	return types.ID(uuid.NewString())
}
