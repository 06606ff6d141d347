// README: DeliveryItem store backed by PostgreSQL. Every transition is a conditional
// update whose WHERE clause re-encodes the precondition; callers must check the
// returned bool to learn whether they won the race.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastmile/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.db.Begin(ctx)
}

const deliveryColumns = `
	id, order_item_id, seller_lat, seller_lng, cell, status, rider_id,
	offer_expires_at, pickup_deadline, delivery_deadline,
	pickup_code_hash, pickup_code_expires_at,
	delivery_code_hash, delivery_code_expires_at,
	attempts, rider_earnings,
	accepted_at, picked_up_at, delivered_at, cancelled_at, reoffered_at, created_at`

// Create inserts the dispatch record. The unique constraint on order_item_id
// makes concurrent CreateOffer calls idempotent: the loser inserts nothing
// and reports false.
func (s *Store) Create(ctx context.Context, d *DeliveryItem) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO delivery_items (
			id, order_item_id, seller_lat, seller_lng, cell, status,
			offer_expires_at, attempts, rider_earnings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		ON CONFLICT (order_item_id) DO NOTHING`,
		string(d.ID), string(d.OrderItemID),
		d.Seller.Lat, d.Seller.Lng, d.Cell, string(d.Status),
		d.OfferExpiresAt, d.RiderEarnings.Amount, d.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*DeliveryItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_items
		WHERE id = $1`, string(id),
	)
	return scanDelivery(row)
}

func (s *Store) GetByOrderItem(ctx context.Context, orderItemID types.ID) (*DeliveryItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_items
		WHERE order_item_id = $1`, string(orderItemID),
	)
	return scanDelivery(row)
}

// OpenOffersByCells lists unassigned, unexpired offers in the given cells,
// oldest first.
func (s *Store) OpenOffersByCells(ctx context.Context, cells []string) ([]DeliveryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_items
		WHERE cell = ANY($1) AND status = 'pending' AND offer_expires_at > NOW()
		ORDER BY created_at`,
		cells,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// AssignRiderTx claims a pending, unassigned delivery for the rider. This is
// the at-most-one-rider invariant: the WHERE clause demands rider_id IS NULL
// and status pending, so exactly one concurrent caller sees one affected row.
func (s *Store) AssignRiderTx(ctx context.Context, tx pgx.Tx, id, riderID types.ID, pickupHash string, codeExpiry, pickupDeadline time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_items
		SET rider_id = $1,
		    status = 'ready_for_pickup',
		    accepted_at = NOW(),
		    attempts = 0,
		    pickup_code_hash = $2,
		    pickup_code_expires_at = $3,
		    pickup_deadline = $4
		WHERE id = $5 AND rider_id IS NULL AND status = 'pending'`,
		string(riderID), pickupHash, codeExpiry, pickupDeadline, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPickedUpTx consumes the pickup code and issues the drop-off code.
func (s *Store) MarkPickedUpTx(ctx context.Context, tx pgx.Tx, id, riderID types.ID, deliveryHash string, codeExpiry, deliveryDeadline time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_items
		SET status = 'out_for_delivery',
		    picked_up_at = NOW(),
		    pickup_code_hash = NULL,
		    pickup_code_expires_at = NULL,
		    delivery_code_hash = $1,
		    delivery_code_expires_at = $2,
		    delivery_deadline = $3,
		    attempts = 0
		WHERE id = $4 AND rider_id = $5 AND status = 'ready_for_pickup'`,
		deliveryHash, codeExpiry, deliveryDeadline, string(id), string(riderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDeliveredTx consumes the delivery code and finishes the delivery. The
// rider is detached on completion; who delivered is kept on the state event.
func (s *Store) MarkDeliveredTx(ctx context.Context, tx pgx.Tx, id, riderID types.ID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_items
		SET status = 'delivered',
		    rider_id = NULL,
		    delivered_at = NOW(),
		    delivery_code_hash = NULL,
		    delivery_code_expires_at = NULL,
		    attempts = 0
		WHERE id = $1 AND rider_id = $2 AND status = 'out_for_delivery'`,
		string(id), string(riderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseByRiderTx is the voluntary-cancel reset: back to pending, rider and
// code state cleared, a fresh offer window opened. The self-join surfaces the
// status the row actually transitioned from, so the audit trail is accurate
// even when the state moved between the caller's read and this update.
func (s *Store) ReleaseByRiderTx(ctx context.Context, tx pgx.Tx, id, riderID types.ID, offerExpiry time.Time) (Status, bool, error) {
	row := tx.QueryRow(ctx, `
		UPDATE delivery_items
		SET rider_id = NULL,
		    status = 'pending',
		    cancelled_at = NOW(),
		    reoffered_at = NOW(),
		    offer_expires_at = $1,
		    pickup_deadline = NULL,
		    delivery_deadline = NULL,
		    pickup_code_hash = NULL,
		    pickup_code_expires_at = NULL,
		    delivery_code_hash = NULL,
		    delivery_code_expires_at = NULL,
		    attempts = 0
		FROM delivery_items prev
		WHERE delivery_items.id = $2
		  AND prev.id = delivery_items.id
		  AND delivery_items.rider_id = $3
		  AND delivery_items.status IN ('ready_for_pickup', 'out_for_delivery')
		RETURNING prev.status`,
		offerExpiry, string(id), string(riderID),
	)
	var prior Status
	if err := row.Scan(&prior); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return prior, true, nil
}

// ReleaseExpiredTx is the reaper reset. The WHERE clause repeats the sweep's
// selection filter, so re-running a sweep over an already-released row
// affects nothing (no double penalty).
func (s *Store) ReleaseExpiredTx(ctx context.Context, tx pgx.Tx, id types.ID, from Status, offerExpiry time.Time) (bool, error) {
	var cond string
	switch from {
	case StatusReadyForPickup:
		cond = `status = 'ready_for_pickup' AND pickup_deadline < NOW() AND picked_up_at IS NULL`
	case StatusOutForDelivery:
		cond = `status = 'out_for_delivery' AND delivery_deadline < NOW() AND delivered_at IS NULL`
	default:
		return false, errors.New("delivery: no timeout release from status " + string(from))
	}
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_items
		SET rider_id = NULL,
		    status = 'pending',
		    reoffered_at = NOW(),
		    offer_expires_at = $1,
		    pickup_deadline = NULL,
		    delivery_deadline = NULL,
		    pickup_code_hash = NULL,
		    pickup_code_expires_at = NULL,
		    delivery_code_hash = NULL,
		    delivery_code_expires_at = NULL,
		    attempts = 0
		WHERE id = $2 AND `+cond,
		offerExpiry, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementAttempts counts a failed code verification and returns the new
// total. No lockout is applied here.
func (s *Store) IncrementAttempts(ctx context.Context, id types.ID) (int, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE delivery_items
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts`,
		string(id),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DueTimeouts lists deliveries stalled past their deadline in the given
// status, for the reaper to release.
func (s *Store) DueTimeouts(ctx context.Context, from Status, limit int) ([]DeliveryItem, error) {
	var cond string
	switch from {
	case StatusReadyForPickup:
		cond = `status = 'ready_for_pickup' AND pickup_deadline < NOW() AND picked_up_at IS NULL`
	case StatusOutForDelivery:
		cond = `status = 'out_for_delivery' AND delivery_deadline < NOW() AND delivered_at IS NULL`
	default:
		return nil, errors.New("delivery: no timeout sweep for status " + string(from))
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_items
		WHERE `+cond+`
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_state_events (
			delivery_item_id, from_status, to_status, actor_type, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.DeliveryItemID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.Reason,
		e.CreatedAt,
	)
	return err
}

func collect(rows pgx.Rows) ([]DeliveryItem, error) {
	var out []DeliveryItem
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (*DeliveryItem, error) {
	var d DeliveryItem
	var riderID, pickupHash, deliveryHash *string
	err := row.Scan(
		&d.ID, &d.OrderItemID, &d.Seller.Lat, &d.Seller.Lng, &d.Cell, &d.Status, &riderID,
		&d.OfferExpiresAt, &d.PickupDeadline, &d.DeliveryDeadline,
		&pickupHash, &d.PickupCodeExpiresAt,
		&deliveryHash, &d.DeliveryCodeExpiresAt,
		&d.Attempts, &d.RiderEarnings.Amount,
		&d.AcceptedAt, &d.PickedUpAt, &d.DeliveredAt, &d.CancelledAt, &d.ReofferedAt, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if riderID != nil {
		v := types.ID(*riderID)
		d.RiderID = &v
	}
	d.PickupCodeHash = pickupHash
	d.DeliveryCodeHash = deliveryHash
	d.RiderEarnings.Currency = "USD"
	return &d, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
