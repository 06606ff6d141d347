// README: Order/OrderItem store backed by PostgreSQL; transactional variants for dispatch updates.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastmile/internal/types"
)

var ErrNotFound = errors.New("order not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const itemColumns = `
	oi.id, oi.order_id, oi.store_id, oi.product_name, oi.pickup_address,
	oi.quantity, oi.unit_price, oi.delivery_status,
	oi.assigned_at, oi.delivered_at, oi.created_at`

func (s *Store) GetItem(ctx context.Context, id types.ID) (*OrderItem, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM order_items oi
		WHERE oi.id = $1`, string(id),
	)
	return scanItem(row)
}

func (s *Store) GetOrder(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, buyer_id, buyer_name, buyer_email, delivery_address,
		       status, total, created_at, delivered_at
		FROM orders
		WHERE id = $1`, string(id),
	)
	var o Order
	var deliveredAt *time.Time
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.BuyerName, &o.BuyerEmail, &o.DeliveryAddress,
		&o.Status, &o.Total.Amount, &o.CreatedAt, &deliveredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.DeliveredAt = deliveredAt
	o.Total.Currency = "USD"
	return &o, nil
}

// UpdateItemStatusTx moves an item between delivery statuses inside the
// caller's transaction. The WHERE clause re-checks the current status so a
// lost race shows up as zero affected rows.
func (s *Store) UpdateItemStatusTx(ctx context.Context, tx pgx.Tx, id types.ID, from, to DeliveryStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE order_items
		SET delivery_status = $1,
		    assigned_at = CASE WHEN $1 = 'ready_for_pickup' THEN NOW() ELSE assigned_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END
		WHERE id = $2 AND delivery_status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResetItemStatusTx forces an item back to pending regardless of its current
// non-terminal status (cancel / timeout path).
func (s *Store) ResetItemStatusTx(ctx context.Context, tx pgx.Tx, id types.ID) error {
	_, err := tx.Exec(ctx, `
		UPDATE order_items
		SET delivery_status = 'pending', assigned_at = NULL
		WHERE id = $1 AND delivery_status <> 'delivered'`,
		string(id),
	)
	return err
}

// CountUndeliveredTx reports how many items of the order are not yet
// delivered, inside the caller's transaction.
func (s *Store) CountUndeliveredTx(ctx context.Context, tx pgx.Tx, orderID types.ID) (int, error) {
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_items
		WHERE order_id = $1 AND delivery_status <> 'delivered'`,
		string(orderID),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateOrderStatusTx transitions the parent order, stamping delivered_at on
// the terminal transition.
func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx pgx.Tx, id types.ID, from, to Status) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END
		WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanItem(row pgx.Row) (*OrderItem, error) {
	var it OrderItem
	var assignedAt, deliveredAt *time.Time
	err := row.Scan(
		&it.ID, &it.OrderID, &it.StoreID, &it.ProductName, &it.PickupAddress,
		&it.Quantity, &it.UnitPrice.Amount, &it.DeliveryStatus,
		&assignedAt, &deliveredAt, &it.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	it.AssignedAt = assignedAt
	it.DeliveredAt = deliveredAt
	it.UnitPrice.Currency = "USD"
	return &it, nil
}
