package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-api/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id, guest_name, guest_email, items,
		shipping_address, payment_method, items_price, shipping_price, tax_price,
		discount_amount, total_amount, coupon_code, coupon_discount, status,
		cancellation_reason, tracking_number, carrier,
		shipped_at, delivered_at, cancelled_at, created_at`

	insertOrderSQL = `INSERT INTO orders
		(id, order_number, user_id, guest_name, guest_email, items,
		 shipping_address, payment_method, items_price, shipping_price, tax_price,
		 discount_amount, total_amount, coupon_code, coupon_discount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderSQL = `UPDATE orders SET status = $2, cancellation_reason = $3,
		tracking_number = $4, carrier = $5,
		shipped_at = $6, delivered_at = $7, cancelled_at = $8
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line items
// and the shipping address are stored as JSONB documents since they are
// immutable snapshots read back as a whole.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.OrderNumber, o.UserID, o.GuestName, o.GuestEmail, itemsJSON,
		addressJSON, o.PaymentMethod, o.ItemsPrice, o.ShippingPrice, o.TaxPrice,
		o.DiscountAmount, o.TotalAmount, o.CouponCode, o.CouponDiscount,
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order. Returns order.ErrNotFound when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns a page of orders matching the filter, newest first, plus the
// total number of matches.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// Update persists lifecycle changes: status, cancellation, tracking, and the
// transition timestamps. Pricing fields are immutable after Create.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.CancellationReason, o.TrackingNumber, o.Carrier,
		o.ShippedAt, o.DeliveredAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		addressJSON []byte
		status      string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.GuestName, &o.GuestEmail, &itemsJSON,
		&addressJSON, &o.PaymentMethod, &o.ItemsPrice, &o.ShippingPrice, &o.TaxPrice,
		&o.DiscountAmount, &o.TotalAmount, &o.CouponCode, &o.CouponDiscount, &status,
		&o.CancellationReason, &o.TrackingNumber, &o.Carrier,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	return o, nil
}
