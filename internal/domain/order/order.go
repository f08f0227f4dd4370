package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNotCancellable is returned when an order has progressed past the
	// point where the customer may cancel it.
	ErrNotCancellable = errors.New("order cannot be cancelled at this stage")
	// ErrAccessDenied is returned when a user requests an order they do not own.
	ErrAccessDenied = errors.New("access denied")
	// ErrEmptyItems is returned when a checkout request contains no items.
	ErrEmptyItems = errors.New("items required")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineItem is one product/quantity pairing within an order, with the name and
// unit price snapshotted at order-creation time.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// ShippingAddress is the destination recorded on an order.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a placed customer order with its pricing breakdown. UserID is empty
// for guest orders, in which case GuestName and GuestEmail identify the buyer.
type Order struct {
	ID          string
	OrderNumber string
	UserID      string
	GuestName   string
	GuestEmail  string

	Items           []LineItem
	ShippingAddress ShippingAddress
	PaymentMethod   string

	ItemsPrice     decimal.Decimal
	ShippingPrice  decimal.Decimal
	TaxPrice       decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	CouponCode     string
	CouponDiscount decimal.Decimal

	Status             Status
	CancellationReason string
	TrackingNumber     string
	Carrier            string

	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// CanBeCancelled reports whether the customer may still cancel the order.
func (o *Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// ListFilter narrows and pages order listings.
type ListFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	Update(ctx context.Context, o *Order) error
}

// NewOrderNumber generates a human-referenceable order number of the form
// ORD-YYYYMMDD-XXXXX. Uniqueness is enforced by the storage layer.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%05d", now.Format("20060102"), rand.IntN(90000)+10000)
}
