// Package pricing computes order totals: item subtotal, coupon discount,
// shipping, and tax. The engine is a pure function over catalog and coupon
// snapshots supplied by the caller. It performs no I/O and never logs.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/catalog"
	"storefront-api/internal/domain/coupon"
)

// Config holds the pricing policy constants. They are injected rather than
// hard-coded so tests and deployments can adjust them without code changes.
type Config struct {
	// FreeShippingThreshold is the subtotal above which shipping is free.
	// The rule is strict: a subtotal exactly at the threshold still pays.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee is charged when the subtotal is at or below the threshold.
	FlatShippingFee decimal.Decimal
	// TaxRate is applied to the discounted subtotal, as a fraction (0.08 = 8%).
	TaxRate decimal.Decimal
}

// DefaultConfig returns the observed production defaults: free shipping over
// $50, a $9.99 flat fee otherwise, and 8% tax.
func DefaultConfig() Config {
	return Config{
		FreeShippingThreshold: decimal.NewFromInt(50),
		FlatShippingFee:       decimal.RequireFromString("9.99"),
		TaxRate:               decimal.RequireFromString("0.08"),
	}
}

// Item is a line item snapshotted at order-creation time. Name and UnitPrice
// come from the catalog record, never from the client, so historical orders
// are immune to later price changes and clients cannot tamper with prices.
type Item struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// AppliedCoupon is the snapshot of a successfully applied coupon stored on
// the resulting order.
type AppliedCoupon struct {
	Code     string
	Discount decimal.Decimal
}

// Quote is the itemized result of a pricing computation.
type Quote struct {
	ItemsPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingPrice  decimal.Decimal
	TaxPrice       decimal.Decimal
	TotalAmount    decimal.Decimal
	AppliedCoupon  *AppliedCoupon
}

// Engine prices orders according to its Config.
type Engine struct {
	cfg Config
}

// NewEngine creates a pricing Engine with the given policy configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ValidateAvailability confirms a product exists, is purchasable, and has
// enough stock for the requested quantity. A nil product means the catalog
// lookup found nothing.
func ValidateAvailability(productID string, quantity int, p *catalog.Product) error {
	if p == nil {
		return &ProductNotFoundError{ProductID: productID}
	}
	if !p.Purchasable() {
		return &ProductUnavailableError{ProductID: productID, Name: p.Name}
	}
	if p.Stock < quantity {
		return &InsufficientStockError{ProductID: productID, Name: p.Name}
	}
	return nil
}

// Subtotal returns the pre-discount sum of unitPrice x quantity over all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// Quote prices the given line items with an optional coupon. c may be nil for
// no coupon. userUses is the requesting user's prior redemption count for the
// coupon (zero for guests). Coupon rejection is returned as *InvalidCouponError
// with the human-readable reason; the computation is all-or-nothing and
// mutates nothing.
func (e *Engine) Quote(items []Item, c *coupon.Coupon, userUses int, now time.Time) (*Quote, error) {
	itemsPrice := Subtotal(items).Round(2)

	discount := decimal.Zero
	var applied *AppliedCoupon
	if c != nil {
		if err := coupon.Validate(c, userUses, itemsPrice, now); err != nil {
			return nil, &InvalidCouponError{Reason: err.Error()}
		}
		discount = coupon.CalculateDiscount(c, itemsPrice)
		applied = &AppliedCoupon{Code: c.Code, Discount: discount}
	}

	shipping := e.cfg.FlatShippingFee
	if itemsPrice.GreaterThan(e.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := itemsPrice.Sub(discount).Mul(e.cfg.TaxRate).Round(2)
	total := itemsPrice.Add(shipping).Add(tax).Sub(discount).Round(2)

	return &Quote{
		ItemsPrice:     itemsPrice,
		DiscountAmount: discount,
		ShippingPrice:  shipping,
		TaxPrice:       tax,
		TotalAmount:    total,
		AppliedCoupon:  applied,
	}, nil
}
