package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the discount amount a valid coupon yields for the
// given pre-discount subtotal, rounded to two decimal places.
//
// Percentage coupons take discountValue percent of the subtotal. Fixed coupons
// take discountValue, capped at the subtotal so the discount can never exceed
// what the order is worth.
func CalculateDiscount(c *Coupon, itemsPrice decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = itemsPrice.Mul(c.DiscountValue).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(c.DiscountValue, itemsPrice)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}
