package coupon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError describes why a coupon was rejected. The reason is safe to
// surface to the end user verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks whether the coupon can be applied to a purchase. It is a
// pure function: calling it twice with the same inputs yields the same result.
//
// Checks run in order and the first failure wins: active flag, start date,
// end date, global usage cap, per-user usage cap, minimum purchase amount.
// userUses is the number of times the requesting user has already redeemed
// this coupon; pass zero for guests.
func Validate(c *Coupon, userUses int, itemsPrice decimal.Decimal, now time.Time) error {
	if !c.Active {
		return &ValidationError{Reason: "Coupon is not active"}
	}
	if now.Before(c.StartDate) {
		return &ValidationError{Reason: "Coupon is not yet valid"}
	}
	if now.After(c.EndDate) {
		return &ValidationError{Reason: "Coupon has expired"}
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return &ValidationError{Reason: "Coupon usage limit reached"}
	}
	if userUses >= c.MaxUsesPerUser {
		return &ValidationError{Reason: "You have already used this coupon"}
	}
	if itemsPrice.LessThan(c.MinPurchaseAmount) {
		return &ValidationError{
			Reason: fmt.Sprintf("Minimum purchase of $%s required", c.MinPurchaseAmount.String()),
		}
	}
	return nil
}
