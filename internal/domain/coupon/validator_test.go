package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func baseCoupon() *Coupon {
	return &Coupon{
		Code:              "SAVE10",
		DiscountType:      DiscountPercentage,
		DiscountValue:     decimal.NewFromInt(10),
		MinPurchaseAmount: decimal.Zero,
		MaxUsesPerUser:    1,
		StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Active:            true,
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mutate     func(c *Coupon)
		userUses   int
		itemsPrice decimal.Decimal
		wantReason string
	}{
		{
			name:       "valid coupon passes all checks",
			mutate:     func(*Coupon) {},
			itemsPrice: decimal.NewFromInt(100),
		},
		{
			name:       "inactive coupon",
			mutate:     func(c *Coupon) { c.Active = false },
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "Coupon is not active",
		},
		{
			name: "not yet valid",
			mutate: func(c *Coupon) {
				c.StartDate = now.Add(24 * time.Hour)
			},
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "Coupon is not yet valid",
		},
		{
			name: "expired",
			mutate: func(c *Coupon) {
				c.EndDate = now.Add(-24 * time.Hour)
			},
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "Coupon has expired",
		},
		{
			name: "global usage cap reached",
			mutate: func(c *Coupon) {
				c.MaxUses = intPtr(100)
				c.UsedCount = 100
			},
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "Coupon usage limit reached",
		},
		{
			name: "one redemption below the cap is accepted",
			mutate: func(c *Coupon) {
				c.MaxUses = intPtr(100)
				c.UsedCount = 99
			},
			itemsPrice: decimal.NewFromInt(100),
		},
		{
			name: "nil max uses means unlimited",
			mutate: func(c *Coupon) {
				c.MaxUses = nil
				c.UsedCount = 1_000_000
			},
			itemsPrice: decimal.NewFromInt(100),
		},
		{
			name:       "per-user cap reached for this user",
			mutate:     func(c *Coupon) { c.MaxUsesPerUser = 1 },
			userUses:   1,
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "You have already used this coupon",
		},
		{
			name:       "different user with no usage history is accepted",
			mutate:     func(c *Coupon) { c.MaxUsesPerUser = 1 },
			userUses:   0,
			itemsPrice: decimal.NewFromInt(100),
		},
		{
			name: "below minimum purchase",
			mutate: func(c *Coupon) {
				c.MinPurchaseAmount = decimal.NewFromInt(50)
			},
			itemsPrice: decimal.NewFromInt(40),
			wantReason: "Minimum purchase of $50 required",
		},
		{
			name: "exactly at minimum purchase is accepted",
			mutate: func(c *Coupon) {
				c.MinPurchaseAmount = decimal.NewFromInt(50)
			},
			itemsPrice: decimal.NewFromInt(50),
		},
		{
			name: "inactive wins over expired: first failing check reports",
			mutate: func(c *Coupon) {
				c.Active = false
				c.EndDate = now.Add(-24 * time.Hour)
			},
			itemsPrice: decimal.NewFromInt(100),
			wantReason: "Coupon is not active",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCoupon()
			tt.mutate(c)

			err := Validate(c, tt.userUses, tt.itemsPrice, now)

			if tt.wantReason == "" {
				require.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantReason, vErr.Reason)
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := baseCoupon()
	c.MaxUses = intPtr(5)
	c.UsedCount = 4

	first := Validate(c, 0, decimal.NewFromInt(100), now)
	second := Validate(c, 0, decimal.NewFromInt(100), now)

	require.NoError(t, first)
	require.NoError(t, second)
	assert.Equal(t, 4, c.UsedCount, "Validate must not mutate the coupon")
}
