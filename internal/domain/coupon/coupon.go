package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when a coupon code does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrUsageLimitReached is returned by RecordUsage when the conditional
	// increment matched no rows because the coupon hit its global usage cap.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrDuplicateCode is returned by Create when the code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Coupon is a discount code with eligibility rules and usage caps.
// MaxUses of nil means unlimited global redemptions.
type Coupon struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinPurchaseAmount decimal.Decimal
	MaxUses           *int
	UsedCount         int
	MaxUsesPerUser    int
	StartDate         time.Time
	EndDate           time.Time
	Active            bool
	CreatedAt         time.Time
}

// Usage records one redemption of a coupon by a user.
type Usage struct {
	CouponCode string
	UserID     string
	UsedAt     time.Time
}

// Repository provides lookup, mutation, and administration of coupons.
type Repository interface {
	// FindByCode looks up a coupon by code, case-insensitively.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// CountUserUses returns how many times the given user has redeemed the
	// coupon. Guests have no usage history; callers pass an empty userID and
	// receive zero.
	CountUserUses(ctx context.Context, code, userID string) (int, error)

	// RecordUsage increments the coupon's global usage counter if and only if
	// it is still below its cap, and appends a per-user usage row. The
	// increment and the cap check are one atomic statement, so two concurrent
	// checkouts cannot over-redeem a coupon near its limit.
	RecordUsage(ctx context.Context, code, userID string, usedAt time.Time) error

	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
