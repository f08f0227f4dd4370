package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/coupon"
)

const (
	couponColumns = `code, description, discount_type, discount_value, min_purchase_amount,
		max_uses, used_count, max_uses_per_user, start_date, end_date, active, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC`

	insertCouponSQL = `INSERT INTO coupons
		(code, description, discount_type, discount_value, min_purchase_amount,
		 max_uses, max_uses_per_user, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateCouponSQL = `UPDATE coupons SET description = $2, discount_type = $3,
		discount_value = $4, min_purchase_amount = $5, max_uses = $6,
		max_uses_per_user = $7, start_date = $8, end_date = $9, active = $10
		WHERE UPPER(code) = UPPER($1)`

	deleteCouponSQL = `DELETE FROM coupons WHERE UPPER(code) = UPPER($1)`

	countUserUsesSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE UPPER(coupon_code) = UPPER($1) AND user_id = $2`

	// The cap check and the increment are one statement: two checkouts racing
	// on the last redemption cannot both win.
	incrementUsedCountSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE UPPER(code) = UPPER($1) AND (max_uses IS NULL OR used_count < max_uses)`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_code, user_id, used_at)
		VALUES (UPPER($1), $2, $3)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUserUses returns the number of recorded redemptions of the coupon by
// the given user.
func (r *CouponRepository) CountUserUses(ctx context.Context, code, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countUserUsesSQL, code, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting uses of coupon %q by user %q: %w", code, userID, err)
	}
	return count, nil
}

// RecordUsage increments the coupon's usage counter if it is still below its
// cap and appends a usage row. Returns coupon.ErrUsageLimitReached when the
// conditional increment matched no rows.
func (r *CouponRepository) RecordUsage(ctx context.Context, code, userID string, usedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning coupon usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, incrementUsedCountSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing used count for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}

	if _, err := tx.Exec(ctx, insertUsageSQL, code, userID, usedAt); err != nil {
		return fmt.Errorf("recording usage of coupon %q: %w", code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing coupon usage tx: %w", err)
	}
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a new coupon. The code is stored uppercase so lookups stay
// case-insensitive. Returns coupon.ErrDuplicateCode on a unique violation.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		strings.ToUpper(c.Code), c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinPurchaseAmount, c.MaxUses, c.MaxUsesPerUser, c.StartDate, c.EndDate, c.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update overwrites the coupon's rule fields. The usage counter is managed
// exclusively by RecordUsage.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinPurchaseAmount, c.MaxUses, c.MaxUsesPerUser, c.StartDate, c.EndDate, c.Active,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		discountType  string
		discountValue decimal.Decimal
		minPurchase   decimal.Decimal
		maxUses       *int32
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &discountValue, &minPurchase,
		&maxUses, &c.UsedCount, &c.MaxUsesPerUser, &c.StartDate, &c.EndDate,
		&c.Active, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.DiscountValue = discountValue
	c.MinPurchaseAmount = minPurchase
	if maxUses != nil {
		v := int(*maxUses)
		c.MaxUses = &v
	}
	return c, err
}
