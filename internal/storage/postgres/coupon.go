package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/moto-rental/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT promo_code, coupon_type, discount_value, minimum_cart_value,
		is_active, start_date, expiry_date
		FROM coupons WHERE promo_code = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (promo_code, coupon_type, discount_value, minimum_cart_value,
		is_active, start_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (promo_code) DO UPDATE SET
			coupon_type = EXCLUDED.coupon_type,
			discount_value = EXCLUDED.discount_value,
			minimum_cart_value = EXCLUDED.minimum_cart_value,
			is_active = EXCLUDED.is_active,
			start_date = EXCLUDED.start_date,
			expiry_date = EXCLUDED.expiry_date,
			updated_at = NOW()`
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

// FindByCode looks up a coupon by its promo code, case-insensitively.
// Inactive coupons are returned too so callers can tell them apart from
// unknown codes. Returns coupon.ErrNotFound when no row matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
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

// Upsert stores c under its normalized promo code after checking its rules.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Check(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		coupon.NormalizeCode(c.PromoCode), string(c.Type), c.DiscountValue, c.MinimumCartValue,
		c.IsActive, c.StartDate, c.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.PromoCode, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		couponType string
	)
	err := row.Scan(
		&c.PromoCode, &couponType, &c.DiscountValue, &c.MinimumCartValue,
		&c.IsActive, &c.StartDate, &c.ExpiryDate,
	)
	c.Type = coupon.Type(couponType)
	return c, err
}
