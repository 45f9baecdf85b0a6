package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/coupon"
)

const (
	getCartSQL = `SELECT items, applied_coupon, version, updated_at
		FROM carts WHERE customer_id = $1`

	insertCartSQL = `INSERT INTO carts (customer_id, items, applied_coupon, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (customer_id) DO NOTHING`

	updateCartSQL = `UPDATE carts SET items = $3, applied_coupon = $4, version = version + 1, updated_at = $5
		WHERE customer_id = $1 AND version = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores one cart row per customer with optimistic versioning.
// Totals are not stored; they are recomputed from the items on load.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// appliedCoupon is the JSONB snapshot of the coupon attached to a cart.
type appliedCoupon struct {
	PromoCode        string          `json:"promo_code"`
	Type             coupon.Type     `json:"type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	MinimumCartValue decimal.Decimal `json:"minimum_cart_value"`
	IsActive         bool            `json:"is_active"`
	StartDate        *time.Time      `json:"start_date,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
}

// Load returns the customer's cart repriced from its stored items, or an
// empty cart at version zero.
func (r *CartRepository) Load(ctx context.Context, customerID string) (*cart.Cart, error) {
	var (
		itemsJSON  []byte
		couponJSON []byte
		c          = cart.Cart{CustomerID: customerID}
	)
	err := r.pool.QueryRow(ctx, getCartSQL, customerID).Scan(&itemsJSON, &couponJSON, &c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.Reset()
			return &c, nil
		}
		return nil, fmt.Errorf("loading cart of %q: %w", customerID, err)
	}

	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	if len(couponJSON) > 0 && string(couponJSON) != "null" {
		var ac appliedCoupon
		if err := json.Unmarshal(couponJSON, &ac); err != nil {
			return nil, fmt.Errorf("unmarshaling applied coupon: %w", err)
		}
		c.AppliedCoupon = &coupon.Coupon{
			PromoCode:        ac.PromoCode,
			Type:             ac.Type,
			DiscountValue:    ac.DiscountValue,
			MinimumCartValue: ac.MinimumCartValue,
			IsActive:         ac.IsActive,
			StartDate:        ac.StartDate,
			ExpiryDate:       ac.ExpiryDate,
		}
	}
	if _, err := c.Reprice(); err != nil {
		return nil, fmt.Errorf("repricing cart of %q: %w", customerID, err)
	}
	return &c, nil
}

// Save writes c if the stored version still matches c.Version.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	var couponJSON []byte
	if ac := c.AppliedCoupon; ac != nil {
		couponJSON, err = json.Marshal(appliedCoupon{
			PromoCode:        ac.PromoCode,
			Type:             ac.Type,
			DiscountValue:    ac.DiscountValue,
			MinimumCartValue: ac.MinimumCartValue,
			IsActive:         ac.IsActive,
			StartDate:        ac.StartDate,
			ExpiryDate:       ac.ExpiryDate,
		})
		if err != nil {
			return fmt.Errorf("marshaling applied coupon: %w", err)
		}
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var affected int64
	if c.Version == 0 {
		tag, err := r.pool.Exec(ctx, insertCartSQL, c.CustomerID, itemsJSON, couponJSON, updatedAt)
		if err != nil {
			return fmt.Errorf("inserting cart of %q: %w", c.CustomerID, err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx, updateCartSQL, c.CustomerID, c.Version, itemsJSON, couponJSON, updatedAt)
		if err != nil {
			return fmt.Errorf("updating cart of %q: %w", c.CustomerID, err)
		}
		affected = tag.RowsAffected()
	}
	if affected == 0 {
		return cart.ErrVersionConflict
	}

	c.Version++
	c.UpdatedAt = updatedAt
	return nil
}
