// Package coupon validates promo codes against a cart total and computes
// the resulting discount.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeFlat subtracts a fixed amount, capped at the cart total.
	TypeFlat Type = "FLAT"
	// TypePercentage subtracts a percentage of the cart total.
	TypePercentage Type = "PERCENTAGE"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypeFlat || t == TypePercentage
}

var (
	// ErrNotFound is returned when no coupon exists for a promo code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been switched off.
	ErrInactive = errors.New("coupon is not active")
	// ErrExpired is returned when now is outside the coupon's date window.
	ErrExpired = errors.New("coupon expired")
	// ErrMinimumNotMet is returned when the cart total is below the coupon minimum.
	ErrMinimumNotMet = errors.New("minimum cart value not met")
	// ErrInvalidCoupon is returned by Check for coupons that cannot be stored.
	ErrInvalidCoupon = errors.New("invalid coupon")
)

// MinimumNotMetError carries the amount the cart is short of the coupon minimum.
type MinimumNotMetError struct {
	Minimum   decimal.Decimal
	CartTotal decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("minimum cart value %s not met: add %s more",
		e.Minimum.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *MinimumNotMetError) Unwrap() error { return ErrMinimumNotMet }

// Coupon is a promo code with its discount rule and eligibility window.
type Coupon struct {
	PromoCode        string
	Type             Type
	DiscountValue    decimal.Decimal
	MinimumCartValue decimal.Decimal
	IsActive         bool
	StartDate        *time.Time
	ExpiryDate       *time.Time
}

// Discount holds the computed discount and the total after applying it.
type Discount struct {
	Amount          decimal.Decimal
	DiscountedTotal decimal.Decimal
}

// Repository provides lookup and persistence of coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Upsert(ctx context.Context, c *Coupon) error
}

// NormalizeCode returns the canonical stored form of a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var hundred = decimal.NewFromInt(100)

// Check enforces the invariants a coupon must satisfy before it is created
// or updated.
func (c *Coupon) Check() error {
	if NormalizeCode(c.PromoCode) == "" {
		return errors.Wrap(ErrInvalidCoupon, "promo code is required")
	}
	if !c.Type.Valid() {
		return errors.Wrapf(ErrInvalidCoupon, "unsupported discount type %q", c.Type)
	}
	if !c.DiscountValue.IsPositive() {
		return errors.Wrap(ErrInvalidCoupon, "discount value must be positive")
	}
	if c.MinimumCartValue.IsNegative() {
		return errors.Wrap(ErrInvalidCoupon, "minimum cart value must not be negative")
	}
	if c.MinimumCartValue.IsPositive() && c.DiscountValue.GreaterThan(c.MinimumCartValue) {
		return errors.Wrap(ErrInvalidCoupon, "discount value exceeds minimum cart value")
	}
	if c.Type == TypePercentage && c.DiscountValue.GreaterThan(hundred) {
		return errors.Wrap(ErrInvalidCoupon, "percentage exceeds 100")
	}
	if c.StartDate != nil && c.ExpiryDate != nil && c.ExpiryDate.Before(*c.StartDate) {
		return errors.Wrap(ErrInvalidCoupon, "expiry date is before start date")
	}
	return nil
}

// Shortfall returns how much cartTotal is below the coupon minimum, or zero.
func (c *Coupon) Shortfall(cartTotal decimal.Decimal) decimal.Decimal {
	if cartTotal.GreaterThanOrEqual(c.MinimumCartValue) {
		return decimal.Zero
	}
	return c.MinimumCartValue.Sub(cartTotal)
}
