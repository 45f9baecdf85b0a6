package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Options tunes coupon validation.
type Options struct {
	// EnforceWindow rejects coupons outside [StartDate, ExpiryDate].
	EnforceWindow bool
}

// Validate checks c against the cart total at time now. The first failing rule
// wins: existence, active flag, date window, minimum cart value.
func Validate(c *Coupon, cartTotal decimal.Decimal, now time.Time, opts Options) error {
	if c == nil {
		return ErrNotFound
	}
	if !c.IsActive {
		return ErrInactive
	}
	if opts.EnforceWindow {
		if c.StartDate != nil && now.Before(*c.StartDate) {
			return ErrExpired
		}
		if c.ExpiryDate != nil && now.After(*c.ExpiryDate) {
			return ErrExpired
		}
	}
	if cartTotal.LessThan(c.MinimumCartValue) {
		return &MinimumNotMetError{
			Minimum:   c.MinimumCartValue,
			CartTotal: cartTotal,
			Shortfall: c.Shortfall(cartTotal),
		}
	}
	return nil
}

// Apply computes the discount of c on cartTotal. A nil coupon yields no
// discount. The discounted total is floored at zero.
func Apply(cartTotal decimal.Decimal, c *Coupon) Discount {
	amount := decimal.Zero
	if c != nil {
		switch c.Type {
		case TypeFlat:
			amount = decimal.Min(c.DiscountValue, cartTotal)
		case TypePercentage:
			amount = cartTotal.Mul(c.DiscountValue).Div(hundred)
		}
	}
	amount = floorAtZero(amount).Round(2)

	return Discount{
		Amount:          amount,
		DiscountedTotal: floorAtZero(cartTotal.Sub(amount)),
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
