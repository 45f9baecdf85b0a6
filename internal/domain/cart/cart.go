// Package cart keeps a customer's live rental cart priced after every change.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

var (
	// ErrItemNotFound is returned when a line item id is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrVersionConflict is returned by Repository.Save when the stored cart
	// changed since it was loaded.
	ErrVersionConflict = errors.New("cart was modified concurrently")
	// ErrPickupInPast is returned for rentals starting before today.
	ErrPickupInPast = errors.New("pickup date is in the past")
	// ErrUnavailable is returned when a motorcycle is not offered for rent.
	ErrUnavailable = errors.New("motorcycle is not available")
)

// LineItem is one motorcycle rental in the cart. Rates are a snapshot of the
// catalog taken when the item was added or its dates changed.
type LineItem struct {
	ID                     string          `json:"id"`
	MotorcycleID           string          `json:"motorcycle_id"`
	Quantity               int             `json:"quantity"`
	PickupDate             time.Time       `json:"pickup_date"`
	ReturnDate             time.Time       `json:"return_date"`
	RatePerDay             decimal.Decimal `json:"rate_per_day"`
	SecurityDepositPerUnit decimal.Decimal `json:"security_deposit_per_unit"`
}

// PricingItem returns the pricing view of the line.
func (li LineItem) PricingItem() pricing.Item {
	return pricing.Item{
		MotorcycleID:           li.MotorcycleID,
		Quantity:               li.Quantity,
		PickupDate:             li.PickupDate,
		ReturnDate:             li.ReturnDate,
		RatePerDay:             li.RatePerDay,
		SecurityDepositPerUnit: li.SecurityDepositPerUnit,
	}
}

// Cart is the priced cart of a single customer.
type Cart struct {
	CustomerID           string
	Items                []LineItem
	AppliedCoupon        *coupon.Coupon
	RentTotal            decimal.Decimal
	SecurityDepositTotal decimal.Decimal
	CartTotal            decimal.Decimal
	Discount             decimal.Decimal
	DiscountedTotal      decimal.Decimal
	// Version is the stored revision the cart was loaded at; zero for a cart
	// that has never been saved.
	Version   int64
	UpdatedAt time.Time
}

// Repository persists one cart per customer.
type Repository interface {
	// Load returns the customer's cart, or an empty cart at version zero.
	Load(ctx context.Context, customerID string) (*Cart, error)
	// Save stores c if the stored version still equals c.Version and bumps
	// c.Version on success. It returns ErrVersionConflict otherwise.
	Save(ctx context.Context, c *Cart) error
}

// Item returns the index of the line with the given id.
func (c *Cart) Item(id string) (int, error) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i, nil
		}
	}
	return -1, ErrItemNotFound
}

// Reprice recomputes every total. A coupon whose minimum is no longer met is
// detached; the returned flag reports that.
func (c *Cart) Reprice() (detached bool, err error) {
	items := make([]pricing.Item, len(c.Items))
	for i, li := range c.Items {
		items[i] = li.PricingItem()
	}
	totals, err := pricing.PriceCart(items)
	if err != nil {
		return false, err
	}

	c.RentTotal = totals.RentTotal
	c.SecurityDepositTotal = totals.SecurityDepositTotal
	c.CartTotal = totals.CartTotal

	if c.AppliedCoupon != nil && c.CartTotal.LessThan(c.AppliedCoupon.MinimumCartValue) {
		c.AppliedCoupon = nil
		detached = true
	}

	d := coupon.Apply(c.CartTotal, c.AppliedCoupon)
	c.Discount = d.Amount
	c.DiscountedTotal = d.DiscountedTotal
	return detached, nil
}

// Reset empties the cart and its totals, keeping identity and version.
func (c *Cart) Reset() {
	c.Items = nil
	c.AppliedCoupon = nil
	c.RentTotal = decimal.Zero
	c.SecurityDepositTotal = decimal.Zero
	c.CartTotal = decimal.Zero
	c.Discount = decimal.Zero
	c.DiscountedTotal = decimal.Zero
}
