package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

// maxAttempts bounds the load-modify-save loop on version conflicts.
const maxAttempts = 3

// CouponEvaluator resolves and validates a promo code for a cart total.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, cartTotal decimal.Decimal) (*coupon.Coupon, coupon.Discount, error)
}

// AddItemRequest holds the input for adding a rental to the cart.
type AddItemRequest struct {
	MotorcycleID string
	Quantity     int
	PickupDate   time.Time
	ReturnDate   time.Time
}

// UpdateItemRequest changes quantity and/or dates of an existing line.
// Nil fields are left untouched.
type UpdateItemRequest struct {
	ItemID     string
	Quantity   *int
	PickupDate *time.Time
	ReturnDate *time.Time
}

// Result is a cart after a mutation.
type Result struct {
	Cart *Cart
	// CouponDetached reports that the mutation dropped the applied coupon
	// because the cart fell below its minimum value.
	CouponDetached bool
}

// Service encapsulates cart mutation and pricing.
type Service struct {
	catalog motorcycle.Repository
	coupons CouponEvaluator
	carts   Repository
	now     func() time.Time
	newID   func() string
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(catalog motorcycle.Repository, coupons CouponEvaluator, carts Repository) *Service {
	return &Service{
		catalog: catalog,
		coupons: coupons,
		carts:   carts,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Get returns the customer's priced cart.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	c, err := s.carts.Load(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if _, err := c.Reprice(); err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	return c, nil
}

// AddItem validates the rental, snapshots the catalog rates and adds it to
// the cart. A line for the same motorcycle and dates has its quantity raised.
func (s *Service) AddItem(ctx context.Context, customerID string, req AddItemRequest) (*Result, error) {
	item := LineItem{
		MotorcycleID: req.MotorcycleID,
		Quantity:     req.Quantity,
		PickupDate:   pricing.Date(req.PickupDate),
		ReturnDate:   pricing.Date(req.ReturnDate),
	}
	if err := s.checkSchedule(item); err != nil {
		return nil, err
	}
	if err := s.snapshotRates(ctx, &item); err != nil {
		return nil, err
	}

	return s.mutate(ctx, customerID, func(c *Cart) error {
		for i := range c.Items {
			li := &c.Items[i]
			if li.MotorcycleID == item.MotorcycleID &&
				li.PickupDate.Equal(item.PickupDate) && li.ReturnDate.Equal(item.ReturnDate) {
				li.Quantity += item.Quantity
				li.RatePerDay = item.RatePerDay
				li.SecurityDepositPerUnit = item.SecurityDepositPerUnit
				return nil
			}
		}
		added := item
		added.ID = s.newID()
		c.Items = append(c.Items, added)
		return nil
	})
}

// UpdateItem changes quantity or dates of one line. Changing dates refreshes
// the rate snapshot.
func (s *Service) UpdateItem(ctx context.Context, customerID string, req UpdateItemRequest) (*Result, error) {
	return s.mutate(ctx, customerID, func(c *Cart) error {
		i, err := c.Item(req.ItemID)
		if err != nil {
			return err
		}
		li := c.Items[i]
		if req.Quantity != nil {
			li.Quantity = *req.Quantity
		}
		datesChanged := false
		if req.PickupDate != nil {
			li.PickupDate = pricing.Date(*req.PickupDate)
			datesChanged = true
		}
		if req.ReturnDate != nil {
			li.ReturnDate = pricing.Date(*req.ReturnDate)
			datesChanged = true
		}
		if err := s.checkSchedule(li); err != nil {
			return err
		}
		if datesChanged {
			if err := s.snapshotRates(ctx, &li); err != nil {
				return err
			}
		}
		c.Items[i] = li
		return nil
	})
}

// RemoveItem drops one line from the cart.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID string) (*Result, error) {
	return s.mutate(ctx, customerID, func(c *Cart) error {
		i, err := c.Item(itemID)
		if err != nil {
			return err
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// ApplyCoupon validates code against the current cart total and attaches it.
func (s *Service) ApplyCoupon(ctx context.Context, customerID, code string) (*Result, error) {
	return s.mutate(ctx, customerID, func(c *Cart) error {
		if _, err := c.Reprice(); err != nil {
			return err
		}
		applied, _, err := s.coupons.Evaluate(ctx, code, c.CartTotal)
		if err != nil {
			return err
		}
		c.AppliedCoupon = applied
		return nil
	})
}

// RemoveCoupon detaches the applied coupon, if any.
func (s *Service) RemoveCoupon(ctx context.Context, customerID string) (*Result, error) {
	return s.mutate(ctx, customerID, func(c *Cart) error {
		c.AppliedCoupon = nil
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, customerID string) (*Result, error) {
	return s.mutate(ctx, customerID, func(c *Cart) error {
		c.Reset()
		return nil
	})
}

// mutate runs fn on a freshly loaded cart, re-prices it and saves it,
// retrying when another request saved the cart in between.
func (s *Service) mutate(ctx context.Context, customerID string, fn func(c *Cart) error) (*Result, error) {
	var lastErr error
	for range maxAttempts {
		c, err := s.carts.Load(ctx, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "load cart")
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		detached, err := c.Reprice()
		if err != nil {
			return nil, err
		}
		c.UpdatedAt = s.now()

		err = s.carts.Save(ctx, c)
		if err == nil {
			return &Result{Cart: c, CouponDetached: detached}, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, errors.Wrap(err, "save cart")
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) checkSchedule(item LineItem) error {
	if err := pricing.ValidateItem(item.PricingItem()); err != nil {
		return err
	}
	if item.PickupDate.Before(pricing.Date(s.now())) {
		return ErrPickupInPast
	}
	return nil
}

func (s *Service) snapshotRates(ctx context.Context, item *LineItem) error {
	m, err := s.catalog.GetByID(ctx, item.MotorcycleID)
	if err != nil {
		if errors.Is(err, motorcycle.ErrNotFound) {
			return motorcycle.ErrNotFound
		}
		return errors.Wrap(err, "get motorcycle")
	}
	if !m.Available {
		return ErrUnavailable
	}
	item.RatePerDay = m.RentPerDay
	item.SecurityDepositPerUnit = m.SecurityDeposit
	return nil
}
