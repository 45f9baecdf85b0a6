package booking

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/cancellation"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

// Config holds booking policy settings.
type Config struct {
	// MinCancellationFee is the floor of every cancellation charge.
	MinCancellationFee decimal.Decimal
	// AutoConfirmPaid confirms bookings that are fully paid at checkout.
	AutoConfirmPaid bool
}

// CheckoutRequest holds the input for turning the cart into a booking.
type CheckoutRequest struct {
	PaidAmount decimal.Decimal
}

// CancelResult is a cancelled booking with the quote it was cancelled at.
type CancelResult struct {
	Booking *Booking
	Quote   cancellation.Quote
}

// Service encapsulates checkout and booking lifecycle operations.
type Service struct {
	carts    cart.Repository
	bookings Repository
	cfg      Config
	metrics  *metrics
	now      func() time.Time
	newID    func() string
}

// NewService creates a booking Service. Counters are registered on meter.
func NewService(carts cart.Repository, bookings Repository, cfg Config, meter metric.Meter) (*Service, error) {
	if cfg.MinCancellationFee.IsNegative() {
		return nil, cancellation.ErrNegativeFee
	}
	m, err := newMetrics(meter)
	if err != nil {
		return nil, errors.Wrap(err, "register metrics")
	}
	return &Service{
		carts:    carts,
		bookings: bookings,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}, nil
}

// Checkout snapshots the customer's priced cart into a new booking and
// clears the cart.
func (s *Service) Checkout(ctx context.Context, p auth.Principal, req CheckoutRequest) (*Booking, error) {
	c, err := s.carts.Load(ctx, p.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	today := pricing.Date(s.now())
	items := make([]Item, len(c.Items))
	for i, li := range c.Items {
		if err := pricing.ValidateItem(li.PricingItem()); err != nil {
			return nil, err
		}
		if li.PickupDate.Before(today) {
			return nil, cart.ErrPickupInPast
		}
		items[i] = Item{
			MotorcycleID:           li.MotorcycleID,
			Quantity:               li.Quantity,
			PickupDate:             li.PickupDate,
			DropoffDate:            li.ReturnDate,
			RatePerDay:             li.RatePerDay,
			SecurityDepositPerUnit: li.SecurityDepositPerUnit,
		}
	}
	if _, err := c.Reprice(); err != nil {
		return nil, err
	}

	paid := req.PaidAmount.Round(2)
	if paid.IsNegative() || paid.GreaterThan(c.DiscountedTotal) {
		return nil, errors.Wrapf(ErrInvalidPayment, "paid %s of %s", paid.StringFixed(2), c.DiscountedTotal.StringFixed(2))
	}

	payment := PaymentStatusFor(paid, c.DiscountedTotal)
	status := StatusPending
	if payment == PaymentFullyPaid && s.cfg.AutoConfirmPaid {
		status = StatusConfirmed
	}

	b := &Booking{
		ID:                   s.newID(),
		CustomerID:           p.CustomerID,
		Status:               status,
		PaymentStatus:        payment,
		Items:                items,
		RentTotal:            c.RentTotal,
		SecurityDepositTotal: c.SecurityDepositTotal,
		CartTotal:            c.CartTotal,
		Discount:             c.Discount,
		DiscountedTotal:      c.DiscountedTotal,
		PaidAmount:           paid,
		RemainingAmount:      c.DiscountedTotal.Sub(paid),
		CancellationCharge:   decimal.Zero,
		RefundAmount:         decimal.Zero,
		BookingDate:          s.now(),
	}
	if c.AppliedCoupon != nil {
		b.CouponCode = c.AppliedCoupon.PromoCode
	}

	// Clearing first makes a concurrent second checkout of the same cart
	// fail on the version check.
	snapshot := *c
	c.Reset()
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		if errors.Is(err, cart.ErrVersionConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, "clear cart")
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		snapshot.Version = c.Version
		if restoreErr := s.carts.Save(ctx, &snapshot); restoreErr != nil {
			return nil, errors.Wrapf(err, "create booking (restore cart: %v)", restoreErr)
		}
		return nil, errors.Wrap(err, "create booking")
	}

	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_status", string(b.PaymentStatus))))
	return b, nil
}

// Get returns a booking visible to p.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Booking, error) {
	return s.load(ctx, p, id)
}

// List returns the bookings of p's customer.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Booking, error) {
	list, err := s.bookings.ListByCustomer(ctx, p.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}
	return list, nil
}

// QuoteCancellation prices cancelling a booking now without changing it.
func (s *Service) QuoteCancellation(ctx context.Context, p auth.Principal, id string) (*Booking, cancellation.Quote, error) {
	b, err := s.load(ctx, p, id)
	if err != nil {
		return nil, cancellation.Quote{}, err
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return nil, cancellation.Quote{}, &InvalidTransitionError{From: b.Status, To: StatusCancelled}
	}
	q, err := QuoteCancellation(b, s.now(), s.cfg.MinCancellationFee)
	if err != nil {
		return nil, cancellation.Quote{}, err
	}
	return b, q, nil
}

// Cancel quotes and applies the cancellation of a booking.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id string) (*CancelResult, error) {
	b, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	q, err := QuoteCancellation(b, now, s.cfg.MinCancellationFee)
	if err != nil {
		return nil, err
	}
	if err := b.Cancel(q, now); err != nil {
		return nil, err
	}
	if err := s.update(ctx, b); err != nil {
		return nil, err
	}

	s.metrics.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("charge_tier", q.ChargePercentage.String())))
	s.metrics.refunded.Add(ctx, q.RefundableAmount.InexactFloat64())
	return &CancelResult{Booking: b, Quote: q}, nil
}

// Confirm moves a pending booking to CONFIRMED. Admin only.
func (s *Service) Confirm(ctx context.Context, p auth.Principal, id string) (*Booking, error) {
	return s.transition(ctx, p, id, StatusConfirmed)
}

// Complete moves a confirmed booking to COMPLETED. Admin only.
func (s *Service) Complete(ctx context.Context, p auth.Principal, id string) (*Booking, error) {
	return s.transition(ctx, p, id, StatusCompleted)
}

// RecordPayment adds amount to the paid total of an open booking. Admin only.
func (s *Service) RecordPayment(ctx context.Context, p auth.Principal, id string, amount decimal.Decimal) (*Booking, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, errors.Wrap(ErrInvalidPayment, "amount must be positive")
	}

	b, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, &InvalidTransitionError{From: b.Status, To: b.Status}
	}
	paid := b.PaidAmount.Add(amount)
	if paid.GreaterThan(b.DiscountedTotal) {
		return nil, errors.Wrapf(ErrInvalidPayment, "payment exceeds remaining %s", b.RemainingAmount.StringFixed(2))
	}
	payment, err := b.PaymentStatus.TransitionTo(PaymentStatusFor(paid, b.DiscountedTotal))
	if err != nil {
		return nil, err
	}

	b.PaidAmount = paid
	b.RemainingAmount = b.DiscountedTotal.Sub(paid)
	b.PaymentStatus = payment
	if err := s.update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) transition(ctx context.Context, p auth.Principal, id string, target Status) (*Booking, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	b, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	status, err := b.Status.TransitionTo(target)
	if err != nil {
		return nil, err
	}
	b.Status = status
	if err := s.update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) load(ctx context.Context, p auth.Principal, id string) (*Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get booking")
	}
	if !p.CanAccess(b.CustomerID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) update(ctx context.Context, b *Booking) error {
	if err := s.bookings.Update(ctx, b); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return errors.Wrap(err, "update booking")
	}
	return nil
}
