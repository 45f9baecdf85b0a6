// Package booking turns priced carts into bookings and drives their
// lifecycle, including cancellation with refunds.
package booking

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/cancellation"
)

var (
	// ErrNotFound is returned when a booking id is unknown.
	ErrNotFound = errors.New("booking not found")
	// ErrForbidden is returned when a customer acts on another customer's booking.
	ErrForbidden = errors.New("booking belongs to another customer")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidPayment is returned for negative payments or overpayment.
	ErrInvalidPayment = errors.New("invalid payment amount")
	// ErrVersionConflict is returned by Repository.Update when the stored
	// booking changed since it was loaded.
	ErrVersionConflict = errors.New("booking was modified concurrently")
)

// Item is a rented motorcycle within a booking.
type Item struct {
	MotorcycleID           string          `json:"motorcycle_id"`
	Quantity               int             `json:"quantity"`
	PickupDate             time.Time       `json:"pickup_date"`
	DropoffDate            time.Time       `json:"dropoff_date"`
	RatePerDay             decimal.Decimal `json:"rate_per_day"`
	SecurityDepositPerUnit decimal.Decimal `json:"security_deposit_per_unit"`
}

// Booking is a confirmed snapshot of a priced cart.
type Booking struct {
	ID                   string
	CustomerID           string
	Status               Status
	PaymentStatus        PaymentStatus
	Items                []Item
	CouponCode           string
	RentTotal            decimal.Decimal
	SecurityDepositTotal decimal.Decimal
	CartTotal            decimal.Decimal
	Discount             decimal.Decimal
	DiscountedTotal      decimal.Decimal
	PaidAmount           decimal.Decimal
	RemainingAmount      decimal.Decimal
	CancellationCharge   decimal.Decimal
	RefundAmount         decimal.Decimal
	BookingDate          time.Time
	CancelledAt          *time.Time
	Version              int64
}

// Repository defines persistence operations for bookings.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Booking, error)
	// Update stores b if the stored version still equals b.Version and bumps
	// b.Version on success. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, b *Booking) error
}

// PickupDates returns the pickup date of every item.
func (b *Booking) PickupDates() []time.Time {
	dates := make([]time.Time, len(b.Items))
	for i, item := range b.Items {
		dates[i] = item.PickupDate
	}
	return dates
}

// QuoteCancellation prices cancelling b at time now.
func QuoteCancellation(b *Booking, now time.Time, minFee decimal.Decimal) (cancellation.Quote, error) {
	state := cancellation.Unpaid
	switch b.PaymentStatus {
	case PaymentPartial:
		state = cancellation.PartiallyPaid
	case PaymentFullyPaid:
		state = cancellation.FullyPaid
	}
	return cancellation.Calculate(cancellation.Input{
		PaymentState: state,
		PaidAmount:   b.PaidAmount,
		RentTotal:    b.RentTotal,
		PickupDates:  b.PickupDates(),
	}, now, minFee)
}

// RefundStatus picks the payment status after refunding refundable of paid.
// Without a refund the status is left as is.
func RefundStatus(current PaymentStatus, paid, refundable decimal.Decimal) PaymentStatus {
	switch {
	case !refundable.IsPositive():
		return current
	case refundable.GreaterThanOrEqual(paid):
		return PaymentFullyRefunded
	default:
		return PaymentPartialRefunded
	}
}

// PaymentStatusFor derives the payment status of a paid amount against total.
func PaymentStatusFor(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return PaymentFullyPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// Cancel moves b to CANCELLED and records the quoted charge and refund.
func (b *Booking) Cancel(q cancellation.Quote, now time.Time) error {
	status, err := b.Status.TransitionTo(StatusCancelled)
	if err != nil {
		return err
	}

	payment := RefundStatus(b.PaymentStatus, b.PaidAmount, q.RefundableAmount)
	if payment != b.PaymentStatus {
		if payment, err = b.PaymentStatus.TransitionTo(payment); err != nil {
			return err
		}
	}

	b.Status = status
	b.PaymentStatus = payment
	b.CancellationCharge = q.CancellationCharge
	b.RefundAmount = q.RefundableAmount
	b.RemainingAmount = decimal.Zero
	cancelledAt := now
	b.CancelledAt = &cancelledAt
	return nil
}
