// Package cancellation quotes cancellation charges and refunds for bookings.
//
// The charge depends on how many days remain until the earliest pickup:
//
//	days < 3      100% of the base
//	3 <= days <= 7 50% of the base
//	days > 7       0% of the base
//
// The base is the paid amount for partially paid bookings and the rent total
// for fully paid ones. Whenever a base applies the charge is at least the
// minimum fee.
package cancellation

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/pricing"
)

// DefaultMinimumFee is the processing fee charged when no tier charge is higher.
var DefaultMinimumFee = decimal.NewFromInt(199)

var (
	// ErrNoItems is returned when a booking has no line items to derive a pickup date from.
	ErrNoItems = errors.New("booking has no items")
	// ErrNegativeFee is returned for a negative minimum fee.
	ErrNegativeFee = errors.New("minimum fee must not be negative")
)

// PaymentState identifies how much of a booking has been paid.
type PaymentState int

const (
	// Unpaid covers every state without a chargeable base.
	Unpaid PaymentState = iota
	// PartiallyPaid charges against the paid amount.
	PartiallyPaid
	// FullyPaid charges against the rent total.
	FullyPaid
)

// Input is the booking data the calculator needs.
type Input struct {
	PaymentState PaymentState
	PaidAmount   decimal.Decimal
	RentTotal    decimal.Decimal
	PickupDates  []time.Time
}

// Quote is a derived, non-persisted cancellation estimate.
type Quote struct {
	DaysUntilPickup    int
	ChargePercentage   decimal.Decimal
	CancellationCharge decimal.Decimal
	RefundableAmount   decimal.Decimal
}

var (
	full = decimal.NewFromInt(1)
	half = decimal.RequireFromString("0.5")
)

// Percentage returns the charge tier for the given days until pickup.
func Percentage(daysUntilPickup int) decimal.Decimal {
	switch {
	case daysUntilPickup < 3:
		return full
	case daysUntilPickup <= 7:
		return half
	default:
		return decimal.Zero
	}
}

// EarliestPickup returns the minimum of dates.
func EarliestPickup(dates []time.Time) (time.Time, error) {
	if len(dates) == 0 {
		return time.Time{}, ErrNoItems
	}
	earliest := dates[0]
	for _, d := range dates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, nil
}

// Calculate quotes the cancellation of in at time now.
func Calculate(in Input, now time.Time, minFee decimal.Decimal) (Quote, error) {
	if minFee.IsNegative() {
		return Quote{}, ErrNegativeFee
	}
	pickup, err := EarliestPickup(in.PickupDates)
	if err != nil {
		return Quote{}, err
	}

	days := pricing.DaysBetween(now, pickup)
	pct := Percentage(days)

	charge := decimal.Zero
	if base, ok := chargeBase(in); ok {
		charge = decimal.Max(base.Mul(pct), minFee).Round(2)
	}

	refundable := in.PaidAmount.Sub(charge)
	if refundable.IsNegative() {
		refundable = decimal.Zero
	}

	return Quote{
		DaysUntilPickup:    days,
		ChargePercentage:   pct,
		CancellationCharge: charge,
		RefundableAmount:   refundable.Round(2),
	}, nil
}

func chargeBase(in Input) (decimal.Decimal, bool) {
	switch in.PaymentState {
	case PartiallyPaid:
		return in.PaidAmount, true
	case FullyPaid:
		return in.RentTotal, true
	default:
		return decimal.Zero, false
	}
}
