// Package pricing computes rental cart totals from line items.
package pricing

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for line item validation.
var (
	ErrInvalidDateRange = errors.New("return date is before pickup date")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidRate      = errors.New("rate and deposit must not be negative")
)

// InvalidDateRangeError reports a line item whose return date precedes its
// pickup date.
type InvalidDateRangeError struct {
	MotorcycleID string
	PickupDate   time.Time
	ReturnDate   time.Time
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("motorcycle %s: return date %s is before pickup date %s",
		e.MotorcycleID, e.ReturnDate.Format(time.DateOnly), e.PickupDate.Format(time.DateOnly))
}

func (e *InvalidDateRangeError) Unwrap() error { return ErrInvalidDateRange }

// InvalidQuantityError reports a line item with quantity below one.
type InvalidQuantityError struct {
	MotorcycleID string
	Quantity     int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("motorcycle %s: quantity %d must be at least 1", e.MotorcycleID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// Item is the pricing view of a cart line.
type Item struct {
	MotorcycleID           string
	Quantity               int
	PickupDate             time.Time
	ReturnDate             time.Time
	RatePerDay             decimal.Decimal
	SecurityDepositPerUnit decimal.Decimal
}

// Totals holds the priced sums of a set of items.
type Totals struct {
	RentTotal            decimal.Decimal
	SecurityDepositTotal decimal.Decimal
	CartTotal            decimal.Decimal
}

// Date truncates t to its calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b. The
// result is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// RentalDays returns the billable days for a rental, counting both the pickup
// and the return day.
func RentalDays(pickup, ret time.Time) (int, error) {
	days := DaysBetween(pickup, ret)
	if days < 0 {
		return 0, ErrInvalidDateRange
	}
	return days + 1, nil
}

// ValidateItem checks quantity, date range and rates of a single item.
func ValidateItem(item Item) error {
	if item.Quantity < 1 {
		return &InvalidQuantityError{MotorcycleID: item.MotorcycleID, Quantity: item.Quantity}
	}
	if DaysBetween(item.PickupDate, item.ReturnDate) < 0 {
		return &InvalidDateRangeError{
			MotorcycleID: item.MotorcycleID,
			PickupDate:   item.PickupDate,
			ReturnDate:   item.ReturnDate,
		}
	}
	if item.RatePerDay.IsNegative() || item.SecurityDepositPerUnit.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

// ItemRent returns days * rate * quantity for a validated item.
func ItemRent(item Item) (decimal.Decimal, error) {
	if err := ValidateItem(item); err != nil {
		return decimal.Zero, err
	}
	days, err := RentalDays(item.PickupDate, item.ReturnDate)
	if err != nil {
		return decimal.Zero, err
	}
	qty := decimal.NewFromInt(int64(item.Quantity))
	return item.RatePerDay.Mul(decimal.NewFromInt(int64(days))).Mul(qty), nil
}

// PriceCart sums rent and deposit over items. It never returns partial totals:
// the first invalid item aborts the calculation.
func PriceCart(items []Item) (Totals, error) {
	rent := decimal.Zero
	deposit := decimal.Zero
	for _, item := range items {
		line, err := ItemRent(item)
		if err != nil {
			return Totals{}, err
		}
		rent = rent.Add(line)
		deposit = deposit.Add(item.SecurityDepositPerUnit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	rent = rent.Round(2)
	deposit = deposit.Round(2)
	return Totals{
		RentTotal:            rent,
		SecurityDepositTotal: deposit,
		CartTotal:            rent.Add(deposit),
	}, nil
}
