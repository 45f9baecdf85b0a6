package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/moto-rental/internal/domain/booking"
)

const (
	bookingColumns = `id, customer_id, status, payment_status, items, coupon_code,
		rent_total, security_deposit_total, cart_total, discount, discounted_total,
		paid_amount, remaining_amount, cancellation_charge, refund_amount,
		booking_date, cancelled_at, version`

	createBookingSQL = `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)`

	getBookingSQL = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	listBookingsByCustomerSQL = `SELECT ` + bookingColumns + `
		FROM bookings WHERE customer_id = $1 ORDER BY booking_date DESC, id`

	updateBookingSQL = `UPDATE bookings SET
			status = $3,
			payment_status = $4,
			paid_amount = $5,
			remaining_amount = $6,
			cancellation_charge = $7,
			refund_amount = $8,
			cancelled_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2`
)

var _ booking.Repository = (*BookingRepository)(nil)

// BookingRepository implements booking.Repository backed by PostgreSQL.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository returns a BookingRepository that uses the given pool.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// Create persists a new booking at version 1. The items are serialized to
// JSON for storage in the JSONB column.
func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	itemsJSON, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("marshaling booking items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createBookingSQL,
		b.ID, b.CustomerID, string(b.Status), string(b.PaymentStatus), itemsJSON, b.CouponCode,
		b.RentTotal, b.SecurityDepositTotal, b.CartTotal, b.Discount, b.DiscountedTotal,
		b.PaidAmount, b.RemainingAmount, b.CancellationCharge, b.RefundAmount,
		b.BookingDate, b.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("creating booking %q: %w", b.ID, err)
	}
	b.Version = 1
	return nil
}

// Get returns a booking by ID.
func (r *BookingRepository) Get(ctx context.Context, id string) (*booking.Booking, error) {
	rows, err := r.pool.Query(ctx, getBookingSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting booking %q: %w", id, err)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBooking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("getting booking %q: %w", id, err)
	}
	return &b, nil
}

// ListByCustomer returns the customer's bookings, newest first.
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]booking.Booking, error) {
	rows, err := r.pool.Query(ctx, listBookingsByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing bookings of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanBooking)
}

// Update writes the mutable lifecycle fields of b if the stored version still
// matches b.Version. Items and totals are immutable after checkout.
func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	tag, err := r.pool.Exec(ctx, updateBookingSQL,
		b.ID, b.Version, string(b.Status), string(b.PaymentStatus),
		b.PaidAmount, b.RemainingAmount, b.CancellationCharge, b.RefundAmount, b.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("updating booking %q: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrVersionConflict
	}
	b.Version++
	return nil
}

func scanBooking(row pgx.CollectableRow) (booking.Booking, error) {
	var (
		b             booking.Booking
		status        string
		paymentStatus string
		itemsJSON     []byte
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &status, &paymentStatus, &itemsJSON, &b.CouponCode,
		&b.RentTotal, &b.SecurityDepositTotal, &b.CartTotal, &b.Discount, &b.DiscountedTotal,
		&b.PaidAmount, &b.RemainingAmount, &b.CancellationCharge, &b.RefundAmount,
		&b.BookingDate, &b.CancelledAt, &b.Version,
	)
	if err != nil {
		return b, err
	}
	b.Status = booking.Status(status)
	b.PaymentStatus = booking.PaymentStatus(paymentStatus)
	if err := json.Unmarshal(itemsJSON, &b.Items); err != nil {
		return b, fmt.Errorf("unmarshaling booking items: %w", err)
	}
	return b, nil
}
