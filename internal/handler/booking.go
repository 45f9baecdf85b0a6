package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cancellation"
)

// Checkout turns the caller's cart into a booking.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err == nil && p.CustomerID == "" {
		err = errNoCustomer
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := booking.CheckoutRequest{PaidAmount: decimal.Zero}
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "paidAmount" {
			v, err := decodeDecimal(d)
			if err != nil {
				return badRequest("paidAmount: %v", err)
			}
			req.PaidAmount = v
			return nil
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.bookings.Checkout(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBooking(w, http.StatusCreated, b)
}

// ListBookings returns the caller's bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.bookings.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeBooking(e, &list[i])
		}
		e.ArrEnd()
	})
}

// GetBooking returns one booking.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, http.StatusOK, h.bookings.Get)
}

// QuoteCancellation returns what cancelling the booking now would cost.
func (h *Handler) QuoteCancellation(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, q, err := h.bookings.QuoteCancellation(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("bookingId")
		e.Str(b.ID)
		e.FieldStart("quote")
		encodeQuote(e, q)
		e.ObjEnd()
	})
}

// CancelBooking cancels the booking and reports the charge and refund.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.bookings.Cancel(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("booking")
		encodeBooking(e, res.Booking)
		e.FieldStart("quote")
		encodeQuote(e, res.Quote)
		e.ObjEnd()
	})
}

// ConfirmBooking moves a pending booking to CONFIRMED.
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, http.StatusOK, h.bookings.Confirm)
}

// CompleteBooking moves a confirmed booking to COMPLETED.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingAction(w, r, http.StatusOK, h.bookings.Complete)
}

// RecordPayment adds a payment to a booking.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		amount    decimal.Decimal
		hasAmount bool
	)
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "amount" {
			v, err := decodeDecimal(d)
			if err != nil {
				return badRequest("amount: %v", err)
			}
			amount, hasAmount = v, true
			return nil
		}
		return d.Skip()
	})
	if err == nil && !hasAmount {
		err = badRequest("amount is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.bookings.RecordPayment(r.Context(), p, chi.URLParam(r, "id"), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBooking(w, http.StatusOK, b)
}

type bookingFunc func(ctx context.Context, p auth.Principal, id string) (*booking.Booking, error)

func (h *Handler) bookingAction(w http.ResponseWriter, r *http.Request, status int, fn bookingFunc) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := fn(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBooking(w, status, b)
}

func writeBooking(w http.ResponseWriter, status int, b *booking.Booking) {
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeBooking(e, b)
	})
}

func encodeBooking(e *jx.Encoder, b *booking.Booking) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(b.ID)
	e.FieldStart("customerId")
	e.Str(b.CustomerID)
	e.FieldStart("status")
	e.Str(string(b.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(b.PaymentStatus))
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range b.Items {
		e.ObjStart()
		e.FieldStart("motorcycleId")
		e.Str(item.MotorcycleID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		encodeDate(e, "pickupDate", item.PickupDate)
		encodeDate(e, "dropoffDate", item.DropoffDate)
		encodeMoney(e, "ratePerDay", item.RatePerDay)
		encodeMoney(e, "securityDepositPerUnit", item.SecurityDepositPerUnit)
		e.ObjEnd()
	}
	e.ArrEnd()
	if b.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(b.CouponCode)
	}
	encodeMoney(e, "rentTotal", b.RentTotal)
	encodeMoney(e, "securityDepositTotal", b.SecurityDepositTotal)
	encodeMoney(e, "cartTotal", b.CartTotal)
	encodeMoney(e, "discount", b.Discount)
	encodeMoney(e, "discountedTotal", b.DiscountedTotal)
	encodeMoney(e, "paidAmount", b.PaidAmount)
	encodeMoney(e, "remainingAmount", b.RemainingAmount)
	encodeMoney(e, "cancellationCharge", b.CancellationCharge)
	encodeMoney(e, "refundAmount", b.RefundAmount)
	encodeDateTime(e, "bookingDate", b.BookingDate.UTC())
	if b.CancelledAt != nil {
		encodeDateTime(e, "cancelledAt", b.CancelledAt.UTC())
	}
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q cancellation.Quote) {
	e.ObjStart()
	e.FieldStart("daysUntilPickup")
	e.Int(q.DaysUntilPickup)
	e.FieldStart("chargePercentage")
	e.Raw([]byte(q.ChargePercentage.Mul(decimal.NewFromInt(100)).StringFixed(0)))
	encodeMoney(e, "cancellationCharge", q.CancellationCharge)
	encodeMoney(e, "refundableAmount", q.RefundableAmount)
	e.ObjEnd()
}
