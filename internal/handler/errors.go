package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cancellation"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

var errNoCustomer = errors.New("api key is not bound to a customer")

// statusFor maps domain errors to HTTP status codes. Zero means the error is
// unexpected.
func statusFor(err error) int {
	var bre *badRequestError
	switch {
	case errors.As(err, &bre):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrForbidden), errors.Is(err, errNoCustomer):
		return http.StatusForbidden
	case errors.Is(err, motorcycle.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidStatusTransition),
		errors.Is(err, booking.ErrInvalidPaymentTransition),
		errors.Is(err, booking.ErrVersionConflict),
		errors.Is(err, cart.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrInvalidDateRange),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrInvalidRate),
		errors.Is(err, cart.ErrPickupInPast),
		errors.Is(err, cart.ErrUnavailable),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, booking.ErrEmptyCart),
		errors.Is(err, booking.ErrInvalidPayment),
		errors.Is(err, cancellation.ErrNoItems):
		return http.StatusBadRequest
	default:
		return 0
	}
}

// writeError writes the {code, message} body for err. Unexpected errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == 0 {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		message = "internal server error"
	}

	var mnm *coupon.MinimumNotMetError
	hasShortfall := errors.As(err, &mnm)

	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		if hasShortfall {
			encodeMoney(e, "shortfall", mnm.Shortfall)
		}
		e.ObjEnd()
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}
