// Package handler exposes the rental API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cancellation"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
)

// CartService is the cart behaviour the handler depends on.
type CartService interface {
	Get(ctx context.Context, customerID string) (*cart.Cart, error)
	AddItem(ctx context.Context, customerID string, req cart.AddItemRequest) (*cart.Result, error)
	UpdateItem(ctx context.Context, customerID string, req cart.UpdateItemRequest) (*cart.Result, error)
	RemoveItem(ctx context.Context, customerID, itemID string) (*cart.Result, error)
	ApplyCoupon(ctx context.Context, customerID, code string) (*cart.Result, error)
	RemoveCoupon(ctx context.Context, customerID string) (*cart.Result, error)
	Clear(ctx context.Context, customerID string) (*cart.Result, error)
}

// BookingService is the booking behaviour the handler depends on.
type BookingService interface {
	Checkout(ctx context.Context, p auth.Principal, req booking.CheckoutRequest) (*booking.Booking, error)
	Get(ctx context.Context, p auth.Principal, id string) (*booking.Booking, error)
	List(ctx context.Context, p auth.Principal) ([]booking.Booking, error)
	QuoteCancellation(ctx context.Context, p auth.Principal, id string) (*booking.Booking, cancellation.Quote, error)
	Cancel(ctx context.Context, p auth.Principal, id string) (*booking.CancelResult, error)
	Confirm(ctx context.Context, p auth.Principal, id string) (*booking.Booking, error)
	Complete(ctx context.Context, p auth.Principal, id string) (*booking.Booking, error)
	RecordPayment(ctx context.Context, p auth.Principal, id string, amount decimal.Decimal) (*booking.Booking, error)
}

var (
	_ CartService    = (*cart.Service)(nil)
	_ BookingService = (*booking.Service)(nil)
)

// Handler serves the catalog, cart and booking endpoints.
type Handler struct {
	motorcycles motorcycle.Repository
	carts       CartService
	bookings    BookingService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	motorcycles motorcycle.Repository,
	carts CartService,
	bookings BookingService,
) *Handler {
	return &Handler{
		motorcycles: motorcycles,
		carts:       carts,
		bookings:    bookings,
	}
}

// Routes returns the API router. Catalog reads are public; everything else
// requires an API key.
func (h *Handler) Routes(sec *SecurityHandler) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/motorcycles", h.ListMotorcycles)
	r.Get("/motorcycles/{id}", h.GetMotorcycle)

	r.Group(func(r chi.Router) {
		r.Use(sec.Middleware)

		r.Route("/carts", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{itemId}", h.UpdateCartItem)
			r.Delete("/items/{itemId}", h.RemoveCartItem)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/", h.ListBookings)
			r.Get("/{id}", h.GetBooking)
			r.Get("/{id}/cancellation", h.QuoteCancellation)
			r.Delete("/{id}", h.CancelBooking)
		})

		r.Route("/admin/bookings/{id}", func(r chi.Router) {
			r.Post("/confirm", h.ConfirmBooking)
			r.Post("/complete", h.CompleteBooking)
			r.Post("/payments", h.RecordPayment)
		})
	})
	return r
}

func principal(r *http.Request) (auth.Principal, error) {
	return auth.FromContext(r.Context())
}

// customer returns the customer the caller acts for. Keys without a customer
// cannot own a cart.
func customer(r *http.Request) (string, error) {
	p, err := principal(r)
	if err != nil {
		return "", err
	}
	if p.CustomerID == "" {
		return "", errNoCustomer
	}
	return p.CustomerID, nil
}
