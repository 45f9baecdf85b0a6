package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cancellation"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
	"github.com/xenking/moto-rental/internal/domain/pricing"
)

// --- Mock implementations ---

type mockMotorcycleRepo struct {
	list []motorcycle.Motorcycle
	err  error
}

func (m *mockMotorcycleRepo) List(_ context.Context) ([]motorcycle.Motorcycle, error) {
	return m.list, m.err
}

func (m *mockMotorcycleRepo) GetByID(_ context.Context, id string) (*motorcycle.Motorcycle, error) {
	for i := range m.list {
		if m.list[i].ID == id {
			return &m.list[i], nil
		}
	}
	return nil, motorcycle.ErrNotFound
}

type mockCartService struct {
	cart       *cart.Cart
	err        error
	lastAdd    cart.AddItemRequest
	lastUpdate cart.UpdateItemRequest
	lastCode   string
	customer   string
}

func (m *mockCartService) result(customerID string) (*cart.Result, error) {
	m.customer = customerID
	if m.err != nil {
		return nil, m.err
	}
	return &cart.Result{Cart: m.cart}, nil
}

func (m *mockCartService) Get(_ context.Context, customerID string) (*cart.Cart, error) {
	res, err := m.result(customerID)
	if err != nil {
		return nil, err
	}
	return res.Cart, nil
}

func (m *mockCartService) AddItem(_ context.Context, customerID string, req cart.AddItemRequest) (*cart.Result, error) {
	m.lastAdd = req
	return m.result(customerID)
}

func (m *mockCartService) UpdateItem(_ context.Context, customerID string, req cart.UpdateItemRequest) (*cart.Result, error) {
	m.lastUpdate = req
	return m.result(customerID)
}

func (m *mockCartService) RemoveItem(_ context.Context, customerID, _ string) (*cart.Result, error) {
	return m.result(customerID)
}

func (m *mockCartService) ApplyCoupon(_ context.Context, customerID, code string) (*cart.Result, error) {
	m.lastCode = code
	return m.result(customerID)
}

func (m *mockCartService) RemoveCoupon(_ context.Context, customerID string) (*cart.Result, error) {
	return m.result(customerID)
}

func (m *mockCartService) Clear(_ context.Context, customerID string) (*cart.Result, error) {
	return m.result(customerID)
}

type mockBookingService struct {
	booking      *booking.Booking
	quote        cancellation.Quote
	err          error
	lastCheckout booking.CheckoutRequest
	lastAmount   decimal.Decimal
	lastID       string
}

func (m *mockBookingService) one(id string) (*booking.Booking, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.booking, nil
}

func (m *mockBookingService) Checkout(_ context.Context, _ auth.Principal, req booking.CheckoutRequest) (*booking.Booking, error) {
	m.lastCheckout = req
	return m.one("")
}

func (m *mockBookingService) Get(_ context.Context, _ auth.Principal, id string) (*booking.Booking, error) {
	return m.one(id)
}

func (m *mockBookingService) List(_ context.Context, _ auth.Principal) ([]booking.Booking, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []booking.Booking{*m.booking}, nil
}

func (m *mockBookingService) QuoteCancellation(_ context.Context, _ auth.Principal, id string) (*booking.Booking, cancellation.Quote, error) {
	b, err := m.one(id)
	return b, m.quote, err
}

func (m *mockBookingService) Cancel(_ context.Context, _ auth.Principal, id string) (*booking.CancelResult, error) {
	b, err := m.one(id)
	if err != nil {
		return nil, err
	}
	return &booking.CancelResult{Booking: b, Quote: m.quote}, nil
}

func (m *mockBookingService) Confirm(_ context.Context, _ auth.Principal, id string) (*booking.Booking, error) {
	return m.one(id)
}

func (m *mockBookingService) Complete(_ context.Context, _ auth.Principal, id string) (*booking.Booking, error) {
	return m.one(id)
}

func (m *mockBookingService) RecordPayment(_ context.Context, _ auth.Principal, id string, amount decimal.Decimal) (*booking.Booking, error) {
	m.lastAmount = amount
	return m.one(id)
}

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return info, nil
}

// --- Helpers ---

var testPepper = []byte("test-pepper")

const (
	customerKey = "customer-key"
	adminKey    = "admin-key"
	orphanKey   = "orphan-key"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(offset int) time.Time {
	return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

type testEnv struct {
	carts    *mockCartService
	bookings *mockBookingService
	server   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := &cart.Cart{
		CustomerID: "cust-1",
		Items: []cart.LineItem{{
			ID: "li-1", MotorcycleID: "classic-350", Quantity: 2,
			PickupDate: day(0), ReturnDate: day(2),
			RatePerDay: dec("500"), SecurityDepositPerUnit: dec("1000"),
		}},
		Version: 3,
	}
	_, err := c.Reprice()
	require.NoError(t, err)

	b := &booking.Booking{
		ID: "b-1", CustomerID: "cust-1", Status: booking.StatusPending, PaymentStatus: booking.PaymentPartial,
		Items: []booking.Item{{
			MotorcycleID: "classic-350", Quantity: 2, PickupDate: day(0), DropoffDate: day(2),
			RatePerDay: dec("500"), SecurityDepositPerUnit: dec("1000"),
		}},
		RentTotal: dec("3000"), SecurityDepositTotal: dec("2000"), CartTotal: dec("5000"),
		Discount: decimal.Zero, DiscountedTotal: dec("5000"),
		PaidAmount: dec("1000"), RemainingAmount: dec("4000"),
		CancellationCharge: decimal.Zero, RefundAmount: decimal.Zero,
		BookingDate: day(-1),
	}

	env := &testEnv{
		carts: &mockCartService{cart: c},
		bookings: &mockBookingService{booking: b, quote: cancellation.Quote{
			DaysUntilPickup: 5, ChargePercentage: dec("0.5"),
			CancellationCharge: dec("500"), RefundableAmount: dec("500"),
		}},
	}
	keys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		HashAPIKey(customerKey, testPepper): {ID: "k-1", KeyHash: HashAPIKey(customerKey, testPepper), CustomerID: "cust-1"},
		HashAPIKey(adminKey, testPepper):    {ID: "k-0", KeyHash: HashAPIKey(adminKey, testPepper), Scopes: []string{auth.ScopeAdmin}},
		HashAPIKey(orphanKey, testPepper):   {ID: "k-2", KeyHash: HashAPIKey(orphanKey, testPepper)},
	}}
	motorcycles := &mockMotorcycleRepo{list: []motorcycle.Motorcycle{{
		ID: "classic-350", Name: "Classic 350", Brand: "Royal Enfield", EngineCC: 349,
		RentPerDay: dec("500"), SecurityDeposit: dec("1000"), Available: true,
	}}}

	h := NewHandler(motorcycles, env.carts, env.bookings)
	env.server = h.Routes(NewSecurityHandler(keys, testPepper))
	return env
}

func (env *testEnv) do(t *testing.T, method, path, key, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

// --- Tests ---

func TestMotorcycles(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/motorcycles", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "classic-350", list[0]["id"])
	assert.Equal(t, 500.0, list[0]["rentPerDay"])
	assert.Contains(t, rec.Body.String(), `"rentPerDay":500.00`)

	rec, body := env.do(t, http.MethodGet, "/motorcycles/classic-350", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Royal Enfield", body["brand"])

	rec, body = env.do(t, http.MethodGet, "/motorcycles/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 404.0, body["code"])
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"unknown key", "nope", http.StatusUnauthorized},
		{"customer key", customerKey, http.StatusOK},
		{"key without customer", orphanKey, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodGet, "/carts", tt.key, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthenticationInfraError(t *testing.T) {
	sec := NewSecurityHandler(&mockAPIKeyRepo{err: errors.New("db down")}, testPepper)
	_, err := sec.Authenticate(context.Background(), customerKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestAuthenticationHashMismatch(t *testing.T) {
	repo := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		HashAPIKey(customerKey, testPepper): {ID: "k-1", KeyHash: "deadbeef"},
	}}
	sec := NewSecurityHandler(repo, testPepper)
	_, err := sec.Authenticate(context.Background(), customerKey)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestGetCart(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/carts", customerKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", env.carts.customer)
	assert.Equal(t, 5000.0, body["cartTotal"])
	assert.Equal(t, 3000.0, body["rentTotal"])
	assert.Nil(t, body["appliedCoupon"])

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "2025-03-10", item["pickupDate"])
	assert.Equal(t, 3.0, item["days"])
	assert.Equal(t, 3000.0, item["rent"])
}

func TestAddCartItem(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/carts/items", customerKey,
		`{"motorcycleId":"classic-350","quantity":2,"pickupDate":"2025-03-10","returnDate":"2025-03-12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "classic-350", env.carts.lastAdd.MotorcycleID)
	assert.Equal(t, 2, env.carts.lastAdd.Quantity)
	assert.Equal(t, day(2), env.carts.lastAdd.ReturnDate)

	for _, body := range []string{
		`{"quantity":1,"pickupDate":"2025-03-10","returnDate":"2025-03-12"}`,
		`{"motorcycleId":"x","quantity":1}`,
		`{"motorcycleId":"x","quantity":1,"pickupDate":"10/03/2025","returnDate":"2025-03-12"}`,
		`[1,2]`,
	} {
		rec, _ := env.do(t, http.MethodPost, "/carts/items", customerKey, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestUpdateCartItem(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPatch, "/carts/items/li-1", customerKey, `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "li-1", env.carts.lastUpdate.ItemID)
	require.NotNil(t, env.carts.lastUpdate.Quantity)
	assert.Equal(t, 4, *env.carts.lastUpdate.Quantity)
	assert.Nil(t, env.carts.lastUpdate.PickupDate)

	rec, _ = env.do(t, http.MethodPatch, "/carts/items/li-1", customerKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCoupon(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/carts/coupon", customerKey, `{"promoCode":"summer20"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "summer20", env.carts.lastCode)

	rec, _ = env.do(t, http.MethodPost, "/carts/coupon", customerKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"coupon not found", coupon.ErrNotFound, http.StatusNotFound},
		{"coupon inactive", coupon.ErrInactive, http.StatusBadRequest},
		{"coupon expired", coupon.ErrExpired, http.StatusBadRequest},
		{"invalid range", &pricing.InvalidDateRangeError{MotorcycleID: "x"}, http.StatusBadRequest},
		{"invalid quantity", &pricing.InvalidQuantityError{MotorcycleID: "x"}, http.StatusBadRequest},
		{"item missing", cart.ErrItemNotFound, http.StatusNotFound},
		{"cart conflict", cart.ErrVersionConflict, http.StatusConflict},
		{"infra", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.carts.err = tt.err

			rec, body := env.do(t, http.MethodDelete, "/carts/coupon", customerKey, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, float64(tt.want), body["code"])
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["message"])
			}
		})
	}
}

func TestMinimumNotMetShortfall(t *testing.T) {
	env := newTestEnv(t)
	env.carts.err = &coupon.MinimumNotMetError{
		Minimum: dec("5000"), CartTotal: dec("3500"), Shortfall: dec("1500"),
	}

	rec, body := env.do(t, http.MethodPost, "/carts/coupon", customerKey, `{"promoCode":"BIG"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1500.0, body["shortfall"])
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/bookings", customerKey, `{"paidAmount":1000.50}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, dec("1000.50").Equal(env.bookings.lastCheckout.PaidAmount))
	assert.Equal(t, "b-1", body["id"])
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "PARTIAL", body["paymentStatus"])

	rec, _ = env.do(t, http.MethodPost, "/bookings", customerKey, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.bookings.lastCheckout.PaidAmount.IsZero())

	rec, _ = env.do(t, http.MethodPost, "/bookings", customerKey, `{"paidAmount":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.bookings.err = booking.ErrEmptyCart
	rec, _ = env.do(t, http.MethodPost, "/bookings", customerKey, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingReads(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/bookings", customerKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec, body := env.do(t, http.MethodGet, "/bookings/b-1", customerKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b-1", env.bookings.lastID)
	assert.Equal(t, "2025-03-12", body["items"].([]any)[0].(map[string]any)["dropoffDate"])

	env.bookings.err = booking.ErrForbidden
	rec, _ = env.do(t, http.MethodGet, "/bookings/b-1", customerKey, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.bookings.err = booking.ErrNotFound
	rec, _ = env.do(t, http.MethodGet, "/bookings/b-9", customerKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancellation(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/bookings/b-1/cancellation", customerKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	quote := body["quote"].(map[string]any)
	assert.Equal(t, 5.0, quote["daysUntilPickup"])
	assert.Equal(t, 50.0, quote["chargePercentage"])
	assert.Equal(t, 500.0, quote["refundableAmount"])

	rec, body = env.do(t, http.MethodDelete, "/bookings/b-1", customerKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "booking")
	assert.Contains(t, body, "quote")

	env.bookings.err = &booking.InvalidTransitionError{From: booking.StatusCancelled, To: booking.StatusCancelled}
	rec, _ = env.do(t, http.MethodDelete, "/bookings/b-1", customerKey, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/admin/bookings/b-1/confirm", adminKey, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/admin/bookings/b-1/complete", adminKey, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/admin/bookings/b-1/payments", adminKey, `{"amount":"250.25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, dec("250.25").Equal(env.bookings.lastAmount))

	rec, _ = env.do(t, http.MethodPost, "/admin/bookings/b-1/payments", adminKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.bookings.err = booking.ErrForbidden
	rec, _ = env.do(t, http.MethodPost, "/admin/bookings/b-1/confirm", customerKey, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", body["message"])

	rec, _ = env.do(t, http.MethodPut, "/motorcycles", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
