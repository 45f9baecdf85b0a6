//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "moto",
				"POSTGRES_PASSWORD": "moto",
				"POSTGRES_DB":       "moto",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://moto:moto@%s:%s/moto?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations must be re-runnable on every start.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("second migrations run: %v", err)
	}

	return m.Run()
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(offset int) time.Time {
	return time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestMotorcycleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMotorcycleRepository(testPool)

	m := &motorcycle.Motorcycle{
		ID: "it-classic", Name: "Classic 350", Brand: "Royal Enfield", EngineCC: 349,
		RentPerDay: dec("500.00"), SecurityDeposit: dec("1000.00"), Available: true,
	}
	require.NoError(t, repo.Upsert(ctx, m))

	got, err := repo.GetByID(ctx, "it-classic")
	require.NoError(t, err)
	assert.Equal(t, "Royal Enfield", got.Brand)
	assert.Equal(t, 349, got.EngineCC)
	assert.True(t, dec("500").Equal(got.RentPerDay))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, motorcycle.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestCouponRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	start, end := day(-10), day(10)
	require.NoError(t, repo.Upsert(ctx, &coupon.Coupon{
		PromoCode: "it-summer", Type: coupon.TypePercentage, DiscountValue: dec("20"),
		MinimumCartValue: dec("2000"), IsActive: true, StartDate: &start, ExpiryDate: &end,
	}))

	got, err := repo.FindByCode(ctx, "It-Summer")
	require.NoError(t, err)
	assert.Equal(t, "IT-SUMMER", got.PromoCode)
	assert.Equal(t, coupon.TypePercentage, got.Type)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, end.Equal(*got.ExpiryDate))

	_, err = repo.FindByCode(ctx, "nope")
	assert.ErrorIs(t, err, coupon.ErrNotFound)

	err = repo.Upsert(ctx, &coupon.Coupon{PromoCode: "BAD", Type: coupon.TypePercentage, DiscountValue: dec("150")})
	assert.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCartRepository(testPool)

	c, err := repo.Load(ctx, "it-cust")
	require.NoError(t, err)
	assert.Zero(t, c.Version)
	assert.Empty(t, c.Items)

	c.Items = []cart.LineItem{{
		ID: "li-1", MotorcycleID: "it-classic", Quantity: 2,
		PickupDate: day(0), ReturnDate: day(2),
		RatePerDay: dec("500"), SecurityDepositPerUnit: dec("1000"),
	}}
	c.AppliedCoupon = &coupon.Coupon{PromoCode: "FLAT500", Type: coupon.TypeFlat, DiscountValue: dec("500"), IsActive: true}
	require.NoError(t, repo.Save(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	loaded, err := repo.Load(ctx, "it-cust")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.True(t, dec("5000").Equal(loaded.CartTotal))
	assert.True(t, dec("4500").Equal(loaded.DiscountedTotal))
	require.NotNil(t, loaded.AppliedCoupon)
	assert.Equal(t, "FLAT500", loaded.AppliedCoupon.PromoCode)

	// A second writer holding the old version loses.
	stale := *loaded
	loaded.Items[0].Quantity = 3
	require.NoError(t, repo.Save(ctx, loaded))
	assert.ErrorIs(t, repo.Save(ctx, &stale), cart.ErrVersionConflict)

	fresh := &cart.Cart{CustomerID: "it-cust"}
	assert.ErrorIs(t, repo.Save(ctx, fresh), cart.ErrVersionConflict)
}

func TestCartRepositoryConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	repo := NewCartRepository(testPool)

	base, err := repo.Load(ctx, "it-race")
	require.NoError(t, err)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *base
			c.Items = []cart.LineItem{{
				ID: fmt.Sprintf("li-%d", i), MotorcycleID: "it-classic", Quantity: 1,
				PickupDate: day(0), ReturnDate: day(0), RatePerDay: dec("1"),
			}}
			if err := repo.Save(ctx, &c); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestBookingRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingRepository(testPool)

	b := &booking.Booking{
		ID: "it-b-1", CustomerID: "it-cust", Status: booking.StatusPending, PaymentStatus: booking.PaymentPartial,
		Items: []booking.Item{{
			MotorcycleID: "it-classic", Quantity: 2, PickupDate: day(0), DropoffDate: day(2),
			RatePerDay: dec("500"), SecurityDepositPerUnit: dec("1000"),
		}},
		CouponCode: "FLAT500",
		RentTotal:  dec("3000"), SecurityDepositTotal: dec("2000"), CartTotal: dec("5000"),
		Discount: dec("500"), DiscountedTotal: dec("4500"),
		PaidAmount: dec("1000"), RemainingAmount: dec("3500"),
		CancellationCharge: decimal.Zero, RefundAmount: decimal.Zero,
		BookingDate: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := repo.Get(ctx, "it-b-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, day(2), got.Items[0].DropoffDate.UTC())
	assert.Nil(t, got.CancelledAt)

	stale := *got
	cancelledAt := time.Now().UTC()
	got.Status = booking.StatusCancelled
	got.PaymentStatus = booking.PaymentPartialRefunded
	got.CancellationCharge = dec("199")
	got.RefundAmount = dec("801")
	got.CancelledAt = &cancelledAt
	require.NoError(t, repo.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)
	assert.ErrorIs(t, repo.Update(ctx, &stale), booking.ErrVersionConflict)

	list, err := repo.ListByCustomer(ctx, "it-cust")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, booking.StatusCancelled, list[0].Status)
	assert.True(t, dec("801").Equal(list[0].RefundAmount))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)

	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{
		ID: "it-key", KeyHash: "abc123", Name: "integration", CustomerID: "it-cust", Scopes: []string{auth.ScopeAdmin},
	}))

	info, err := repo.FindByHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "it-cust", info.CustomerID)
	assert.Equal(t, []string{auth.ScopeAdmin}, info.Scopes)

	_, err = repo.FindByHash(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
