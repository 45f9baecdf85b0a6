package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/cart"
	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/handler"
	"github.com/xenking/moto-rental/internal/storage/postgres"
	"github.com/xenking/moto-rental/pkg/health"
	"github.com/xenking/moto-rental/pkg/httpmiddleware"
)

const serviceName = "moto-rental"

// Run wires storage, domain services and the HTTP stack, then serves until
// ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	probes.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	probes.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second), health.WithThresholds(5, 1))
	probes.Start(ctx, 10*time.Second)
	probes.SetReady(true)

	motorcycles := postgres.NewMotorcycleRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	carts := postgres.NewCartRepository(pool)
	bookings := postgres.NewBookingRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	cartSvc := cart.NewService(motorcycles, coupon.NewEvaluator(coupons, cfg.CouponOptions()), carts)
	bookingSvc, err := booking.NewService(carts, bookings, cfg.BookingConfig(), m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create booking service")
	}

	h := handler.NewHandler(motorcycles, cartSvc, bookingSvc)
	sec := handler.NewSecurityHandler(apikeys, []byte(cfg.APIKeyPepper))

	root := chi.NewRouter()
	root.Get("/livez", probes.LiveEndpoint)
	root.Get("/readyz", probes.ReadyEndpoint)
	root.Mount("/api", h.Routes(sec))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
		),
	}

	return serve(ctx, lg, server, probes, cfg.Graceful)
}

// serve runs server until ctx is done, then closes the readiness gate, waits
// for load balancers to notice and drains in-flight requests.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, probes *health.Health, g GracefulConfig) error {
	defer probes.Stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		lg.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		probes.SetReady(false)
		lg.Info("Draining", zap.Duration("readiness_delay", g.ReadinessDelay))
		time.Sleep(g.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.ShutdownTimeout)
		defer cancel()
		lg.Info("Shutting down server", zap.Duration("timeout", g.ShutdownTimeout))
		return errors.Wrap(server.Shutdown(shutdownCtx), "shutdown")
	})
	return eg.Wait()
}
