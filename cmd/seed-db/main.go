package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/moto-rental/internal/domain/auth"
	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/domain/motorcycle"
	"github.com/xenking/moto-rental/internal/handler"
	"github.com/xenking/moto-rental/internal/storage/postgres"
)

type options struct {
	databaseURL string
	fleetFile   string
	apiKey      string
	adminKey    string
	pepper      string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.fleetFile, "fleet-file", "db/seed/motorcycles.json", "path to motorcycles JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "customer API key to seed (or MOTO_SEED_API_KEY env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "admin API key to seed (or MOTO_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or MOTO_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = firstSet(opts.databaseURL, os.Getenv("DATABASE_URL"))
	opts.apiKey = firstSet(opts.apiKey, os.Getenv("MOTO_SEED_API_KEY"))
	opts.adminKey = firstSet(opts.adminKey, os.Getenv("MOTO_SEED_ADMIN_KEY"))
	opts.pepper = firstSet(opts.pepper, os.Getenv("MOTO_API_KEY_PEPPER"))

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or MOTO_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	fleet, err := readFleet(opts.fleetFile)
	if err != nil {
		return errors.Wrap(err, "read fleet")
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	motorcycles := postgres.NewMotorcycleRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range fleet {
		m := &fleet[i]
		g.Go(func() error {
			if err := motorcycles.Upsert(ctx, m); err != nil {
				return errors.Wrapf(err, "upsert motorcycle %s", m.ID)
			}
			lg.Info("Upserted motorcycle", zap.String("id", m.ID), zap.String("name", m.Name))
			return nil
		})
	}
	for _, c := range defaultCoupons() {
		g.Go(func() error {
			if err := coupons.Upsert(ctx, c); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", c.PromoCode)
			}
			lg.Info("Upserted coupon", zap.String("code", c.PromoCode))
			return nil
		})
	}
	for _, k := range apiKeys(opts) {
		g.Go(func() error {
			if err := apikeys.Upsert(ctx, k); err != nil {
				return errors.Wrapf(err, "upsert api key %s", k.ID)
			}
			lg.Info("Upserted API key", zap.String("id", k.ID), zap.Strings("scopes", k.Scopes))
			return nil
		})
	}
	return g.Wait()
}

func readFleet(path string) ([]motorcycle.Motorcycle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fleet []motorcycle.Motorcycle
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var m motorcycle.Motorcycle
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				m.ID, err = d.Str()
			case "name":
				m.Name, err = d.Str()
			case "brand":
				m.Brand, err = d.Str()
			case "engineCc":
				m.EngineCC, err = d.Int()
			case "rentPerDay":
				m.RentPerDay, err = decodeAmount(d)
			case "securityDeposit":
				m.SecurityDeposit, err = decodeAmount(d)
			case "available":
				m.Available, err = d.Bool()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		}); err != nil {
			return err
		}
		fleet = append(fleet, m)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode fleet")
	}
	return fleet, nil
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}

func defaultCoupons() []*coupon.Coupon {
	return []*coupon.Coupon{
		{
			PromoCode:        "WELCOME10",
			Type:             coupon.TypePercentage,
			DiscountValue:    decimal.NewFromInt(10),
			MinimumCartValue: decimal.NewFromInt(1000),
			IsActive:         true,
		},
		{
			PromoCode:        "FLAT500",
			Type:             coupon.TypeFlat,
			DiscountValue:    decimal.NewFromInt(500),
			MinimumCartValue: decimal.NewFromInt(3000),
			IsActive:         true,
		},
		{
			PromoCode:        "WEEKEND20",
			Type:             coupon.TypePercentage,
			DiscountValue:    decimal.NewFromInt(20),
			MinimumCartValue: decimal.NewFromInt(5000),
			IsActive:         false,
		},
	}
}

func apiKeys(opts options) []*auth.APIKeyInfo {
	pepper := []byte(opts.pepper)
	keys := []*auth.APIKeyInfo{{
		ID:         "default",
		KeyHash:    handler.HashAPIKey(opts.apiKey, pepper),
		Name:       "Default customer key",
		CustomerID: "customer-1",
	}}
	if opts.adminKey != "" {
		keys = append(keys, &auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: handler.HashAPIKey(opts.adminKey, pepper),
			Name:    "Back office",
			Scopes:  []string{auth.ScopeAdmin},
		})
	}
	return keys
}
