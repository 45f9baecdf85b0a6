// Command coupon-import loads promo codes from CSV files (optionally gzip
// compressed) into the coupons table.
//
// A promo code that appears in more than one input file is a conflict and is
// not imported. Conflicts are found with one bloom filter per file so that
// large exports can be checked without holding every code in memory.
package main

import (
	"context"
	"flag"
	"io"
	"math/bits"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/moto-rental/internal/domain/coupon"
	"github.com/xenking/moto-rental/internal/storage/postgres"
)

const maxFiles = 64

type options struct {
	databaseURL   string
	workers       int
	bloomCapacity uint
	bloomFPR      float64
	dryRun        bool
}

// store is the write side of postgres.CouponRepository.
type store interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

type stats struct {
	imported  atomic.Int64
	rejected  atomic.Int64
	conflicts atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent upserts")
	flag.UintVar(&opts.bloomCapacity, "bloom-capacity", 1_000_000, "expected codes per file")
	flag.Float64Var(&opts.bloomFPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "validate files without writing to the database")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	files := flag.Args()
	if len(files) == 0 || len(files) > maxFiles {
		lg.Fatal("Pass between 1 and 64 coupon files", zap.Int("got", len(files)))
	}
	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts, files); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options, files []string) error {
	lg.Info("Building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, opts.bloomCapacity, opts.bloomFPR)
	if err != nil {
		return errors.Wrap(err, "build filters")
	}

	conflicts, err := findConflicts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	lg.Info("Conflicting codes", zap.Int("count", len(conflicts)))

	var dst store = discard{}
	if !opts.dryRun {
		pool, err := postgres.NewPool(ctx, opts.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		dst = postgres.NewCouponRepository(pool)
	}

	st, err := importFiles(ctx, lg, dst, files, conflicts, opts.workers)
	if err != nil {
		return errors.Wrap(err, "import")
	}
	lg.Info("Coupon import completed",
		zap.Int64("imported", st.imported.Load()),
		zap.Int64("rejected", st.rejected.Load()),
		zap.Int64("conflicts", st.conflicts.Load()),
		zap.Bool("dry_run", opts.dryRun),
	)
	return nil
}

type discard struct{}

func (discard) Upsert(context.Context, *coupon.Coupon) error { return nil }

// open returns a reader over path, decompressing .gz files.
func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "gzip %s", path)
	}
	return gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// eachRow runs readRows over a file, ignoring malformed rows.
func eachRow(path string, fn func(line int, c *coupon.Coupon) error, bad func(*rowError)) error {
	r, err := open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	if bad == nil {
		bad = func(*rowError) {}
	}
	return errors.Wrap(readRows(r, fn, bad), path)
}

func buildFilters(ctx context.Context, files []string, capacity uint, fpr float64) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(capacity, fpr)
			err := eachRow(path, func(_ int, c *coupon.Coupon) error {
				f.AddString(c.PromoCode)
				return ctx.Err()
			}, nil)
			if err != nil {
				return err
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts returns the codes that occur in at least two files. Each file
// keeps only the codes some other filter reports, then the per-file bitmasks
// are merged so bloom false positives drop out.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	masks := make([]map[string]uint64, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			err := eachRow(path, func(_ int, c *coupon.Coupon) error {
				for j, f := range filters {
					if j != i && f.TestString(c.PromoCode) {
						seen[c.PromoCode] |= bit
						break
					}
				}
				return ctx.Err()
			}, nil)
			masks[i] = seen
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	out := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			out[code] = struct{}{}
		}
	}
	return out, nil
}

func importFiles(
	ctx context.Context,
	lg *zap.Logger,
	dst store,
	files []string,
	conflicts map[string]struct{},
	workers int,
) (*stats, error) {
	st := &stats{}
	queue := make(chan *coupon.Coupon, workers)

	g, ctx := errgroup.WithContext(ctx)
	for range max(workers, 1) {
		g.Go(func() error {
			for c := range queue {
				if err := dst.Upsert(ctx, c); err != nil {
					return errors.Wrapf(err, "upsert %s", c.PromoCode)
				}
				st.imported.Add(1)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(queue)
		for _, path := range files {
			err := eachRow(path, func(line int, c *coupon.Coupon) error {
				if _, ok := conflicts[c.PromoCode]; ok {
					st.conflicts.Add(1)
					lg.Warn("Skipping code present in several files",
						zap.String("file", path), zap.Int("line", line), zap.String("code", c.PromoCode))
					return nil
				}
				select {
				case queue <- c:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}, func(e *rowError) {
				st.rejected.Add(1)
				lg.Warn("Rejected row", zap.String("file", path), zap.Int("line", e.Line), zap.Error(e.Err))
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}
