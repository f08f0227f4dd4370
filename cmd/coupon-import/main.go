// Command coupon-import bulk-loads promo codes from gzipped text files, one
// code per line. A code must appear in at least two of the input files to be
// considered valid; cross-file membership is tested with per-file bloom
// filters so the files never need to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

func main() {
	var (
		databaseURL string
		discount    string
		validDays   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discount, "discount", "10", "percentage discount granted by imported codes")
	flag.IntVar(&validDays, "valid-days", 365, "validity period of imported codes in days")
	flag.Parse()

	files := flag.Args()
	if len(files) < 2 {
		slog.Error("at least two code files are required")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, discount, validDays); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL, discount string, validDays int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	value, err := decimal.NewFromString(discount)
	if err != nil {
		return errors.Wrap(err, "parse discount")
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes present in two or more files")

	codes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := repository.NewCouponRepository(pool)
	return writeCoupons(ctx, repo, codes, value, validDays)
}

// buildFilters constructs one bloom filter per file, concurrently.
func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			err := streamCodes(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-streams each file, testing codes against the OTHER files'
// filters, and keeps codes seen in two or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)

			err := streamCodes(ctx, path, func(code string) {
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= fileBit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(candidates)))
			perFile[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perFile {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

// streamCodes reads a gzipped file line by line, passing codes of plausible
// length to fn.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := scanner.Text()
		if len(code) >= minCodeLen && len(code) <= maxCodeLen {
			fn(code)
		}
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

// writeCoupons inserts imported codes as single-use percentage coupons.
// Codes that already exist are skipped.
func writeCoupons(ctx context.Context, repo *repository.CouponRepository, codes []string, value decimal.Decimal, validDays int) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	now := time.Now()
	one := 1
	written := 0

	for i, code := range codes {
		err := repo.Create(ctx, &coupon.Coupon{
			Code:           code,
			Description:    "Imported promo code",
			DiscountType:   coupon.DiscountPercentage,
			DiscountValue:  value,
			MaxUses:        &one,
			MaxUsesPerUser: 1,
			StartDate:      now,
			EndDate:        now.AddDate(0, 0, validDays),
			Active:         true,
		})
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			// Re-runs are expected; existing codes keep their state.
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", code)
		default:
			written++
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("processed", i+1), slog.Int("written", written))
		}
	}

	return nil
}
