package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/auth"
	"storefront-api/internal/domain/catalog"
	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STOREFRONT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STOREFRONT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		product := &catalog.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Status:   catalog.StatusActive,
			Stock:    p.Stock,
			Category: p.Category,
			ImageURL: p.Image,
		}
		// Update first so re-seeding is idempotent; fall back to insert.
		err := repo.Update(ctx, product)
		if errors.Is(err, catalog.ErrNotFound) {
			err = repo.Create(ctx, product)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding demo coupons")

	now := time.Now()
	unlimited := (*int)(nil)
	hundred := 100

	coupons := []*coupon.Coupon{
		{
			Code:              "WELCOME10",
			Description:       "Welcome: 10% off orders over $50",
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(10),
			MinPurchaseAmount: decimal.NewFromInt(50),
			MaxUses:           unlimited,
			MaxUsesPerUser:    1,
			StartDate:         now.AddDate(0, 0, -1),
			EndDate:           now.AddDate(1, 0, 0),
			Active:            true,
		},
		{
			Code:           "SAVE20",
			Description:    "20% off entire order",
			DiscountType:   coupon.DiscountPercentage,
			DiscountValue:  decimal.NewFromInt(20),
			MaxUses:        &hundred,
			MaxUsesPerUser: 1,
			StartDate:      now.AddDate(0, 0, -1),
			EndDate:        now.AddDate(0, 3, 0),
			Active:         true,
		},
		{
			Code:           "FLAT15",
			Description:    "$15 off your order",
			DiscountType:   coupon.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(15),
			MaxUses:        unlimited,
			MaxUsesPerUser: 3,
			StartDate:      now.AddDate(0, 0, -1),
			EndDate:        now.AddDate(0, 6, 0),
			Active:         true,
		},
	}

	for _, c := range coupons {
		err := repo.Update(ctx, c)
		if errors.Is(err, coupon.ErrNotFound) {
			err = repo.Create(ctx, c)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT (id) DO UPDATE SET key_hash = $2, name = $3, scopes = $4, active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	scopes := []string{auth.ScopePlaceOrder, auth.ScopeAdmin}
	if _, err := pool.Exec(ctx, upsertAPIKeySQL, "default", keyHash, "Default admin key", scopes); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
