package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/app"
	"github.com/noah-isme/backend-food/internal/config"
	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/shipping"
	"github.com/noah-isme/backend-food/internal/store"
)

type seedOption struct {
	name      string
	kind      string
	surcharge int64
}

type seedProduct struct {
	name    string
	price   int64
	sale    int64
	options []seedOption
}

var products = []seedProduct{
	{name: "Com tam suon bi cha", price: 100_000},
	{name: "Bun bo Hue", price: 50_000, options: []seedOption{
		{name: "Extra beef", kind: "TOPPING", surcharge: 10_000},
		{name: "Large bowl", kind: "SIZE", surcharge: 15_000},
	}},
	{name: "Banh mi thit", price: 35_000, sale: 29_000, options: []seedOption{
		{name: "Fried egg", kind: "TOPPING", surcharge: 5_000},
	}},
	{name: "Tra dao cam sa", price: 45_000, options: []seedOption{
		{name: "Less ice", kind: "ICE", surcharge: 0},
		{name: "Size L", kind: "SIZE", surcharge: 8_000},
	}},
}

func main() {
	var (
		skipProducts = flag.Bool("skip-products", false, "do not insert demo products")
		tokenTTL     = flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed demo tokens")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, rdb, err := app.Connect(connectCtx, cfg, "food-seeder", false, zerolog.Nop())
	cancel()
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	deps, err := app.New(cfg, zerolog.Nop(), pool, rdb, nil)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}
	defer deps.Close()

	if !*skipProducts {
		ids, err := seedCatalog(ctx, deps.Queries)
		if err != nil {
			log.Fatalf("seed catalog: %v", err)
		}
		if err := deps.Catalog.Invalidate(ctx, ids...); err != nil {
			log.Printf("invalidate catalog cache: %v", err)
		}
	}
	if err := seedTiers(ctx, deps.Tiers); err != nil {
		log.Fatalf("seed shipping tiers: %v", err)
	}
	if err := seedCoupons(ctx, deps.Coupons); err != nil {
		log.Fatalf("seed coupons: %v", err)
	}

	customer, err := deps.Verifier.Issue("7d1f3c2e-8a4b-4f6e-9c0d-1a2b3c4d5e6f", nil, *tokenTTL)
	if err != nil {
		log.Fatalf("issue customer token: %v", err)
	}
	admin, err := deps.Verifier.Issue("0b4e7a0e-5f2d-4c7e-9b8e-6d3c2a1f0e9d", []string{"admin"}, *tokenTTL)
	if err != nil {
		log.Fatalf("issue admin token: %v", err)
	}
	fmt.Printf("customer token: %s\nadmin token:    %s\n", customer, admin)
	log.Println("seeding completed")
}

func seedCatalog(ctx context.Context, q *store.Queries) ([]string, error) {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		params := store.CreateProductParams{Name: p.name, Price: money.New(p.price)}
		if p.sale > 0 {
			now := time.Now().UTC()
			params.SalePrice = money.NullMoney{Money: money.New(p.sale), Valid: true}
			params.SaleStartsAt.Time, params.SaleStartsAt.Valid = now.AddDate(0, 0, -1), true
			params.SaleEndsAt.Time, params.SaleEndsAt.Valid = now.AddDate(0, 1, 0), true
		}
		row, err := q.CreateProduct(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", p.name, err)
		}
		for _, o := range p.options {
			if _, err := q.CreateProductOption(ctx, store.CreateProductOptionParams{
				ProductID:  row.ID,
				Name:       o.name,
				OptionType: o.kind,
				Surcharge:  money.New(o.surcharge),
			}); err != nil {
				return nil, fmt.Errorf("option %q: %w", o.name, err)
			}
		}
		id := store.UUIDString(row.ID)
		ids = append(ids, id)
		log.Printf("product %s %s", id, p.name)
	}
	return ids, nil
}

func seedTiers(ctx context.Context, src *shipping.StoreSource) error {
	upper := money.New(200_000)
	free := money.New(200_000)
	tiers := []shipping.Tier{
		{Name: "Standard", MinOrderAmount: money.Zero(), MaxOrderAmount: &upper, FeeAmount: money.New(15_000), IsDefault: true, SortOrder: 1},
		{Name: "Free over 200k", MinOrderAmount: money.New(200_000), FeeAmount: money.Zero(), FreeShippingThreshold: &free, SortOrder: 2},
	}
	saved, err := src.Replace(ctx, tiers)
	if err != nil {
		return err
	}
	log.Printf("shipping tiers: %d", len(saved))
	return nil
}

func seedCoupons(ctx context.Context, svc *coupon.Service) error {
	now := time.Now().UTC()
	maxTen := money.New(10_000)
	limit := int32(100)
	defs := []coupon.CreateParams{
		{Code: "TEN", Kind: coupon.KindPercentage, Value: money.New(10), MinOrderAmount: money.Zero(), MaxDiscountAmount: &maxTen, StartDate: now.AddDate(0, 0, -1), EndDate: now.AddDate(0, 3, 0)},
		{Code: "SAVE20K", Kind: coupon.KindFixed, Value: money.New(20_000), MinOrderAmount: money.New(100_000), UsageLimit: &limit, StartDate: now.AddDate(0, 0, -1), EndDate: now.AddDate(0, 1, 0)},
	}
	for _, d := range defs {
		if _, err := svc.Create(ctx, d); err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				log.Printf("coupon %s exists", d.Code)
				continue
			}
			return fmt.Errorf("coupon %s: %w", d.Code, err)
		}
		log.Printf("coupon %s", d.Code)
	}
	return nil
}
