package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/util"
)

// Config configures the seed data generator.
type Config struct {
	// Now anchors expiration dates and observation times.
	Now        time.Time
	RandomSeed int64
	// NoExpiry is the number of products generated without an expiration
	// date, which scoring passes report as failed items.
	NoExpiry int
}

// DefaultConfig returns a default seed configuration anchored at now.
func DefaultConfig(now time.Time) Config {
	return Config{
		Now:        now.UTC(),
		RandomSeed: 2025,
	}
}

// Result summarizes what Generate wrote.
type Result struct {
	Products  int
	Snapshots int
}

// Generator generates seed data.
type Generator struct {
	db       *database.DB
	cfg      Config
	rng      *rand.Rand
	products *repository.ProductRepository
	factors  *repository.FactorRepository
}

// NewGenerator creates a new seed data generator.
func NewGenerator(db *database.DB, cfg Config) *Generator {
	return &Generator{
		db:       db,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.RandomSeed)),
		products: repository.NewProductRepository(db),
		factors:  repository.NewFactorRepository(db),
	}
}

// Generate upserts the demo catalog and appends one factor snapshot per
// product. Running it twice leaves the catalog unchanged and adds a new
// snapshot version per product.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	slog.Info("starting seed data generation", "seed", g.cfg.RandomSeed)

	products, snapshots := g.build()

	err := g.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, p := range products {
			if err := g.products.Upsert(ctx, tx, p); err != nil {
				return fmt.Errorf("upserting product %s: %w", p.SKU, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generating products: %w", err)
	}

	for _, snap := range snapshots {
		if err := g.factors.Append(ctx, snap); err != nil {
			return nil, fmt.Errorf("generating factor snapshot for %s: %w", snap.ProductID, err)
		}
	}

	res := &Result{Products: len(products), Snapshots: len(snapshots)}
	slog.Info("seed data generation complete", "products", res.Products, "snapshots", res.Snapshots)
	return res, nil
}

// build derives products and snapshots from the random source without
// touching the database.
func (g *Generator) build() ([]*models.Product, []*models.FactorSnapshot) {
	var (
		products  []*models.Product
		snapshots []*models.FactorSnapshot
		n         int64
	)
	now := g.cfg.Now
	today := util.StartOfDay(now)

	for _, cat := range Categories {
		for i, name := range cat.Products {
			n++
			id := util.DeterministicID(g.cfg.RandomSeed*10_000 + n)

			days := cat.MinDays + g.rng.Intn(cat.MaxDays-cat.MinDays+1)
			expires := today.AddDate(0, 0, days).Add(23 * time.Hour)
			p := &models.Product{
				ID:             id,
				SKU:            fmt.Sprintf("%s-%04d", cat.Prefix, i+1),
				Name:           name,
				Category:       cat.Name,
				CurrentStock:   float64(5 + g.rng.Intn(200)),
				ExpirationDate: &expires,
				Storage:        cat.Storage,
				Active:         true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if int(n) <= g.cfg.NoExpiry {
				p.ExpirationDate = nil
			}
			products = append(products, p)

			snapshots = append(snapshots, &models.FactorSnapshot{
				ID:         util.DeterministicID(-(g.cfg.RandomSeed*10_000 + n)),
				ProductID:  id,
				Factors:    g.observe(cat),
				Source:     "seed",
				RecordedAt: now.Add(-time.Duration(g.rng.Intn(24*60)) * time.Minute),
			})
		}
	}
	return products, snapshots
}

func (g *Generator) observe(cat categorySpec) models.Factors {
	humMid := (cat.Storage.MinHumidityPct + cat.Storage.MaxHumidityPct) / 2
	humSpread := (cat.Storage.MaxHumidityPct - cat.Storage.MinHumidityPct) * 0.75

	return models.Factors{
		Temperature:       round1(cat.MinTemp + g.rng.Float64()*(cat.MaxTemp-cat.MinTemp)),
		Humidity:          round1(math.Max(0, math.Min(100, humMid+(g.rng.Float64()*2-1)*humSpread))),
		Seasonality:       round2(0.7 + g.rng.Float64()*0.7),
		StorageConditions: round2(0.3 + g.rng.Float64()*0.7),
		HistoricalWaste:   round2(g.rng.Float64() * 0.5),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
