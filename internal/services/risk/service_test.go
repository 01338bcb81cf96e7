package risk

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/testutil"
	"github.com/stocksense/stocksense/internal/util"
)

type fixture struct {
	svc      *Service
	products *repository.ProductRepository
	factors  *repository.FactorRepository
	clock    *util.ManualClock
	logs     *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	logs := &bytes.Buffer{}
	clock := util.NewManualClock(testutil.RefTime)
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return &fixture{
		svc:      NewService(db.DB, config.Default(), clock, logger),
		products: repository.NewProductRepository(db.DB),
		factors:  repository.NewFactorRepository(db.DB),
		clock:    clock,
		logs:     logs,
	}
}

func (f *fixture) addProduct(t *testing.T, days int, factors *models.Factors) *models.Product {
	t.Helper()
	ctx := context.Background()

	p := testutil.FixtureExpiringProduct(days)
	if err := f.products.Upsert(ctx, nil, p); err != nil {
		t.Fatal(err)
	}
	if factors != nil {
		snap := testutil.FixtureSnapshot(p.ID, func(s *models.FactorSnapshot) { s.Factors = *factors })
		if err := f.factors.Append(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestScoreProduct_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		waste    float64
		storage  float64
		wantTier models.RiskTier
	}{
		{"critical", 1, 0.9, 0.1, models.TierCritical},
		{"low", 30, 0.05, 0.95, models.TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			factors := testutil.FixtureFactors(func(fs *models.Factors) {
				fs.HistoricalWaste = tt.waste
				fs.StorageConditions = tt.storage
			})
			p := f.addProduct(t, tt.days, &factors)

			risk, err := f.svc.ScoreProduct(context.Background(), p.ID, nil)
			if err != nil {
				t.Fatalf("ScoreProduct() = %v", err)
			}
			if risk.SpoilageRisk != tt.wantTier {
				t.Errorf("tier = %s (score %v), want %s", risk.SpoilageRisk, risk.RiskScore, tt.wantTier)
			}
			if risk.DaysUntilExpiry != tt.days || risk.FactorVersion != 1 {
				t.Errorf("risk = %+v", risk)
			}
			if !strings.Contains(risk.RecommendedAction, p.Name) {
				t.Errorf("RecommendedAction = %q", risk.RecommendedAction)
			}

			stored, err := f.svc.GetRisk(context.Background(), p.ID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.RiskScore != risk.RiskScore || stored.SpoilageRisk != risk.SpoilageRisk {
				t.Errorf("stored = %+v, want %+v", stored, risk)
			}
		})
	}
}

func TestScoreProduct_MissingFactors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.addProduct(t, 10, nil)

	if _, err := f.svc.ScoreProduct(ctx, p.ID, nil); !errors.Is(err, ErrMissingFactors) {
		t.Fatalf("ScoreProduct() = %v, want ErrMissingFactors", err)
	}
	if _, err := f.svc.GetRisk(ctx, p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRisk() = %v, want not found", err)
	}
	preds, err := f.svc.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 0 {
		t.Errorf("predictions = %+v, want none", preds)
	}
}

func TestScoreProduct_StaleFactorsLowerConfidence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	factors := testutil.FixtureFactors()
	p := f.addProduct(t, 10, &factors)

	if _, err := f.svc.ScoreProduct(ctx, p.ID, nil); err != nil {
		t.Fatal(err)
	}
	fresh, err := f.svc.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(4 * 24 * time.Hour)
	if _, err := f.svc.ScoreProduct(ctx, p.ID, nil); err != nil {
		t.Fatal(err)
	}
	stale, err := f.svc.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || len(stale) != 1 || stale[0].Confidence >= fresh[0].Confidence {
		t.Errorf("confidence fresh=%+v stale=%+v, want a drop", fresh, stale)
	}
}

func TestScoreProduct_LogsClamps(t *testing.T) {
	f := setup(t)
	factors := testutil.FixtureFactors(func(fs *models.Factors) { fs.Humidity = 150 })
	p := f.addProduct(t, 5, &factors)

	risk, err := f.svc.ScoreProduct(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(risk.ClampedFields) != 1 || risk.ClampedFields[0] != "humidity" {
		t.Errorf("ClampedFields = %v", risk.ClampedFields)
	}
	if !strings.Contains(f.logs.String(), "factors clamped for scoring") {
		t.Errorf("expected clamp warning in logs, got:\n%s", f.logs.String())
	}
}

func TestScoreProduct_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.svc.ScoreProduct(ctx, "missing", nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ScoreProduct(missing) = %v", err)
	}

	p := testutil.FixtureProduct(func(p *models.Product) { p.ExpirationDate = nil })
	if err := f.products.Upsert(ctx, nil, p); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ScoreProduct(ctx, p.ID, nil); !errors.Is(err, ErrMissingExpiry) {
		t.Errorf("ScoreProduct(no expiry) = %v", err)
	}
}

func TestHistoryAndQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	factors := testutil.FixtureFactors(func(fs *models.Factors) { fs.StorageConditions = 0.5 })
	p := f.addProduct(t, 6, &factors)

	jobID := "job-1"
	for i := 0; i < 3; i++ {
		if _, err := f.svc.ScoreProduct(ctx, p.ID, &jobID); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(24 * time.Hour)
	}

	hist, err := f.svc.History(ctx, p.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("History() returned %d points", len(hist))
	}
	if hist[0].RiskScore <= hist[2].RiskScore {
		t.Errorf("expected rising risk toward expiry, got newest %v oldest %v", hist[0].RiskScore, hist[2].RiskScore)
	}
	if hist[0].JobID == nil || *hist[0].JobID != jobID {
		t.Errorf("JobID = %v", hist[0].JobID)
	}

	if _, err := f.svc.History(ctx, "missing", 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("History(missing) = %v", err)
	}

	risks, err := f.svc.ListRisks(ctx, models.RiskFilter{Category: "produce"})
	if err != nil {
		t.Fatal(err)
	}
	if len(risks) != 0 {
		t.Errorf("ListRisks(produce) = %+v", risks)
	}

	counts, err := f.svc.TierCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 1 {
		t.Errorf("TierCounts() = %v", counts)
	}
}
