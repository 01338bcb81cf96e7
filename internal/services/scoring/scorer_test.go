package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

var asOf = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func newScorer() *Scorer {
	return NewScorer(config.Default().Scoring)
}

func input(days int, mutate func(*models.Factors)) Input {
	f := models.NeutralFactors()
	if mutate != nil {
		mutate(&f)
	}
	return Input{
		Storage:         models.DefaultStorageProfile(),
		Factors:         f,
		DaysUntilExpiry: days,
		AsOf:            asOf,
	}
}

func TestScore_Scenarios(t *testing.T) {
	s := newScorer()
	c := NewClassifier(config.Default().Classifier)

	tests := []struct {
		name      string
		days      int
		waste     float64
		storage   float64
		wantScore float64
		wantTier  models.RiskTier
	}{
		{"near expiry poor storage", 1, 0.9, 0.1, 0.8175, models.TierCritical},
		{"long shelf life good storage", 30, 0.05, 0.95, 0.0725, models.TierLow},
		{"expired", -2, 0, 1, 1, models.TierCritical},
		{"expires today", 0, 0, 1, 1, models.TierCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(input(tt.days, func(f *models.Factors) {
				f.HistoricalWaste = tt.waste
				f.StorageConditions = tt.storage
			}))
			if math.Abs(res.RiskScore-tt.wantScore) > 1e-9 {
				t.Errorf("RiskScore = %v, want %v", res.RiskScore, tt.wantScore)
			}
			if tier := c.Tier(res.RiskScore); tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tier, tt.wantTier)
			}
		})
	}
}

func TestScore_BoundedAndMonotonic(t *testing.T) {
	s := newScorer()
	wastes := []float64{0, 0.3, 1}
	storages := []float64{0, 0.5, 1}
	seasons := []float64{0, 1, 2}
	temps := []float64{-20, 4, 40}

	for _, w := range wastes {
		for _, st := range storages {
			for _, se := range seasons {
				for _, tc := range temps {
					prev := -1.0
					for d := 60; d >= -5; d-- {
						res := s.Score(input(d, func(f *models.Factors) {
							f.HistoricalWaste = w
							f.StorageConditions = st
							f.Seasonality = se
							f.Temperature = tc
						}))
						if res.RiskScore < 0 || res.RiskScore > 1 {
							t.Fatalf("score %v out of range (d=%d w=%v st=%v se=%v t=%v)", res.RiskScore, d, w, st, se, tc)
						}
						if res.RiskScore < prev {
							t.Fatalf("score decreased from %v to %v as d fell to %d", prev, res.RiskScore, d)
						}
						prev = res.RiskScore
					}
				}
			}
		}
	}
}

func TestScore_Idempotent(t *testing.T) {
	s := newScorer()
	in := input(4, func(f *models.Factors) {
		f.HistoricalWaste = 0.37
		f.StorageConditions = 0.61
		f.Seasonality = 1.3
		f.Temperature = 7.5
		f.Humidity = 95
	})

	a := s.Score(in)
	b := s.Score(in)
	if math.Float64bits(a.RiskScore) != math.Float64bits(b.RiskScore) {
		t.Errorf("scores differ: %v vs %v", a.RiskScore, b.RiskScore)
	}
	if a.PredictedSpoilageDate != b.PredictedSpoilageDate || a.Components != b.Components {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	s := newScorer()
	res := s.Score(input(5, func(f *models.Factors) {
		f.Humidity = 140
		f.StorageConditions = -0.5
		f.HistoricalWaste = math.NaN()
	}))

	want := []string{"humidity", "storageConditions", "historicalWaste"}
	if len(res.Clamped) != len(want) {
		t.Fatalf("Clamped = %v, want %v", res.Clamped, want)
	}
	for i := range want {
		if res.Clamped[i] != want[i] {
			t.Errorf("Clamped[%d] = %s, want %s", i, res.Clamped[i], want[i])
		}
	}
	if res.Factors.Humidity != 100 || res.Factors.StorageConditions != 0 || res.Factors.HistoricalWaste != 0 {
		t.Errorf("clamped factors = %+v", res.Factors)
	}
	if math.IsNaN(res.RiskScore) || res.RiskScore < 0 || res.RiskScore > 1 {
		t.Errorf("RiskScore = %v", res.RiskScore)
	}
}

func TestScore_PredictedDate(t *testing.T) {
	s := newScorer()
	today := models.DateOf(asOf)

	tests := []struct {
		name    string
		days    int
		storage float64
		temp    float64
		want    models.Date
	}{
		{"perfect storage keeps shelf life", 10, 1, 4, today.AddDays(10)},
		{"poor storage halves shelf life", 10, 0, 4, today.AddDays(5)},
		{"heat shortens further", 10, 0, 14, today.AddDays(2)},
		{"expired keeps expiry date", -3, 1, 4, today.AddDays(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(input(tt.days, func(f *models.Factors) {
				f.StorageConditions = tt.storage
				f.Temperature = tt.temp
			}))
			if res.PredictedSpoilageDate != tt.want {
				t.Errorf("PredictedSpoilageDate = %s, want %s", res.PredictedSpoilageDate, tt.want)
			}
		})
	}

	worse := s.Score(input(20, func(f *models.Factors) { f.StorageConditions = 0.2 }))
	better := s.Score(input(20, func(f *models.Factors) { f.StorageConditions = 0.8 }))
	if !worse.PredictedSpoilageDate.Before(better.PredictedSpoilageDate.Time) {
		t.Errorf("worse storage %s should spoil before better storage %s",
			worse.PredictedSpoilageDate, better.PredictedSpoilageDate)
	}
}

func TestEnvironmentalStress(t *testing.T) {
	p := models.DefaultStorageProfile()
	tests := []struct {
		name     string
		temp     float64
		humidity float64
		want     float64
	}{
		{"inside profile", 4, 60, 0},
		{"five degrees warm", 9, 60, 0.5},
		{"very hot saturates", 30, 60, 1},
		{"dry air", 4, 5, 0.5},
		{"humid air", 4, 100, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := environmentalStress(p, models.Factors{Temperature: tt.temp, Humidity: tt.humidity})
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("environmentalStress() = %v, want %v", got, tt.want)
			}
		})
	}
}
