// Package scoring turns an item's factors and remaining shelf life into a
// risk score, a tier with a recommended action, and a prediction. Nothing
// here touches storage or the clock; callers pass asOf explicitly.
package scoring

import (
	"math"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

const (
	// tempStressSpanC is the excess over the profile maximum that counts as
	// full environmental stress.
	tempStressSpanC = 10.0
	// humidityStressSpan is the distance outside the humidity band that
	// counts as full environmental stress.
	humidityStressSpan = 50.0
	// minShelfLifeFactor keeps a predicted shelf life from collapsing to
	// zero for items that have not expired yet.
	minShelfLifeFactor = 0.1
)

// Input is everything the scorer needs for one item.
type Input struct {
	Storage         models.StorageProfile
	Factors         models.Factors
	DaysUntilExpiry int
	AsOf            time.Time
}

// Components are the unweighted terms that make up a score, each in its
// own natural range.
type Components struct {
	Urgency     float64 `json:"urgency"`
	Waste       float64 `json:"waste"`
	PoorStorage float64 `json:"poorStorage"`
	Seasonality float64 `json:"seasonality"`
	Environment float64 `json:"environment"`
}

// Result is the scorer output.
type Result struct {
	RiskScore             float64
	PredictedSpoilageDate models.Date
	// Factors are the values actually used, after clamping.
	Factors    models.Factors
	Clamped    []string
	Components Components
}

// Scorer computes risk scores from a fixed set of weights.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer using cfg's weights and penalties.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the risk score and predicted spoilage date. It never
// fails: out-of-range factors are clamped and listed in Result.Clamped.
func (s *Scorer) Score(in Input) Result {
	f, clamped := ClampFactors(in.Factors)

	c := Components{
		Urgency:     s.urgency(in.DaysUntilExpiry),
		Waste:       f.HistoricalWaste,
		PoorStorage: 1 - f.StorageConditions,
		Seasonality: f.Seasonality - models.SeasonalityNeutral,
		Environment: environmentalStress(in.Storage, f),
	}

	var score float64
	if in.DaysUntilExpiry <= 0 {
		score = 1
	} else {
		score = s.cfg.UrgencyWeight*c.Urgency +
			s.cfg.WasteWeight*c.Waste +
			s.cfg.StorageWeight*c.PoorStorage +
			s.cfg.SeasonalityWeight*c.Seasonality +
			s.cfg.EnvironmentWeight*c.Environment
		score = round4(clamp(score, 0, 1))
	}

	return Result{
		RiskScore:             score,
		PredictedSpoilageDate: s.predictDate(in, f, c.Environment),
		Factors:               f,
		Clamped:               clamped,
		Components:            c,
	}
}

// urgency is k/(k+d): 1 at expiry, 0.5 at d = k, approaching zero for
// long shelf lives.
func (s *Scorer) urgency(days int) float64 {
	if days <= 0 {
		return 1
	}
	k := s.cfg.UrgencyHalfLifeDays
	return k / (k + float64(days))
}

func (s *Scorer) predictDate(in Input, f models.Factors, env float64) models.Date {
	asOf := models.DateOf(in.AsOf)
	if in.DaysUntilExpiry <= 0 {
		return asOf.AddDays(in.DaysUntilExpiry)
	}

	factor := 1 - s.cfg.ShelfLifePenalty*(1-f.StorageConditions) - s.cfg.EnvironmentPenalty*env
	if factor < minShelfLifeFactor {
		factor = minShelfLifeFactor
	}
	days := int(math.Floor(float64(in.DaysUntilExpiry) * factor))
	return asOf.AddDays(days)
}

// environmentalStress measures how far temperature and humidity sit
// outside the product's storage profile, in [0, 1].
func environmentalStress(p models.StorageProfile, f models.Factors) float64 {
	tempExcess := math.Max(0, f.Temperature-p.MaxTempC)

	var humidityDev float64
	switch {
	case f.Humidity < p.MinHumidityPct:
		humidityDev = p.MinHumidityPct - f.Humidity
	case f.Humidity > p.MaxHumidityPct:
		humidityDev = f.Humidity - p.MaxHumidityPct
	}

	return clamp(math.Max(tempExcess/tempStressSpanC, humidityDev/humidityStressSpan), 0, 1)
}

// ClampFactors forces every factor into its documented range and returns
// the names of the fields that changed. Non-finite values become the
// field's neutral value.
func ClampFactors(f models.Factors) (models.Factors, []string) {
	neutral := models.NeutralFactors()
	var clamped []string

	fix := func(name string, v *float64, lo, hi, fallback float64) {
		switch {
		case math.IsNaN(*v) || math.IsInf(*v, 0):
			*v = fallback
		case *v < lo:
			*v = lo
		case *v > hi:
			*v = hi
		default:
			return
		}
		clamped = append(clamped, name)
	}

	fix("temperature", &f.Temperature, models.AbsoluteZeroC, models.MaxPlausibleTempC, neutral.Temperature)
	fix("humidity", &f.Humidity, models.HumidityMin, models.HumidityMax, neutral.Humidity)
	fix("seasonality", &f.Seasonality, models.SeasonalityMin, models.SeasonalityMax, neutral.Seasonality)
	fix("storageConditions", &f.StorageConditions, models.StorageQualityMin, models.StorageQualityMax, neutral.StorageConditions)
	fix("historicalWaste", &f.HistoricalWaste, models.HistoricalWasteMin, models.HistoricalWasteMax, neutral.HistoricalWaste)

	return f, clamped
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
