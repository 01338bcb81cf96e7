package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/stocksense/stocksense/internal/models"
)

const (
	baseConfidence     = 0.9
	staleConfidenceHit = 0.25
	clampConfidenceHit = 0.1
	minConfidence      = 0.1

	// A term contributes a risk factor once its weighted share reaches this.
	factorReportThreshold = 0.05
)

// PredictionInput describes one scored item for the prediction builder.
type PredictionInput struct {
	Product *models.Product
	Result  Result
	Tier    models.RiskTier
	Action  string
	// FactorsRecordedAt is when the factors were observed. Zero counts as
	// stale.
	FactorsRecordedAt time.Time
	DaysUntilExpiry   int
	AsOf              time.Time
}

// Predict derives the forward-looking prediction for a scored item.
// Confidence starts high and drops for stale or clamped factors.
func (s *Scorer) Predict(in PredictionInput) *models.SpoilagePrediction {
	confidence := baseConfidence
	if s.stale(in.FactorsRecordedAt, in.AsOf) {
		confidence -= staleConfidenceHit
	}
	confidence -= clampConfidenceHit * float64(len(in.Result.Clamped))
	confidence = round4(math.Max(confidence, minConfidence))

	return &models.SpoilagePrediction{
		ProductID:             in.Product.ID,
		PredictedSpoilageDate: in.Result.PredictedSpoilageDate,
		Confidence:            confidence,
		RiskFactors:           s.riskFactors(in),
		Recommendations:       recommendations(in),
		GeneratedAt:           in.AsOf,
	}
}

func (s *Scorer) stale(recordedAt, asOf time.Time) bool {
	if recordedAt.IsZero() {
		return true
	}
	return s.cfg.StaleAfter > 0 && asOf.Sub(recordedAt) > s.cfg.StaleAfter
}

// riskFactors lists the human-readable causes behind the score, most
// significant first.
func (s *Scorer) riskFactors(in PredictionInput) []string {
	c := in.Result.Components
	f := in.Result.Factors
	var out []string

	switch {
	case in.DaysUntilExpiry < 0:
		out = append(out, fmt.Sprintf("expired %d days ago", -in.DaysUntilExpiry))
	case in.DaysUntilExpiry == 0:
		out = append(out, "expires today")
	case s.cfg.UrgencyWeight*c.Urgency >= factorReportThreshold:
		out = append(out, fmt.Sprintf("expires in %d days", in.DaysUntilExpiry))
	}
	if s.cfg.WasteWeight*c.Waste >= factorReportThreshold {
		out = append(out, fmt.Sprintf("historical waste rate %.0f%%", f.HistoricalWaste*100))
	}
	if s.cfg.StorageWeight*c.PoorStorage >= factorReportThreshold {
		out = append(out, fmt.Sprintf("storage quality %.2f", f.StorageConditions))
	}
	if f.Temperature > in.Product.Storage.MaxTempC {
		out = append(out, fmt.Sprintf("temperature %.1f°C above %.1f°C limit", f.Temperature, in.Product.Storage.MaxTempC))
	}
	if f.Humidity < in.Product.Storage.MinHumidityPct || f.Humidity > in.Product.Storage.MaxHumidityPct {
		out = append(out, fmt.Sprintf("humidity %.0f%% outside %.0f-%.0f%%", f.Humidity,
			in.Product.Storage.MinHumidityPct, in.Product.Storage.MaxHumidityPct))
	}
	if s.cfg.SeasonalityWeight*c.Seasonality >= factorReportThreshold {
		out = append(out, fmt.Sprintf("seasonal demand factor %.2f", f.Seasonality))
	}
	if s.stale(in.FactorsRecordedAt, in.AsOf) {
		if in.FactorsRecordedAt.IsZero() {
			out = append(out, "no storage observations on record")
		} else {
			out = append(out, "storage observations are stale")
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func recommendations(in PredictionInput) []string {
	out := []string{in.Action}
	f := in.Result.Factors
	name := in.Product.Name

	if f.Temperature > in.Product.Storage.MaxTempC {
		out = append(out, fmt.Sprintf("Move %s to storage at or below %.1f°C", name, in.Product.Storage.MaxTempC))
	}
	if f.Humidity < in.Product.Storage.MinHumidityPct || f.Humidity > in.Product.Storage.MaxHumidityPct {
		out = append(out, fmt.Sprintf("Adjust humidity for %s", name))
	}
	if f.StorageConditions < 0.5 {
		out = append(out, fmt.Sprintf("Inspect storage area holding %s", name))
	}
	if f.HistoricalWaste >= 0.5 && in.Tier.AtLeast(models.TierMedium) {
		out = append(out, fmt.Sprintf("Reduce next order quantity of %s", name))
	}
	return out
}
