package models

import (
	"math"
	"time"
)

// Documented factor ranges. Values outside these are stored as observed
// and clamped at scoring time.
const (
	HumidityMin        = 0.0
	HumidityMax        = 100.0
	SeasonalityMin     = 0.0
	SeasonalityMax     = 2.0
	SeasonalityNeutral = 1.0
	StorageQualityMin  = 0.0
	StorageQualityMax  = 1.0
	HistoricalWasteMin = 0.0
	HistoricalWasteMax = 1.0
	AbsoluteZeroC      = -273.15
	MaxPlausibleTempC  = 200.0
	MaxSourceLength    = 120
)

// Factors are the physical and historical inputs used to score one item.
type Factors struct {
	Temperature       float64 `json:"temperature"`
	Humidity          float64 `json:"humidity"`
	Seasonality       float64 `json:"seasonality"`
	StorageConditions float64 `json:"storageConditions"`
	HistoricalWaste   float64 `json:"historicalWaste"`
}

// NeutralFactors returns factors that contribute nothing beyond urgency.
func NeutralFactors() Factors {
	return Factors{
		Temperature:       DefaultMaxTempC,
		Humidity:          (DefaultMinHumidityPct + DefaultMaxHumidityPct) / 2,
		Seasonality:       SeasonalityNeutral,
		StorageConditions: StorageQualityMax,
		HistoricalWaste:   HistoricalWasteMin,
	}
}

// Validate rejects malformed input. Finite values outside the documented
// ranges are accepted; OutOfRange lists them.
func (f Factors) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"temperature", f.Temperature},
		{"humidity", f.Humidity},
		{"seasonality", f.Seasonality},
		{"storageConditions", f.StorageConditions},
		{"historicalWaste", f.HistoricalWaste},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return NewValidationError(c.field, "must be a finite number")
		}
	}
	if f.Temperature < AbsoluteZeroC || f.Temperature > MaxPlausibleTempC {
		return NewValidationError("temperature", "%.2f is not a physically plausible storage temperature", f.Temperature)
	}
	return nil
}

// OutOfRange returns the names of fields that lie outside their
// documented range, in a fixed order.
func (f Factors) OutOfRange() []string {
	var fields []string
	if f.Humidity < HumidityMin || f.Humidity > HumidityMax {
		fields = append(fields, "humidity")
	}
	if f.Seasonality < SeasonalityMin || f.Seasonality > SeasonalityMax {
		fields = append(fields, "seasonality")
	}
	if f.StorageConditions < StorageQualityMin || f.StorageConditions > StorageQualityMax {
		fields = append(fields, "storageConditions")
	}
	if f.HistoricalWaste < HistoricalWasteMin || f.HistoricalWaste > HistoricalWasteMax {
		fields = append(fields, "historicalWaste")
	}
	return fields
}

// FactorSnapshot is one immutable observation in a product's factor log.
// Newer versions supersede older ones; rows are never updated. Factors is
// embedded so the JSON shape stays flat.
type FactorSnapshot struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Version   int    `json:"version"`
	Factors
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}
