package factors

import (
	"github.com/stocksense/stocksense/internal/models"
)

// UpdateInput contains a full replacement of an item's storage factors.
// Every factor is required; nil means the caller omitted it.
type UpdateInput struct {
	Temperature       *float64
	Humidity          *float64
	Seasonality       *float64
	StorageConditions *float64
	HistoricalWaste   *float64
	Source            string
}

// Factors converts the input, naming the first missing field.
func (in UpdateInput) Factors() (models.Factors, error) {
	fields := []struct {
		name  string
		value *float64
	}{
		{"temperature", in.Temperature},
		{"humidity", in.Humidity},
		{"seasonality", in.Seasonality},
		{"storageConditions", in.StorageConditions},
		{"historicalWaste", in.HistoricalWaste},
	}
	for _, f := range fields {
		if f.value == nil {
			return models.Factors{}, models.NewValidationError(f.name, "is required")
		}
	}

	return models.Factors{
		Temperature:       *in.Temperature,
		Humidity:          *in.Humidity,
		Seasonality:       *in.Seasonality,
		StorageConditions: *in.StorageConditions,
		HistoricalWaste:   *in.HistoricalWaste,
	}, nil
}

// UpdateResult is the stored snapshot plus the fields that lie outside
// their documented range and will be clamped when scored.
type UpdateResult struct {
	Snapshot      *models.FactorSnapshot `json:"snapshot"`
	ClampedFields []string               `json:"clampedFields"`
}
