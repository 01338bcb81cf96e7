package models

import (
	"fmt"
	"strings"
	"time"
)

// RiskTier is the discretized output of the classifier.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// AllTiers lists tiers from least to most severe.
var AllTiers = []RiskTier{TierLow, TierMedium, TierHigh, TierCritical}

func (t RiskTier) String() string {
	return string(t)
}

// Valid reports whether t is one of the four known tiers.
func (t RiskTier) Valid() bool {
	return t.Rank() >= 0
}

// Rank orders tiers by severity, low = 0. Unknown tiers rank -1.
func (t RiskTier) Rank() int {
	switch t {
	case TierLow:
		return 0
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether t is as severe as other or more.
func (t RiskTier) AtLeast(other RiskTier) bool {
	return t.Valid() && t.Rank() >= other.Rank()
}

// ParseTier converts s to a RiskTier, rejecting anything outside the four
// known values. Matching is case-insensitive and ignores surrounding space.
func ParseTier(field, s string) (RiskTier, error) {
	t := RiskTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError(field, "%q is not one of low, medium, high, critical", s)
	}
	return t, nil
}

// MarshalText refuses to encode an unknown tier.
func (t RiskTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid risk tier %q", string(t))
	}
	return []byte(t), nil
}

// UnmarshalText rejects unknown tiers at the decoding boundary.
func (t *RiskTier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier("tier", string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MaxTier returns the more severe of a and b.
func MaxTier(a, b RiskTier) RiskTier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SpoilageRisk is the scored state of one product for one scoring pass.
// Only the latest value per product is kept in the current table; every
// pass is also appended to the history.
type SpoilageRisk struct {
	ProductID             string    `json:"productId"`
	ProductName           string    `json:"productName"`
	Category              string    `json:"category"`
	CurrentStock          float64   `json:"currentStock"`
	DaysUntilExpiry       int       `json:"daysUntilExpiry"`
	RiskScore             float64   `json:"riskScore"`
	SpoilageRisk          RiskTier  `json:"spoilageRisk"`
	PredictedSpoilageDate Date      `json:"predictedSpoilageDate"`
	RecommendedAction     string    `json:"recommendedAction"`
	Factors               Factors   `json:"factors"`
	FactorVersion         int       `json:"factorVersion"`
	ClampedFields         []string  `json:"clampedFields,omitempty"`
	JobID                 *string   `json:"jobId,omitempty"`
	ScoredAt              time.Time `json:"scoredAt"`
}

// SpoilagePrediction is the forward-looking companion of a SpoilageRisk.
type SpoilagePrediction struct {
	ProductID             string    `json:"productId"`
	PredictedSpoilageDate Date      `json:"predictedSpoilageDate"`
	Confidence            float64   `json:"confidence"`
	RiskFactors           []string  `json:"riskFactors"`
	Recommendations       []string  `json:"recommendations"`
	GeneratedAt           time.Time `json:"generatedAt"`
}

// RiskHistoryPoint is one entry of a product's score trend.
type RiskHistoryPoint struct {
	ProductID    string    `json:"productId"`
	RiskScore    float64   `json:"riskScore"`
	SpoilageRisk RiskTier  `json:"spoilageRisk"`
	JobID        *string   `json:"jobId,omitempty"`
	ScoredAt     time.Time `json:"scoredAt"`
}

// RiskFilter narrows risk listings.
type RiskFilter struct {
	Tier     *RiskTier
	Category string
	Limit    int
}
