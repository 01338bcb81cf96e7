package scoring

import (
	"math"
	"testing"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

func TestClassifier_Boundaries(t *testing.T) {
	c := NewClassifier(config.Default().Classifier)

	tests := []struct {
		score float64
		want  models.RiskTier
	}{
		{0, models.TierLow},
		{0.2499, models.TierLow},
		{0.25, models.TierMedium},
		{0.4999, models.TierMedium},
		{0.5, models.TierHigh},
		{0.7499, models.TierHigh},
		{0.75, models.TierCritical},
		{1, models.TierCritical},
		{-0.3, models.TierLow},
		{1.7, models.TierCritical},
		{math.NaN(), models.TierCritical},
	}
	for _, tt := range tests {
		if got := c.Tier(tt.score); got != tt.want {
			t.Errorf("Tier(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifier_TotalOverUnitInterval(t *testing.T) {
	c := NewClassifier(config.Default().Classifier)
	for i := 0; i <= 1000; i++ {
		if tier := c.Tier(float64(i) / 1000); !tier.Valid() {
			t.Fatalf("Tier(%v) = %q", float64(i)/1000, tier)
		}
	}
}

func TestClassifier_CustomThresholds(t *testing.T) {
	cfg := config.Default().Classifier
	cfg.MediumThreshold, cfg.HighThreshold, cfg.CriticalThreshold = 0.1, 0.2, 0.3
	c := NewClassifier(cfg)

	if got := c.Tier(0.3); got != models.TierCritical {
		t.Errorf("Tier(0.3) = %s, want critical", got)
	}
	if got := c.Tier(0.15); got != models.TierMedium {
		t.Errorf("Tier(0.15) = %s, want medium", got)
	}
}

func TestClassifier_Action(t *testing.T) {
	c := NewClassifier(config.Default().Classifier)

	tests := []struct {
		score float64
		want  string
	}{
		{0.9, "Discount or relocate Greek Yogurt immediately"},
		{0.6, "Plan markdown for Greek Yogurt within 48h"},
		{0.3, "Monitor Greek Yogurt, verify storage"},
		{0.1, "No action needed for Greek Yogurt"},
	}
	for _, tt := range tests {
		_, got := c.Classify(tt.score, "Greek Yogurt")
		if got != tt.want {
			t.Errorf("Classify(%v) action = %q, want %q", tt.score, got, tt.want)
		}
	}
}
