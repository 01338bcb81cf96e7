package scoring

import (
	"math"
	"strings"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

// ItemPlaceholder is replaced by the item name in action templates.
const ItemPlaceholder = "{item}"

// Classifier maps scores to tiers. Each threshold is the inclusive lower
// bound of its tier.
type Classifier struct {
	cfg config.ClassifierConfig
}

// NewClassifier creates a classifier from validated thresholds.
func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Tier returns the tier for score. NaN and scores above 1 are critical,
// negative scores are low.
func (c *Classifier) Tier(score float64) models.RiskTier {
	switch {
	case math.IsNaN(score) || score >= c.cfg.CriticalThreshold:
		return models.TierCritical
	case score >= c.cfg.HighThreshold:
		return models.TierHigh
	case score >= c.cfg.MediumThreshold:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// Classify returns the tier for score and the tier's action for item.
func (c *Classifier) Classify(score float64, item string) (models.RiskTier, string) {
	tier := c.Tier(score)
	return tier, c.Action(tier, item)
}

// Action renders the action template of tier for item.
func (c *Classifier) Action(tier models.RiskTier, item string) string {
	var tmpl string
	switch tier {
	case models.TierCritical:
		tmpl = c.cfg.CriticalAction
	case models.TierHigh:
		tmpl = c.cfg.HighAction
	case models.TierMedium:
		tmpl = c.cfg.MediumAction
	default:
		tmpl = c.cfg.LowAction
	}
	return strings.NewReplacer(ItemPlaceholder, item).Replace(tmpl)
}
