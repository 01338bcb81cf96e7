// Package risk runs the scoring pipeline for single items and serves the
// risk query surface.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/services/scoring"
	"github.com/stocksense/stocksense/internal/util"
)

// ErrMissingExpiry marks products that cannot be scored because they
// carry no expiration date.
var ErrMissingExpiry = errors.New("product has no expiration date")

// ErrMissingFactors marks products that have no recorded factor snapshot.
var ErrMissingFactors = errors.New("product has no factor snapshot")

// DefaultHistoryLimit caps history reads when the caller gives no limit.
const DefaultHistoryLimit = 100

// Catalog is the read-only view of the product catalog.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
}

// Service scores items and reads stored results.
type Service struct {
	catalog     Catalog
	factors     *repository.FactorRepository
	risks       *repository.RiskRepository
	scorer      *scoring.Scorer
	classifier  *scoring.Classifier
	idGenerator *util.IDGenerator
	clock       util.Clock
	logger      *slog.Logger
}

// NewService creates a risk service backed by the SQL catalog.
func NewService(db *database.DB, cfg *config.Config, clock util.Clock, logger *slog.Logger) *Service {
	return &Service{
		catalog:     repository.NewProductRepository(db),
		factors:     repository.NewFactorRepository(db),
		risks:       repository.NewRiskRepository(db),
		scorer:      scoring.NewScorer(cfg.Scoring),
		classifier:  scoring.NewClassifier(cfg.Classifier),
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
		logger:      logger.With("component", "risk"),
	}
}

// Catalog returns the catalog the service scores against.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// ============================================================================
// SCORING
// ============================================================================

// ScoreProduct looks up productID and scores it.
func (s *Service) ScoreProduct(ctx context.Context, productID string, jobID *string) (*models.SpoilageRisk, error) {
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.ScoreItem(ctx, p, jobID)
}

// ScoreItem runs factors, scorer, classifier and prediction for one product
// and persists the outcome. Products without an expiration date or a
// factor snapshot fail and leave no risk entry.
func (s *Service) ScoreItem(ctx context.Context, p *models.Product, jobID *string) (*models.SpoilageRisk, error) {
	if !p.HasExpiry() {
		return nil, fmt.Errorf("%w: %s", ErrMissingExpiry, p.ID)
	}

	snap, err := s.factors.Current(ctx, p.ID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrMissingFactors, p.ID)
	case err != nil:
		return nil, models.Infrastructure("reading factors", err)
	}
	f, version, recordedAt := snap.Factors, snap.Version, snap.RecordedAt

	now := s.clock.Now()
	days := p.DaysUntilExpiry(now)
	res := s.scorer.Score(scoring.Input{
		Storage:         p.Storage,
		Factors:         f,
		DaysUntilExpiry: days,
		AsOf:            now,
	})
	if len(res.Clamped) > 0 {
		s.logger.Warn("factors clamped for scoring",
			"product_id", p.ID, "factor_version", version, "fields", res.Clamped)
	}

	tier, action := s.classifier.Classify(res.RiskScore, p.Name)
	risk := &models.SpoilageRisk{
		ProductID:             p.ID,
		ProductName:           p.Name,
		Category:              p.Category,
		CurrentStock:          p.CurrentStock,
		DaysUntilExpiry:       days,
		RiskScore:             res.RiskScore,
		SpoilageRisk:          tier,
		PredictedSpoilageDate: res.PredictedSpoilageDate,
		RecommendedAction:     action,
		Factors:               res.Factors,
		FactorVersion:         version,
		ClampedFields:         res.Clamped,
		JobID:                 jobID,
		ScoredAt:              now,
	}
	pred := s.scorer.Predict(scoring.PredictionInput{
		Product:           p,
		Result:            res,
		Tier:              tier,
		Action:            action,
		FactorsRecordedAt: recordedAt,
		DaysUntilExpiry:   days,
		AsOf:              now,
	})

	if err := s.risks.Save(ctx, s.idGenerator.NewID(), risk, pred); err != nil {
		return nil, models.Infrastructure("saving risk", err)
	}

	s.logger.Debug("item scored",
		"product_id", p.ID, "score", risk.RiskScore, "tier", tier, "days_until_expiry", days)
	return risk, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// ListRisks returns current risks, highest score first.
func (s *Service) ListRisks(ctx context.Context, filter models.RiskFilter) ([]*models.SpoilageRisk, error) {
	risks, err := s.risks.List(ctx, filter)
	if err != nil {
		return nil, models.Infrastructure("listing risks", err)
	}
	if risks == nil {
		risks = []*models.SpoilageRisk{}
	}
	return risks, nil
}

// GetRisk returns the current risk for a product.
func (s *Service) GetRisk(ctx context.Context, productID string) (*models.SpoilageRisk, error) {
	return s.risks.Get(ctx, productID)
}

// History returns the score trend of a product, newest first.
func (s *Service) History(ctx context.Context, productID string, limit int) ([]*models.RiskHistoryPoint, error) {
	if _, err := s.catalog.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	points, err := s.risks.History(ctx, productID, limit)
	if err != nil {
		return nil, models.Infrastructure("reading risk history", err)
	}
	if points == nil {
		points = []*models.RiskHistoryPoint{}
	}
	return points, nil
}

// ListPredictions returns current predictions, soonest spoilage first.
func (s *Service) ListPredictions(ctx context.Context, limit int) ([]*models.SpoilagePrediction, error) {
	preds, err := s.risks.ListPredictions(ctx, limit)
	if err != nil {
		return nil, models.Infrastructure("listing predictions", err)
	}
	if preds == nil {
		preds = []*models.SpoilagePrediction{}
	}
	return preds, nil
}

// TierCounts returns how many products currently sit in each tier.
func (s *Service) TierCounts(ctx context.Context) (map[models.RiskTier]int, error) {
	counts, err := s.risks.CountByTier(ctx)
	if err != nil {
		return nil, models.Infrastructure("counting tiers", err)
	}
	return counts, nil
}
