// Package factors is the factor store: an append-only, versioned log of
// storage observations per product.
package factors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/util"
)

// DefaultHistoryLimit caps history reads when the caller gives no limit.
const DefaultHistoryLimit = 50

// Service records and reads factor snapshots. Recording never triggers
// rescoring; that is left to explicit batch jobs.
type Service struct {
	products    *repository.ProductRepository
	factors     *repository.FactorRepository
	idGenerator *util.IDGenerator
	clock       util.Clock
	logger      *slog.Logger
}

// NewService creates a new factor store service.
func NewService(db *database.DB, clock util.Clock, logger *slog.Logger) *Service {
	return &Service{
		products:    repository.NewProductRepository(db),
		factors:     repository.NewFactorRepository(db),
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
		logger:      logger.With("component", "factors"),
	}
}

// Update appends a new snapshot for productID. Malformed values are
// rejected; finite values outside their range are stored as observed and
// reported in the result.
func (s *Service) Update(ctx context.Context, productID string, input UpdateInput) (*UpdateResult, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, models.NewValidationError("productId", "is required")
	}

	f, err := input.Factors()
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	source := strings.TrimSpace(input.Source)
	if len(source) > models.MaxSourceLength {
		return nil, models.NewValidationError("source", "must be at most %d characters", models.MaxSourceLength)
	}

	snap := &models.FactorSnapshot{
		ID:         s.idGenerator.NewID(),
		ProductID:  productID,
		Factors:    f,
		Source:     source,
		RecordedAt: s.clock.Now(),
	}
	if err := s.factors.Append(ctx, snap); err != nil {
		if models.IsClientError(err) {
			return nil, err
		}
		return nil, models.Infrastructure("appending factor snapshot", err)
	}

	clamped := f.OutOfRange()
	if len(clamped) > 0 {
		s.logger.Warn("factor snapshot outside documented range",
			"product_id", productID, "version", snap.Version, "fields", clamped)
	}
	s.logger.Info("factor snapshot recorded",
		"product_id", productID, "version", snap.Version, "source", source)

	if clamped == nil {
		clamped = []string{}
	}
	return &UpdateResult{Snapshot: snap, ClampedFields: clamped}, nil
}

// Current returns the highest-version snapshot for productID.
func (s *Service) Current(ctx context.Context, productID string) (*models.FactorSnapshot, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.factors.Current(ctx, productID)
}

// History returns up to limit snapshots for productID, newest first.
func (s *Service) History(ctx context.Context, productID string, limit int) ([]*models.FactorSnapshot, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	snaps, err := s.factors.History(ctx, productID, limit)
	if err != nil {
		return nil, models.Infrastructure("reading factor history", err)
	}
	if snaps == nil {
		snaps = []*models.FactorSnapshot{}
	}
	return snaps, nil
}
