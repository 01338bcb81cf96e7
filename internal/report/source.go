package report

import (
	"context"

	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/services/alerts"
	"github.com/stocksense/stocksense/internal/services/batch"
	"github.com/stocksense/stocksense/internal/services/risk"
)

// ServiceSource reads report data from the engine services.
type ServiceSource struct {
	Risk   *risk.Service
	Alerts *alerts.Service
	Jobs   *batch.Service
}

func (s ServiceSource) ListRisks(ctx context.Context, filter models.RiskFilter) ([]*models.SpoilageRisk, error) {
	return s.Risk.ListRisks(ctx, filter)
}

func (s ServiceSource) TierCounts(ctx context.Context) (map[models.RiskTier]int, error) {
	return s.Risk.TierCounts(ctx)
}

func (s ServiceSource) ListOpenAlerts(ctx context.Context) ([]*models.CriticalAlert, error) {
	return s.Alerts.ListOpen(ctx, "")
}

func (s ServiceSource) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.BatchJob, error) {
	return s.Jobs.List(ctx, filter)
}
