// Package alerts is the alert manager. It opens critical alerts for
// at-risk items, suppresses duplicates within a cooldown window, and
// resolves alerts on request. Alerts never resolve on their own.
package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/notify"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/util"
)

// Service manages critical alerts.
type Service struct {
	db          *database.DB
	alerts      *repository.AlertRepository
	local       *keyedMutex
	distributed Locker
	notifier    notify.Notifier
	minTier     models.RiskTier
	cooldown    time.Duration
	idGenerator *util.IDGenerator
	clock       util.Clock
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where alert events are published.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLocker adds a cross-instance lock taken after the in-process one.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.distributed = l }
}

// NewService creates a new alert manager. cfg must be validated.
func NewService(db *database.DB, cfg config.AlertsConfig, clock util.Clock, logger *slog.Logger, opts ...Option) *Service {
	minTier, err := models.ParseTier("min_tier", cfg.MinTier)
	if err != nil {
		minTier = models.TierHigh
	}

	s := &Service{
		db:          db,
		alerts:      repository.NewAlertRepository(db),
		local:       newKeyedMutex(),
		minTier:     minTier,
		cooldown:    cfg.Cooldown,
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
		logger:      logger.With("component", "alerts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(logger)
	}
	return s
}

// MinTier returns the lowest tier that raises alerts.
func (s *Service) MinTier() models.RiskTier {
	return s.minTier
}

// ============================================================================
// CREATION
// ============================================================================

// Evaluate opens at most one alert per category for the at-risk items in
// risks that no existing alert covers. It returns the alerts it created.
func (s *Service) Evaluate(ctx context.Context, risks []*models.SpoilageRisk) ([]*models.CriticalAlert, error) {
	byCategory := make(map[string][]*models.SpoilageRisk)
	for _, r := range risks {
		if r.SpoilageRisk.AtLeast(s.minTier) {
			byCategory[r.Category] = append(byCategory[r.Category], r)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var created []*models.CriticalAlert
	for _, category := range categories {
		items := byCategory[category]
		candidates := make([]string, 0, len(items))
		for _, r := range items {
			candidates = append(candidates, r.ProductID)
		}

		alert, _, err := s.openUncovered(ctx, category, candidates, func(uncovered []string) *models.CriticalAlert {
			return s.buildRiskAlert(category, items, uncovered)
		})
		if err != nil {
			return created, err
		}
		if alert != nil {
			created = append(created, alert)
		}
	}
	return created, nil
}

// Create opens an alert by hand under the same coverage rule as Evaluate.
// Products already covered are left out; if every product is covered the
// call is a conflict naming the covering alert.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.CriticalAlert, error) {
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, models.NewValidationError("category", "is required")
	}
	ids := models.SortedUnique(input.ProductIDs)
	if len(ids) == 0 {
		return nil, models.NewValidationError("productIds", "must name at least one product")
	}
	severity, err := models.ParseTier("severity", input.Severity)
	if err != nil {
		return nil, err
	}
	alertType := strings.TrimSpace(input.Type)
	if alertType == "" {
		alertType = models.AlertTypeSpoilageRisk
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = fmt.Sprintf("%s alert for %s", strings.ToUpper(severity.String()[:1])+severity.String()[1:], category)
	}

	alert, blocking, err := s.openUncovered(ctx, category, ids, func(uncovered []string) *models.CriticalAlert {
		return &models.CriticalAlert{
			Type:       alertType,
			Category:   category,
			Severity:   severity,
			Title:      title,
			Message:    strings.TrimSpace(input.Message),
			ProductIDs: uncovered,
		}
	})
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &models.ConflictError{
			Reason:     fmt.Sprintf("every product is already covered by an alert in category %s", category),
			BlockingID: blocking,
		}
	}
	return alert, nil
}

// openUncovered runs the check-and-insert for one category while holding
// the category lock. It returns the created alert, or nil and the id of a
// covering alert when nothing was left to alert on.
func (s *Service) openUncovered(ctx context.Context, category string, candidates []string, build func(uncovered []string) *models.CriticalAlert) (*models.CriticalAlert, string, error) {
	release, err := s.local.Lock(ctx, category)
	if err != nil {
		return nil, "", models.Infrastructure("locking category", err)
	}
	defer release()

	if s.distributed != nil {
		releaseDist, err := s.distributed.Lock(ctx, category)
		if err != nil {
			return nil, "", models.Infrastructure("locking category", err)
		}
		defer releaseDist()
	}

	now := s.clock.Now()
	var (
		alert    *models.CriticalAlert
		blocking string
	)
	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		covered, err := s.alerts.CoveredProducts(ctx, tx, category, now.Add(-s.cooldown))
		if err != nil {
			return err
		}

		var uncovered []string
		for _, id := range models.SortedUnique(candidates) {
			if alertID, ok := covered[id]; ok {
				if blocking == "" {
					blocking = alertID
				}
				continue
			}
			uncovered = append(uncovered, id)
		}
		if len(uncovered) == 0 {
			return nil
		}

		alert = build(uncovered)
		alert.ID = s.idGenerator.NewID()
		alert.ProductIDs = uncovered
		alert.DedupKey = models.DedupKey(category, uncovered)
		alert.CreatedAt = now
		return s.alerts.Insert(ctx, tx, alert)
	})
	if err != nil {
		return nil, "", models.Infrastructure("creating alert", err)
	}

	if alert == nil {
		s.logger.Debug("alert suppressed, products already covered",
			"category", category, "covering_alert", blocking)
		return nil, blocking, nil
	}

	s.logger.Info("alert opened",
		"alert_id", alert.ID, "category", category, "severity", alert.Severity, "products", len(alert.ProductIDs))
	s.publish(ctx, notify.AlertEvent(notify.EventAlertCreated, alert, now))
	return alert, "", nil
}

func (s *Service) buildRiskAlert(category string, items []*models.SpoilageRisk, uncovered []string) *models.CriticalAlert {
	include := make(map[string]bool, len(uncovered))
	for _, id := range uncovered {
		include[id] = true
	}

	severity := models.TierLow
	var parts []string
	for _, r := range items {
		if !include[r.ProductID] {
			continue
		}
		severity = models.MaxTier(severity, r.SpoilageRisk)
		parts = append(parts, fmt.Sprintf("%s (%s, score %.2f, %d days to expiry)",
			r.ProductName, r.SpoilageRisk, r.RiskScore, r.DaysUntilExpiry))
	}
	sort.Strings(parts)

	noun := "items"
	if len(uncovered) == 1 {
		noun = "item"
	}
	return &models.CriticalAlert{
		Type:     models.AlertTypeSpoilageRisk,
		Category: category,
		Severity: severity,
		Title:    fmt.Sprintf("Spoilage risk: %d %s in %s", len(uncovered), noun, category),
		Message:  strings.Join(parts, "; "),
	}
}

// ============================================================================
// RESOLUTION AND QUERIES
// ============================================================================

// Resolve marks an open alert resolved.
func (s *Service) Resolve(ctx context.Context, id string, input ResolveInput) (*models.CriticalAlert, error) {
	var note *string
	if input.Note != nil {
		trimmed := strings.TrimSpace(*input.Note)
		if trimmed != "" {
			note = &trimmed
		}
	}

	now := s.clock.Now()
	alert, err := s.alerts.Resolve(ctx, id, note, now)
	if err != nil {
		if models.IsClientError(err) {
			return nil, err
		}
		return nil, models.Infrastructure("resolving alert", err)
	}

	s.logger.Info("alert resolved", "alert_id", id, "category", alert.Category)
	s.publish(ctx, notify.AlertEvent(notify.EventAlertResolved, alert, now))
	return alert, nil
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, id string) (*models.CriticalAlert, error) {
	return s.alerts.GetByID(ctx, nil, id)
}

// List returns alerts matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.AlertFilter) ([]*models.CriticalAlert, error) {
	alerts, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, models.Infrastructure("listing alerts", err)
	}
	if alerts == nil {
		alerts = []*models.CriticalAlert{}
	}
	return alerts, nil
}

// ListOpen returns the open alerts, optionally for one category.
func (s *Service) ListOpen(ctx context.Context, category string) ([]*models.CriticalAlert, error) {
	return s.List(ctx, models.AlertFilter{Status: models.AlertStatusOpen, Category: category})
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", "type", ev.Type, "key", ev.Key, "error", err)
	}
}
