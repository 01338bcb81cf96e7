package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
)

// AlertRepository handles critical alert data access.
type AlertRepository struct {
	base
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{base{db: db}}
}

var alertColumns = []string{
	"id", "alert_type", "category", "severity", "title", "message",
	"dedup_key", "resolved", "resolution_note", "created_at", "resolved_at",
}

// Insert stores an alert together with its product membership.
func (r *AlertRepository) Insert(ctx context.Context, tx *sql.Tx, a *models.CriticalAlert) error {
	_, err := r.exec(ctx, tx, r.builder().
		Insert("critical_alerts").
		Columns(alertColumns...).
		Values(
			a.ID,
			a.Type,
			a.Category,
			string(a.Severity),
			a.Title,
			a.Message,
			a.DedupKey,
			boolToInt(a.Resolved),
			nullableStringPtr(a.ResolutionNote),
			formatTime(a.CreatedAt),
			nullableTime(a.ResolvedAt),
		))
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}

	for _, pid := range a.ProductIDs {
		_, err := r.exec(ctx, tx, r.builder().
			Insert("alert_items").
			Columns("alert_id", "product_id").
			Values(a.ID, pid))
		if err != nil {
			return fmt.Errorf("inserting alert item: %w", err)
		}
	}
	return nil
}

// CoveredProducts maps each product already represented in the category
// to the alert covering it. A product is covered by any alert created at
// or after since, and by any alert that is still open.
func (r *AlertRepository) CoveredProducts(ctx context.Context, tx *sql.Tx, category string, since time.Time) (map[string]string, error) {
	rows, err := r.query(ctx, tx, r.builder().
		Select("ai.product_id", "a.id").
		From("alert_items ai").
		Join("critical_alerts a ON a.id = ai.alert_id").
		Where(sq.Eq{"a.category": category}).
		Where(sq.Or{
			sq.GtOrEq{"a.created_at": formatTime(since)},
			sq.Eq{"a.resolved": 0},
		}).
		OrderBy("a.created_at DESC", "a.id DESC"))
	if err != nil {
		return nil, fmt.Errorf("querying covered products: %w", err)
	}
	defer rows.Close()

	covered := make(map[string]string)
	for rows.Next() {
		var pid, alertID string
		if err := rows.Scan(&pid, &alertID); err != nil {
			return nil, fmt.Errorf("scanning covered product: %w", err)
		}
		if _, ok := covered[pid]; !ok {
			covered[pid] = alertID
		}
	}
	return covered, rows.Err()
}

// GetByID retrieves an alert with its products.
func (r *AlertRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.CriticalAlert, error) {
	row, err := r.queryRow(ctx, tx, r.builder().
		Select(alertColumns...).
		From("critical_alerts").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	a, err := scanAlert(row)
	if err != nil {
		return nil, notFound(err, "alert", id)
	}
	if err := r.loadItems(ctx, tx, []*models.CriticalAlert{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns alerts matching filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.CriticalAlert, error) {
	q := r.builder().
		Select(alertColumns...).
		From("critical_alerts").
		OrderBy("created_at DESC", "id DESC")

	switch filter.Status {
	case models.AlertStatusOpen:
		q = q.Where(sq.Eq{"resolved": 0})
	case models.AlertStatusResolved:
		q = q.Where(sq.Eq{"resolved": 1})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"created_at": formatTime(*filter.Since)})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	rows, err := r.query(ctx, nil, q)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}

	var alerts []*models.CriticalAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	// Rows must be released before the item query on a single-connection pool.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, nil, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Resolve marks an open alert resolved. Resolving an alert twice is a
// conflict.
func (r *AlertRepository) Resolve(ctx context.Context, id string, note *string, at time.Time) (*models.CriticalAlert, error) {
	var resolved *models.CriticalAlert
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		n, err := r.exec(ctx, tx, r.builder().
			Update("critical_alerts").
			Set("resolved", 1).
			Set("resolution_note", nullableStringPtr(note)).
			Set("resolved_at", formatTime(at)).
			Where(sq.Eq{"id": id, "resolved": 0}))
		if err != nil {
			return fmt.Errorf("resolving alert: %w", err)
		}

		a, err := r.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return &models.ConflictError{Reason: fmt.Sprintf("alert %s is already resolved", id), BlockingID: id}
		}
		resolved = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *AlertRepository) loadItems(ctx context.Context, tx *sql.Tx, alerts []*models.CriticalAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	byID := make(map[string]*models.CriticalAlert, len(alerts))
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		byID[a.ID] = a
		ids = append(ids, a.ID)
		a.ProductIDs = []string{}
	}

	rows, err := r.query(ctx, tx, r.builder().
		Select("alert_id", "product_id").
		From("alert_items").
		Where(sq.Eq{"alert_id": ids}).
		OrderBy("alert_id", "product_id"))
	if err != nil {
		return fmt.Errorf("querying alert items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var alertID, pid string
		if err := rows.Scan(&alertID, &pid); err != nil {
			return fmt.Errorf("scanning alert item: %w", err)
		}
		if a, ok := byID[alertID]; ok {
			a.ProductIDs = append(a.ProductIDs, pid)
		}
	}
	return rows.Err()
}

func scanAlert(s scanner) (*models.CriticalAlert, error) {
	var (
		a          models.CriticalAlert
		severity   string
		resolved   int
		note       sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)

	err := s.Scan(
		&a.ID,
		&a.Type,
		&a.Category,
		&severity,
		&a.Title,
		&a.Message,
		&a.DedupKey,
		&resolved,
		&note,
		&createdAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = models.RiskTier(severity)
	a.Resolved = resolved == 1
	a.ResolutionNote = stringPtr(note)
	a.CreatedAt = parseTime(createdAt)
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}
