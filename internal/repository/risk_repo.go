package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
)

// RiskRepository stores scoring output: the latest risk and prediction
// per product, plus the score history.
type RiskRepository struct {
	base
}

// NewRiskRepository creates a new risk repository.
func NewRiskRepository(db *database.DB) *RiskRepository {
	return &RiskRepository{base{db: db}}
}

var riskColumns = []string{
	"product_id", "product_name", "category", "current_stock", "days_until_expiry",
	"risk_score", "tier", "predicted_spoilage_date", "recommended_action",
	"factor_version", "temperature", "humidity", "seasonality",
	"storage_conditions", "historical_waste", "clamped_fields", "job_id", "scored_at",
}

var predictionColumns = []string{
	"product_id", "predicted_spoilage_date", "confidence", "risk_factors",
	"recommendations", "generated_at",
}

// Save replaces the current risk and prediction for the product and
// appends a history point, all in one transaction.
func (r *RiskRepository) Save(ctx context.Context, historyID string, risk *models.SpoilageRisk, pred *models.SpoilagePrediction) error {
	clamped, err := encodeList(risk.ClampedFields)
	if err != nil {
		return fmt.Errorf("encoding clamped fields: %w", err)
	}
	riskFactors, err := encodeList(pred.RiskFactors)
	if err != nil {
		return fmt.Errorf("encoding risk factors: %w", err)
	}
	recommendations, err := encodeList(pred.Recommendations)
	if err != nil {
		return fmt.Errorf("encoding recommendations: %w", err)
	}

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx, r.builder().
			Insert("spoilage_risks").
			Columns(riskColumns...).
			Values(
				risk.ProductID,
				risk.ProductName,
				risk.Category,
				risk.CurrentStock,
				risk.DaysUntilExpiry,
				risk.RiskScore,
				string(risk.SpoilageRisk),
				risk.PredictedSpoilageDate.String(),
				risk.RecommendedAction,
				risk.FactorVersion,
				risk.Factors.Temperature,
				risk.Factors.Humidity,
				risk.Factors.Seasonality,
				risk.Factors.StorageConditions,
				risk.Factors.HistoricalWaste,
				clamped,
				nullableStringPtr(risk.JobID),
				formatTime(risk.ScoredAt),
			).
			Suffix(`ON CONFLICT (product_id) DO UPDATE SET
				product_name = excluded.product_name,
				category = excluded.category,
				current_stock = excluded.current_stock,
				days_until_expiry = excluded.days_until_expiry,
				risk_score = excluded.risk_score,
				tier = excluded.tier,
				predicted_spoilage_date = excluded.predicted_spoilage_date,
				recommended_action = excluded.recommended_action,
				factor_version = excluded.factor_version,
				temperature = excluded.temperature,
				humidity = excluded.humidity,
				seasonality = excluded.seasonality,
				storage_conditions = excluded.storage_conditions,
				historical_waste = excluded.historical_waste,
				clamped_fields = excluded.clamped_fields,
				job_id = excluded.job_id,
				scored_at = excluded.scored_at`))
		if err != nil {
			return fmt.Errorf("upserting spoilage risk: %w", err)
		}

		_, err = r.exec(ctx, tx, r.builder().
			Insert("risk_history").
			Columns("id", "product_id", "risk_score", "tier", "job_id", "scored_at").
			Values(
				historyID,
				risk.ProductID,
				risk.RiskScore,
				string(risk.SpoilageRisk),
				nullableStringPtr(risk.JobID),
				formatTime(risk.ScoredAt),
			))
		if err != nil {
			return fmt.Errorf("appending risk history: %w", err)
		}

		_, err = r.exec(ctx, tx, r.builder().
			Insert("spoilage_predictions").
			Columns(predictionColumns...).
			Values(
				pred.ProductID,
				pred.PredictedSpoilageDate.String(),
				pred.Confidence,
				riskFactors,
				recommendations,
				formatTime(pred.GeneratedAt),
			).
			Suffix(`ON CONFLICT (product_id) DO UPDATE SET
				predicted_spoilage_date = excluded.predicted_spoilage_date,
				confidence = excluded.confidence,
				risk_factors = excluded.risk_factors,
				recommendations = excluded.recommendations,
				generated_at = excluded.generated_at`))
		if err != nil {
			return fmt.Errorf("upserting spoilage prediction: %w", err)
		}

		return nil
	})
}

// Get returns the current risk for a product.
func (r *RiskRepository) Get(ctx context.Context, productID string) (*models.SpoilageRisk, error) {
	row, err := r.queryRow(ctx, nil, r.builder().
		Select(riskColumns...).
		From("spoilage_risks").
		Where(sq.Eq{"product_id": productID}))
	if err != nil {
		return nil, err
	}

	risk, err := scanRisk(row)
	if err != nil {
		return nil, notFound(err, "spoilage risk for product", productID)
	}
	return risk, nil
}

// List returns current risks, highest score first.
func (r *RiskRepository) List(ctx context.Context, filter models.RiskFilter) ([]*models.SpoilageRisk, error) {
	q := r.builder().
		Select(riskColumns...).
		From("spoilage_risks").
		OrderBy("risk_score DESC", "product_id")

	if filter.Tier != nil {
		q = q.Where(sq.Eq{"tier": string(*filter.Tier)})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	rows, err := r.query(ctx, nil, q)
	if err != nil {
		return nil, fmt.Errorf("querying spoilage risks: %w", err)
	}
	defer rows.Close()

	var risks []*models.SpoilageRisk
	for rows.Next() {
		risk, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning spoilage risk: %w", err)
		}
		risks = append(risks, risk)
	}
	return risks, rows.Err()
}

// CountByTier returns how many products currently sit in each tier.
func (r *RiskRepository) CountByTier(ctx context.Context) (map[models.RiskTier]int, error) {
	rows, err := r.query(ctx, nil, r.builder().
		Select("tier", "COUNT(*)").
		From("spoilage_risks").
		GroupBy("tier"))
	if err != nil {
		return nil, fmt.Errorf("counting tiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RiskTier]int, len(models.AllTiers))
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scanning tier count: %w", err)
		}
		counts[models.RiskTier(tier)] = n
	}
	return counts, rows.Err()
}

// History returns up to limit history points for a product, newest first.
func (r *RiskRepository) History(ctx context.Context, productID string, limit int) ([]*models.RiskHistoryPoint, error) {
	rows, err := r.query(ctx, nil, r.builder().
		Select("product_id", "risk_score", "tier", "job_id", "scored_at").
		From("risk_history").
		Where(sq.Eq{"product_id": productID}).
		OrderBy("scored_at DESC", "id DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("querying risk history: %w", err)
	}
	defer rows.Close()

	var points []*models.RiskHistoryPoint
	for rows.Next() {
		var (
			p        models.RiskHistoryPoint
			tier     string
			jobID    sql.NullString
			scoredAt string
		)
		if err := rows.Scan(&p.ProductID, &p.RiskScore, &tier, &jobID, &scoredAt); err != nil {
			return nil, fmt.Errorf("scanning risk history: %w", err)
		}
		p.SpoilageRisk = models.RiskTier(tier)
		p.JobID = stringPtr(jobID)
		p.ScoredAt = parseTime(scoredAt)
		points = append(points, &p)
	}
	return points, rows.Err()
}

// ListPredictions returns current predictions, soonest spoilage first.
func (r *RiskRepository) ListPredictions(ctx context.Context, limit int) ([]*models.SpoilagePrediction, error) {
	q := r.builder().
		Select(predictionColumns...).
		From("spoilage_predictions").
		OrderBy("predicted_spoilage_date", "product_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := r.query(ctx, nil, q)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var preds []*models.SpoilagePrediction
	for rows.Next() {
		var (
			p               models.SpoilagePrediction
			date            string
			riskFactors     sql.NullString
			recommendations sql.NullString
			generatedAt     string
		)
		if err := rows.Scan(&p.ProductID, &date, &p.Confidence, &riskFactors, &recommendations, &generatedAt); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		p.PredictedSpoilageDate, _ = models.ParseDate(date)
		p.RiskFactors = decodeList(riskFactors)
		p.Recommendations = decodeList(recommendations)
		p.GeneratedAt = parseTime(generatedAt)
		preds = append(preds, &p)
	}
	return preds, rows.Err()
}

func scanRisk(s scanner) (*models.SpoilageRisk, error) {
	var (
		risk     models.SpoilageRisk
		tier     string
		date     string
		clamped  sql.NullString
		jobID    sql.NullString
		scoredAt string
	)

	err := s.Scan(
		&risk.ProductID,
		&risk.ProductName,
		&risk.Category,
		&risk.CurrentStock,
		&risk.DaysUntilExpiry,
		&risk.RiskScore,
		&tier,
		&date,
		&risk.RecommendedAction,
		&risk.FactorVersion,
		&risk.Factors.Temperature,
		&risk.Factors.Humidity,
		&risk.Factors.Seasonality,
		&risk.Factors.StorageConditions,
		&risk.Factors.HistoricalWaste,
		&clamped,
		&jobID,
		&scoredAt,
	)
	if err != nil {
		return nil, err
	}

	risk.SpoilageRisk = models.RiskTier(tier)
	risk.PredictedSpoilageDate, _ = models.ParseDate(date)
	risk.ClampedFields = decodeList(clamped)
	risk.JobID = stringPtr(jobID)
	risk.ScoredAt = parseTime(scoredAt)
	return &risk, nil
}
