package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
)

// FactorRepository is the append-only factor snapshot log.
type FactorRepository struct {
	base
}

// NewFactorRepository creates a new factor repository.
func NewFactorRepository(db *database.DB) *FactorRepository {
	return &FactorRepository{base{db: db}}
}

var factorColumns = []string{
	"id", "product_id", "version", "temperature", "humidity", "seasonality",
	"storage_conditions", "historical_waste", "source", "recorded_at",
}

// Append stores snap as the next version for its product and fills in
// snap.Version. The product row is locked for the duration so concurrent
// appends cannot claim the same version.
func (r *FactorRepository) Append(ctx context.Context, snap *models.FactorSnapshot) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		lock := r.builder().Select("id").From("products").Where(sq.Eq{"id": snap.ProductID})
		if suffix := r.db.Dialect().LockSuffix(); suffix != "" {
			lock = lock.Suffix(suffix)
		}
		row, err := r.queryRow(ctx, tx, lock)
		if err != nil {
			return err
		}
		var id string
		if err := row.Scan(&id); err != nil {
			return notFound(err, "product", snap.ProductID)
		}

		row, err = r.queryRow(ctx, tx, r.builder().
			Select("COALESCE(MAX(version), 0)").
			From("factor_snapshots").
			Where(sq.Eq{"product_id": snap.ProductID}))
		if err != nil {
			return err
		}
		var latest int
		if err := row.Scan(&latest); err != nil {
			return fmt.Errorf("reading latest version: %w", err)
		}
		snap.Version = latest + 1

		_, err = r.exec(ctx, tx, r.builder().
			Insert("factor_snapshots").
			Columns(factorColumns...).
			Values(
				snap.ID,
				snap.ProductID,
				snap.Version,
				snap.Temperature,
				snap.Humidity,
				snap.Seasonality,
				snap.StorageConditions,
				snap.HistoricalWaste,
				nullableString(snap.Source),
				formatTime(snap.RecordedAt),
			))
		if err != nil {
			return fmt.Errorf("inserting factor snapshot: %w", err)
		}
		return nil
	})
}

// Current returns the highest-version snapshot for a product.
func (r *FactorRepository) Current(ctx context.Context, productID string) (*models.FactorSnapshot, error) {
	row, err := r.queryRow(ctx, nil, r.builder().
		Select(factorColumns...).
		From("factor_snapshots").
		Where(sq.Eq{"product_id": productID}).
		OrderBy("version DESC").
		Limit(1))
	if err != nil {
		return nil, err
	}

	snap, err := scanFactorSnapshot(row)
	if err != nil {
		return nil, notFound(err, "factor snapshot for product", productID)
	}
	return snap, nil
}

// History returns up to limit snapshots for a product, newest first.
func (r *FactorRepository) History(ctx context.Context, productID string, limit int) ([]*models.FactorSnapshot, error) {
	rows, err := r.query(ctx, nil, r.builder().
		Select(factorColumns...).
		From("factor_snapshots").
		Where(sq.Eq{"product_id": productID}).
		OrderBy("version DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("querying factor history: %w", err)
	}
	defer rows.Close()

	var snaps []*models.FactorSnapshot
	for rows.Next() {
		snap, err := scanFactorSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning factor snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func scanFactorSnapshot(s scanner) (*models.FactorSnapshot, error) {
	var (
		snap       models.FactorSnapshot
		source     sql.NullString
		recordedAt string
	)

	err := s.Scan(
		&snap.ID,
		&snap.ProductID,
		&snap.Version,
		&snap.Temperature,
		&snap.Humidity,
		&snap.Seasonality,
		&snap.StorageConditions,
		&snap.HistoricalWaste,
		&source,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.Source = source.String
	snap.RecordedAt = parseTime(recordedAt)
	return &snap, nil
}
