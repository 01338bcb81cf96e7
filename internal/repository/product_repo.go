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

// ProductRepository reads the product catalog. Writes exist only for
// seeding and tests; catalog management lives outside this service.
type ProductRepository struct {
	base
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{base{db: db}}
}

var productColumns = []string{
	"id", "sku", "name", "category", "current_stock", "expiration_date",
	"max_temp_c", "min_humidity_pct", "max_humidity_pct", "active",
	"created_at", "updated_at",
}

// Upsert inserts a product or replaces the stored copy with the same id.
func (r *ProductRepository) Upsert(ctx context.Context, tx *sql.Tx, p *models.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Storage == (models.StorageProfile{}) {
		p.Storage = models.DefaultStorageProfile()
	}

	stmt := r.builder().
		Insert("products").
		Columns(productColumns...).
		Values(
			p.ID,
			p.SKU,
			p.Name,
			p.Category,
			p.CurrentStock,
			nullableTime(p.ExpirationDate),
			p.Storage.MaxTempC,
			p.Storage.MinHumidityPct,
			p.Storage.MaxHumidityPct,
			boolToInt(p.Active),
			formatTime(p.CreatedAt),
			formatTime(p.UpdatedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			category = excluded.category,
			current_stock = excluded.current_stock,
			expiration_date = excluded.expiration_date,
			max_temp_c = excluded.max_temp_c,
			min_humidity_pct = excluded.min_humidity_pct,
			max_humidity_pct = excluded.max_humidity_pct,
			active = excluded.active,
			updated_at = excluded.updated_at`)

	if _, err := r.exec(ctx, tx, stmt); err != nil {
		return fmt.Errorf("upserting product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	row, err := r.queryRow(ctx, nil, r.builder().
		Select(productColumns...).
		From("products").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

// List returns products matching filter, ordered by category then name.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	q := r.builder().
		Select(productColumns...).
		From("products").
		OrderBy("category", "name", "id")

	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if filter.ActiveOnly {
		q = q.Where(sq.Eq{"active": 1})
	}

	rows, err := r.query(ctx, nil, q)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Categories returns the distinct categories of active products.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.query(ctx, nil, r.builder().
		Select("DISTINCT category").
		From("products").
		Where(sq.Eq{"active": 1}).
		OrderBy("category"))
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanProduct(s scanner) (*models.Product, error) {
	var (
		p          models.Product
		expiration sql.NullString
		active     int
		createdAt  string
		updatedAt  string
	)

	err := s.Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Category,
		&p.CurrentStock,
		&expiration,
		&p.Storage.MaxTempC,
		&p.Storage.MinHumidityPct,
		&p.Storage.MaxHumidityPct,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ExpirationDate = timePtr(expiration)
	p.Active = active == 1
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
