package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/stocksense/stocksense/internal/models"
)

// RefTime is a fixed reference instant for deterministic tests.
var RefTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// FixtureProduct creates a test product with sensible defaults: active
// dairy stock expiring five days after RefTime.
func FixtureProduct(overrides ...func(*models.Product)) *models.Product {
	id := uuid.New().String()
	expires := RefTime.AddDate(0, 0, 5)

	product := &models.Product{
		ID:             id,
		SKU:            "SKU-" + id[:8],
		Name:           "Whole Milk 1L",
		Category:       "dairy",
		CurrentStock:   120,
		ExpirationDate: &expires,
		Storage:        models.DefaultStorageProfile(),
		Active:         true,
		CreatedAt:      RefTime,
		UpdatedAt:      RefTime,
	}

	for _, override := range overrides {
		override(product)
	}

	return product
}

// FixtureExpiringProduct creates a product expiring days after RefTime.
func FixtureExpiringProduct(days int, overrides ...func(*models.Product)) *models.Product {
	return FixtureProduct(append([]func(*models.Product){
		func(p *models.Product) {
			exp := RefTime.AddDate(0, 0, days)
			p.ExpirationDate = &exp
		},
	}, overrides...)...)
}

// FixtureFactors returns neutral factors with overrides applied.
func FixtureFactors(overrides ...func(*models.Factors)) models.Factors {
	f := models.NeutralFactors()
	for _, override := range overrides {
		override(&f)
	}
	return f
}

// FixtureSnapshot creates an unversioned factor snapshot for productID.
func FixtureSnapshot(productID string, overrides ...func(*models.FactorSnapshot)) *models.FactorSnapshot {
	snap := &models.FactorSnapshot{
		ID:         uuid.New().String(),
		ProductID:  productID,
		Factors:    models.NeutralFactors(),
		Source:     "test",
		RecordedAt: RefTime,
	}

	for _, override := range overrides {
		override(snap)
	}

	return snap
}

// FixtureAlert creates an open high-severity alert in category.
func FixtureAlert(category string, productIDs []string, overrides ...func(*models.CriticalAlert)) *models.CriticalAlert {
	alert := &models.CriticalAlert{
		ID:         uuid.New().String(),
		Type:       models.AlertTypeSpoilageRisk,
		Category:   category,
		Severity:   models.TierHigh,
		Title:      "Spoilage risk in " + category,
		Message:    "test alert",
		ProductIDs: models.SortedUnique(productIDs),
		DedupKey:   models.DedupKey(category, productIDs),
		CreatedAt:  RefTime,
	}

	for _, override := range overrides {
		override(alert)
	}

	return alert
}

// FixtureJob creates a pending API-triggered job for the whole catalog.
func FixtureJob(overrides ...func(*models.BatchJob)) *models.BatchJob {
	job := &models.BatchJob{
		ID:        uuid.New().String(),
		Scope:     models.ScopeAll,
		Trigger:   models.JobTriggerAPI,
		Status:    models.JobStatusPending,
		CreatedAt: RefTime,
	}

	for _, override := range overrides {
		override(job)
	}

	return job
}
