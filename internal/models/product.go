package models

import (
	"time"
)

// Default storage profile applied to products that do not declare one.
const (
	DefaultMaxTempC       = 4.0
	DefaultMinHumidityPct = 30.0
	DefaultMaxHumidityPct = 90.0
)

// StorageProfile describes the conditions a product is meant to be kept in.
type StorageProfile struct {
	MaxTempC       float64 `json:"maxTempC"`
	MinHumidityPct float64 `json:"minHumidityPct"`
	MaxHumidityPct float64 `json:"maxHumidityPct"`
}

// DefaultStorageProfile returns the chilled-goods profile.
func DefaultStorageProfile() StorageProfile {
	return StorageProfile{
		MaxTempC:       DefaultMaxTempC,
		MinHumidityPct: DefaultMinHumidityPct,
		MaxHumidityPct: DefaultMaxHumidityPct,
	}
}

// Product is a catalog entry. The catalog is owned elsewhere; the risk
// engine only reads it.
type Product struct {
	ID             string         `json:"id"`
	SKU            string         `json:"sku"`
	Name           string         `json:"name"`
	Category       string         `json:"category"`
	CurrentStock   float64        `json:"currentStock"`
	ExpirationDate *time.Time     `json:"expirationDate,omitempty"`
	Storage        StorageProfile `json:"storage"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// HasExpiry reports whether the product carries an expiration date.
func (p *Product) HasExpiry() bool {
	return p.ExpirationDate != nil
}

// DaysUntilExpiry returns whole calendar days from now until the
// expiration date. The result is negative once the product has expired
// and zero on the expiration day itself.
func (p *Product) DaysUntilExpiry(now time.Time) int {
	if p.ExpirationDate == nil {
		return 0
	}
	return CalendarDaysBetween(now, *p.ExpirationDate)
}

// CalendarDaysBetween counts midnights crossed between from and to, both
// taken in UTC. It is negative when to precedes from.
func CalendarDaysBetween(from, to time.Time) int {
	from = from.UTC()
	to = to.UTC()
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category   string
	ActiveOnly bool
}
