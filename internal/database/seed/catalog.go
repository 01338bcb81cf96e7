// Package seed generates a deterministic demo catalog with storage
// observations for every product.
package seed

import "github.com/stocksense/stocksense/internal/models"

// categorySpec describes how products of one category are generated.
type categorySpec struct {
	Name    string
	Prefix  string
	Storage models.StorageProfile
	// Shelf life range in days from the seed date.
	MinDays, MaxDays int
	// Typical observed temperature range.
	MinTemp, MaxTemp float64
	Products         []string
}

var chilled = models.DefaultStorageProfile()

// Categories is the demo catalog layout.
var Categories = []categorySpec{
	{
		Name: "dairy", Prefix: "DAI", Storage: chilled,
		MinDays: -1, MaxDays: 14, MinTemp: 2, MaxTemp: 7,
		Products: []string{
			"Whole Milk 1L", "Skimmed Milk 1L", "Greek Yogurt 500g", "Butter 250g",
			"Cheddar 400g", "Mozzarella 125g", "Double Cream 300ml", "Kefir 500ml",
		},
	},
	{
		Name: "produce", Prefix: "PRO",
		Storage: models.StorageProfile{MaxTempC: 8, MinHumidityPct: 80, MaxHumidityPct: 95},
		MinDays: 0, MaxDays: 10, MinTemp: 4, MaxTemp: 14,
		Products: []string{
			"Strawberries 400g", "Baby Spinach 200g", "Bananas 1kg", "Avocados x4",
			"Tomatoes on the Vine", "Iceberg Lettuce", "Blueberries 150g", "Mushrooms 250g",
		},
	},
	{
		Name: "meat", Prefix: "MEA",
		Storage: models.StorageProfile{MaxTempC: 3, MinHumidityPct: 80, MaxHumidityPct: 90},
		MinDays: -1, MaxDays: 7, MinTemp: 0, MaxTemp: 6,
		Products: []string{
			"Chicken Breast 500g", "Beef Mince 500g", "Pork Chops x2", "Salmon Fillets x2",
			"Lamb Leg Steaks", "Turkey Slices 200g",
		},
	},
	{
		Name: "bakery", Prefix: "BAK",
		Storage: models.StorageProfile{MaxTempC: 22, MinHumidityPct: 40, MaxHumidityPct: 70},
		MinDays: 0, MaxDays: 6, MinTemp: 16, MaxTemp: 26,
		Products: []string{
			"Sourdough Loaf", "Wholemeal Bread 800g", "Croissants x4", "Bagels x5",
			"Cinnamon Buns x2", "Pitta Bread x6",
		},
	},
	{
		Name: "dry_goods", Prefix: "DRY",
		Storage: models.StorageProfile{MaxTempC: 25, MinHumidityPct: 20, MaxHumidityPct: 60},
		MinDays: 60, MaxDays: 540, MinTemp: 15, MaxTemp: 24,
		Products: []string{
			"Basmati Rice 1kg", "Penne Pasta 500g", "Rolled Oats 1kg", "Plain Flour 1.5kg",
			"Red Lentils 500g", "Granola 750g",
		},
	},
	{
		Name: "frozen", Prefix: "FRO",
		Storage: models.StorageProfile{MaxTempC: -18, MinHumidityPct: 0, MaxHumidityPct: 100},
		MinDays: 30, MaxDays: 365, MinTemp: -22, MaxTemp: -14,
		Products: []string{
			"Frozen Peas 900g", "Fish Fingers x10", "Vanilla Ice Cream 1L", "Frozen Berries 500g",
			"Oven Chips 1.5kg",
		},
	},
}
