package factors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/testutil"
	"github.com/stocksense/stocksense/internal/util"
)

func setup(t *testing.T) (*Service, *models.Product, *util.ManualClock) {
	t.Helper()

	db := testutil.NewTestDB(t)
	p := testutil.FixtureProduct()
	if err := repository.NewProductRepository(db.DB).Upsert(context.Background(), nil, p); err != nil {
		t.Fatal(err)
	}

	clock := util.NewManualClock(testutil.RefTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db.DB, clock, logger), p, clock
}

func f64(v float64) *float64 { return &v }

func validInput() UpdateInput {
	return UpdateInput{
		Temperature:       f64(3.5),
		Humidity:          f64(65),
		Seasonality:       f64(1.1),
		StorageConditions: f64(0.8),
		HistoricalWaste:   f64(0.1),
		Source:            "sensor-7",
	}
}

func TestService_Update(t *testing.T) {
	svc, p, clock := setup(t)
	ctx := context.Background()

	res, err := svc.Update(ctx, p.ID, validInput())
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if res.Snapshot.Version != 1 || len(res.ClampedFields) != 0 {
		t.Errorf("Update() = %+v", res)
	}

	clock.Advance(time.Hour)
	in := validInput()
	in.Humidity = f64(120)
	in.HistoricalWaste = f64(-0.2)
	res, err = svc.Update(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("Update() out of range = %v", err)
	}
	if res.Snapshot.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Snapshot.Version)
	}
	if len(res.ClampedFields) != 2 || res.ClampedFields[0] != "humidity" || res.ClampedFields[1] != "historicalWaste" {
		t.Errorf("ClampedFields = %v", res.ClampedFields)
	}

	cur, err := svc.Current(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Version != 2 || cur.Humidity != 120 {
		t.Errorf("Current() = %+v, want stored as observed", cur)
	}
	if !cur.RecordedAt.Equal(testutil.RefTime.Add(time.Hour)) {
		t.Errorf("RecordedAt = %v", cur.RecordedAt)
	}

	hist, err := svc.History(ctx, p.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Errorf("History() returned %d snapshots", len(hist))
	}
}

func TestService_UpdateRejects(t *testing.T) {
	svc, p, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID string
		mutate    func(*UpdateInput)
		wantField string
		wantErr   error
	}{
		{"missing field", p.ID, func(in *UpdateInput) { in.Seasonality = nil }, "seasonality", models.ErrValidation},
		{"NaN", p.ID, func(in *UpdateInput) { in.StorageConditions = f64(math.NaN()) }, "storageConditions", models.ErrValidation},
		{"infinite", p.ID, func(in *UpdateInput) { in.Humidity = f64(math.Inf(1)) }, "humidity", models.ErrValidation},
		{"below absolute zero", p.ID, func(in *UpdateInput) { in.Temperature = f64(-300) }, "temperature", models.ErrValidation},
		{"blank product", " ", nil, "productId", models.ErrValidation},
		{"unknown product", "missing", nil, "", models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			_, err := svc.Update(ctx, tt.productID, in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantField != "" {
				var ve *models.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Errorf("error field = %v, want %s", err, tt.wantField)
				}
			}
		})
	}
}

func TestService_CurrentNotFound(t *testing.T) {
	svc, p, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Current(ctx, p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Current() without snapshots = %v", err)
	}
	if _, err := svc.History(ctx, "missing", 10); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("History(missing) = %v", err)
	}
}
