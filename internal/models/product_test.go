package models

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestProduct_DaysUntilExpiry(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiration *time.Time
		want       int
	}{
		{"Tomorrow", timePtr(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)), 1},
		{"Later today", timePtr(now.Add(6 * time.Hour)), 0},
		{"Earlier today", timePtr(now.Add(-6 * time.Hour)), 0},
		{"Thirty days", timePtr(now.AddDate(0, 0, 30)), 30},
		{"Expired three days ago", timePtr(now.AddDate(0, 0, -3)), -3},
		{"No expiration", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{ExpirationDate: tt.expiration}
			if got := p.DaysUntilExpiry(now); got != tt.want {
				t.Errorf("DaysUntilExpiry() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFactors_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Factors)
		wantField string
	}{
		{"neutral", func(*Factors) {}, ""},
		{"NaN humidity", func(f *Factors) { f.Humidity = math.NaN() }, "humidity"},
		{"Inf waste", func(f *Factors) { f.HistoricalWaste = math.Inf(1) }, "historicalWaste"},
		{"below absolute zero", func(f *Factors) { f.Temperature = -300 }, "temperature"},
		{"boiling", func(f *Factors) { f.Temperature = 250 }, "temperature"},
		{"out of range storage is accepted", func(f *Factors) { f.StorageConditions = 1.4 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NeutralFactors()
			tt.mutate(&f)
			err := f.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("ValidationError should match ErrValidation")
			}
		})
	}
}

func TestFactors_OutOfRange(t *testing.T) {
	f := Factors{
		Temperature:       20,
		Humidity:          120,
		Seasonality:       -0.5,
		StorageConditions: 0.5,
		HistoricalWaste:   1.5,
	}
	want := []string{"humidity", "seasonality", "historicalWaste"}
	if got := f.OutOfRange(); !reflect.DeepEqual(got, want) {
		t.Errorf("OutOfRange() = %v, want %v", got, want)
	}
	if got := NeutralFactors().OutOfRange(); len(got) != 0 {
		t.Errorf("neutral factors reported out of range: %v", got)
	}
}
