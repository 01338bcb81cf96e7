package models

import (
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD date.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Pagination holds list window parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// Page size bounds for list reads.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Normalize clamps the window to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
