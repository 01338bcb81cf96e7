package util

import (
	"sync"
	"time"
)

// Clock supplies the current time. Services take a Clock so that cooldown
// windows and expiry arithmetic can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a stopped clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// TimestampLayout is the fixed-width UTC layout used for stored times.
// Fixed width keeps lexical order equal to chronological order, so range
// filters can compare the text columns directly.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp formats t for storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp. Plain RFC3339
// values are accepted as well.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// StartOfDay returns midnight of the given day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
