// Package util provides identifiers and clocks shared across StockSense.
package util

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator provides thread-safe UUIDv7 generation with monotonic timestamps.
type IDGenerator struct {
	mu       sync.Mutex
	lastTime int64
	counter  uint16
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewID generates a new UUIDv7 identifier. IDs from one generator sort in
// creation order, which keeps alert and job listings index-friendly.
func (g *IDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()

	if now <= g.lastTime {
		// Same millisecond, or the wall clock stepped back.
		now = g.lastTime
		g.counter++
		if g.counter == 0x0FFF {
			g.lastTime++
			now = g.lastTime
			g.counter = 0
		}
	} else {
		g.lastTime = now
		g.counter = 0
	}

	return generateUUIDv7(now, g.counter)
}

var defaultGenerator = NewIDGenerator()

// NewID generates a UUIDv7 from the package generator.
func NewID() string {
	return defaultGenerator.NewID()
}

// generateUUIDv7 creates a UUIDv7 from a timestamp and counter.
func generateUUIDv7(unixMilli int64, counter uint16) string {
	var id [16]byte

	// 48-bit big-endian millisecond timestamp
	binary.BigEndian.PutUint32(id[0:4], uint32(unixMilli>>16))
	binary.BigEndian.PutUint16(id[4:6], uint16(unixMilli))

	id[6] = 0x70 | (byte(counter>>8) & 0x0F)
	id[7] = byte(counter)

	var randomBytes [8]byte
	_, _ = rand.Read(randomBytes[:])
	copy(id[8:], randomBytes[:])
	id[8] = (id[8] & 0x3F) | 0x80 // RFC 4122 variant

	return uuid.UUID(id).String()
}

// ParseID validates and normalizes a UUID string.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID format.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// DeterministicID generates a stable v4-shaped ID from seed. Seed data and
// tests use it; production code uses NewID.
func DeterministicID(seed int64) string {
	var id [16]byte

	binary.BigEndian.PutUint64(id[0:8], uint64(seed))
	binary.BigEndian.PutUint64(id[8:16], uint64(seed*31))

	id[6] = (id[6] & 0x0F) | 0x40
	id[8] = (id[8] & 0x3F) | 0x80

	return uuid.UUID(id).String()
}
