package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// AlertTypeSpoilageRisk marks alerts raised by a scoring pass.
const AlertTypeSpoilageRisk = "spoilage_risk"

// AlertStatus is the derived lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
	AlertStatusAll      AlertStatus = "all"
)

// ParseAlertStatus accepts open, resolved, all, or empty (open).
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlertStatusOpen:
		return AlertStatusOpen, nil
	case AlertStatusResolved:
		return AlertStatusResolved, nil
	case AlertStatusAll:
		return AlertStatusAll, nil
	default:
		return "", NewValidationError("status", "%q is not one of open, resolved, all", s)
	}
}

// CriticalAlert records a group of at-risk products in one category. It
// is never changed after creation except to mark it resolved.
type CriticalAlert struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Category       string     `json:"category"`
	Severity       RiskTier   `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	ProductIDs     []string   `json:"productIds"`
	DedupKey       string     `json:"dedupKey"`
	Resolved       bool       `json:"resolved"`
	ResolutionNote *string    `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Status returns open or resolved.
func (a *CriticalAlert) Status() AlertStatus {
	if a.Resolved {
		return AlertStatusResolved
	}
	return AlertStatusOpen
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Status   AlertStatus
	Category string
	Since    *time.Time
	Limit    int
}

// DedupKey derives the de-duplication key for a category and a set of
// product ids. Order and duplicates in ids do not affect the key.
func DedupKey(category string, ids []string) string {
	set := SortedUnique(ids)
	h := sha256.New()
	h.Write([]byte(category))
	for _, id := range set {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return category + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// SortedUnique returns a sorted copy of ids without duplicates or blanks.
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
