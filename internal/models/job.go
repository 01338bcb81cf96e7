package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobTrigger records what created a job.
type JobTrigger string

const (
	JobTriggerAPI      JobTrigger = "api"
	JobTriggerSchedule JobTrigger = "schedule"
	JobTriggerCLI      JobTrigger = "cli"
)

// ScopeAll covers the whole catalog.
const ScopeAll = "all"

const categoryScopePrefix = "category:"

// CategoryScope returns the scope string for one category.
func CategoryScope(category string) string {
	return categoryScopePrefix + category
}

// ParseScope normalizes a scope string. Empty means the whole catalog.
// It returns the category when the scope is category-limited.
func ParseScope(s string) (scope, category string, err error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == ScopeAll:
		return ScopeAll, "", nil
	case strings.HasPrefix(s, categoryScopePrefix):
		category = strings.TrimSpace(strings.TrimPrefix(s, categoryScopePrefix))
		if category == "" {
			return "", "", NewValidationError("scope", "category scope needs a category name")
		}
		return CategoryScope(category), category, nil
	default:
		return "", "", NewValidationError("scope", "%q must be %q or %q<name>", s, ScopeAll, categoryScopePrefix)
	}
}

// BatchJob tracks one catalog re-scoring pass.
type BatchJob struct {
	ID             string     `json:"id"`
	Scope          string     `json:"scope"`
	Trigger        JobTrigger `json:"trigger"`
	Status         JobStatus  `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ItemsProcessed int        `json:"itemsProcessed"`
	ItemsSucceeded int        `json:"itemsSucceeded"`
	ItemsFailed    int        `json:"itemsFailed"`
	ErrorSummary   *string    `json:"errorSummary,omitempty"`
}

// FailureRatio returns itemsFailed / itemsProcessed, zero for an empty pass.
func (j *BatchJob) FailureRatio() float64 {
	if j.ItemsProcessed == 0 {
		return 0
	}
	return float64(j.ItemsFailed) / float64(j.ItemsProcessed)
}

// Summary returns a one-line human-readable description of the job.
func (j *BatchJob) Summary() string {
	base := fmt.Sprintf("job %s [%s] %s: %d processed, %d failed",
		j.ID, j.Scope, j.Status, j.ItemsProcessed, j.ItemsFailed)
	if j.ErrorSummary != nil {
		return base + " (" + *j.ErrorSummary + ")"
	}
	return base
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status *JobStatus
	Scope  string
	Limit  int
}
