// Package notify publishes engine events: alert creation and resolution,
// and batch job completion.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stocksense/stocksense/internal/models"
)

// Event types.
const (
	EventAlertCreated  = "alert.created"
	EventAlertResolved = "alert.resolved"
	EventJobFinished   = "job.finished"
)

// Event is one outbound notification. Key orders events per entity on
// partitioned transports.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// IsAlertEvent reports whether the event concerns an alert.
func (e Event) IsAlertEvent() bool {
	return strings.HasPrefix(e.Type, "alert.")
}

// AlertEvent builds an event for an alert transition.
func AlertEvent(eventType string, a *models.CriticalAlert, at time.Time) Event {
	return Event{Type: eventType, Key: a.Category, OccurredAt: at, Payload: a}
}

// JobEvent builds the completion event for a job.
func JobEvent(j *models.BatchJob, at time.Time) Event {
	return Event{Type: EventJobFinished, Key: j.Scope, OccurredAt: at, Payload: j}
}

// Notifier delivers events. Delivery failures are returned to the caller,
// which logs them; they never roll back the state change that caused them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs ev at info level.
func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.logger.Info("event", "type", ev.Type, "key", ev.Key, "occurred_at", ev.OccurredAt)
	return nil
}

// Close is a no-op.
func (n *LogNotifier) Close() error {
	return nil
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify records ev.
func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error {
	return nil
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if len(types) == 0 || contains(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
