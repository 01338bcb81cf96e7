package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

type alertEnvelope struct {
	Type    string               `json:"type"`
	Payload models.CriticalAlert `json:"payload"`
}

func TestNewMessage(t *testing.T) {
	at := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	alert := &models.CriticalAlert{
		ID:         "a1",
		Type:       models.AlertTypeSpoilageRisk,
		Category:   "dairy",
		Severity:   models.TierCritical,
		ProductIDs: []string{"p1"},
		CreatedAt:  at,
	}

	msg, err := NewMessage(AlertEvent(EventAlertCreated, alert, at))
	if err != nil {
		t.Fatalf("NewMessage() = %v", err)
	}
	if string(msg.Key) != "dairy" || !msg.Time.Equal(at) {
		t.Errorf("message key %q time %v", msg.Key, msg.Time)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != EventAlertCreated {
		t.Errorf("headers = %+v", msg.Headers)
	}

	decoded, err := ParseMessageJSON[alertEnvelope](msg)
	if err != nil {
		t.Fatalf("ParseMessageJSON() = %v", err)
	}
	if decoded.Type != EventAlertCreated || decoded.Payload.Severity != models.TierCritical {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNewMessage_RejectsInvalidTier(t *testing.T) {
	alert := &models.CriticalAlert{ID: "a1", Category: "dairy", Severity: "severe"}
	if _, err := NewMessage(AlertEvent(EventAlertCreated, alert, time.Now())); err == nil {
		t.Error("NewMessage() accepted an unknown tier")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	job := &models.BatchJob{ID: "j1", Scope: models.ScopeAll}

	_ = r.Notify(ctx, JobEvent(job, time.Now()))
	_ = r.Notify(ctx, AlertEvent(EventAlertCreated, &models.CriticalAlert{Category: "dairy"}, time.Now()))

	if got := len(r.Events()); got != 2 {
		t.Errorf("Events() = %d, want 2", got)
	}
	jobs := r.Events(EventJobFinished)
	if len(jobs) != 1 || jobs[0].Key != models.ScopeAll || jobs[0].IsAlertEvent() {
		t.Errorf("Events(job) = %+v", jobs)
	}
}

func TestKafkaNotifier_Topics(t *testing.T) {
	n := NewKafkaNotifier(config.KafkaConfig{
		Brokers:    []string{"localhost:9092"},
		AlertTopic: "alerts",
		JobTopic:   "jobs",
	})
	defer n.Close()

	if n.alerts.Topic != "alerts" || n.jobs.Topic != "jobs" {
		t.Errorf("topics = %s, %s", n.alerts.Topic, n.jobs.Topic)
	}
}
