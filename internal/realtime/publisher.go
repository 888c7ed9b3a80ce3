package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

const (
	countdownSubjectPrefix = "sla.countdown."
	incidentSubjectPrefix  = "realtime.incident."
)

// CountdownUpdate is the live countdown message pushed to UI subscribers
type CountdownUpdate struct {
	IncidentID  string `json:"incident_id"`
	MonitorID   string `json:"monitor_id"`
	SecondsLeft int    `json:"seconds_left"`
}

// IncidentUpdate notifies UI subscribers of a lifecycle transition
type IncidentUpdate struct {
	Kind     model.EventKind `json:"kind"`
	Incident *model.Incident `json:"incident"`
	SentAt   time.Time       `json:"sent_at"`
}

// Publisher pushes best-effort live updates over core NATS. No delivery
// guarantee is required; offline subscribers simply miss updates.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a new realtime publisher
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{
		nc:     nc,
		logger: logger,
	}
}

// PublishCountdown pushes the remaining seconds for a tracked pair
func (p *Publisher) PublishCountdown(incidentID, monitorID string, secondsLeft int) error {
	data, err := json.Marshal(CountdownUpdate{
		IncidentID:  incidentID,
		MonitorID:   monitorID,
		SecondsLeft: secondsLeft,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal countdown update: %w", err)
	}

	if err := p.nc.Publish(countdownSubjectPrefix+incidentID, data); err != nil {
		return fmt.Errorf("failed to publish countdown update: %w", err)
	}
	return nil
}

// PublishIncident pushes an incident lifecycle update
func (p *Publisher) PublishIncident(kind model.EventKind, incident *model.Incident) error {
	data, err := json.Marshal(IncidentUpdate{
		Kind:     kind,
		Incident: incident,
		SentAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal incident update: %w", err)
	}

	if err := p.nc.Publish(incidentSubjectPrefix+incident.ID, data); err != nil {
		return fmt.Errorf("failed to publish incident update: %w", err)
	}
	return nil
}
