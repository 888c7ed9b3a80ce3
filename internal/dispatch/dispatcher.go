package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

const (
	incidentStreamName = "INCIDENTS"
	incidentSubjects   = "incident.*"
	subjectPrefix      = "incident."
	streamMaxAge       = 7 * 24 * time.Hour
	operationTimeout   = 30 * time.Second
)

// Event is the payload published across the dispatch boundary for every
// incident transition and SLA threshold.
type Event struct {
	ID          string            `json:"id"`
	Kind        model.EventKind   `json:"kind"`
	IncidentID  string            `json:"incident_id"`
	ProjectID   string            `json:"project_id"`
	MonitorID   string            `json:"monitor_id,omitempty"`
	ComponentID string            `json:"component_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	SecondsLeft int               `json:"seconds_left,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Dispatcher publishes incident events to JetStream. Publishing is the
// asynchronous handoff: delivery to mail/chat/webhook channels happens in
// the Worker, never on the caller's goroutine. At-least-once delivery is
// acceptable to all consumers.
type Dispatcher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher and ensures the incident stream exists
func NewDispatcher(js nats.JetStreamContext, logger *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		js:     js,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     incidentStreamName,
		Subjects: []string{incidentSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
	}, nats.Context(ctx))
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			logger.Info("Stream already exists", zap.String("stream", incidentStreamName))
			return d, nil
		}
		return nil, fmt.Errorf("failed to create incident stream: %w", err)
	}

	logger.Info("Stream created successfully", zap.String("stream", incidentStreamName))
	return d, nil
}

// Publish emits an event on incident.<kind>
func (d *Dispatcher) Publish(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := subjectPrefix + string(event.Kind)
	if _, err := d.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	d.logger.Debug("Dispatched incident event",
		zap.String("subject", subject),
		zap.String("incident_id", event.IncidentID))
	return nil
}

// SlaWarning implements the escalation notifier for pre-breach warnings
func (d *Dispatcher) SlaWarning(ctx context.Context, incidentID, projectID, monitorID string, secondsLeft int) error {
	return d.Publish(ctx, &Event{
		Kind:        model.EventSlaWarning,
		IncidentID:  incidentID,
		ProjectID:   projectID,
		MonitorID:   monitorID,
		SecondsLeft: secondsLeft,
	})
}

// SlaBreach implements the escalation notifier for breach notifications
func (d *Dispatcher) SlaBreach(ctx context.Context, incidentID, projectID, monitorID string) error {
	return d.Publish(ctx, &Event{
		Kind:       model.EventSlaBreach,
		IncidentID: incidentID,
		ProjectID:  projectID,
		MonitorID:  monitorID,
	})
}
