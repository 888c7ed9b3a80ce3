package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Channel delivers an incident event over one notification medium
// (mail, chat, webhook). Failures are retried through redelivery.
type Channel interface {
	// Name identifies the channel in logs
	Name() string

	// Send delivers the event
	Send(ctx context.Context, event *Event) error
}

// Worker consumes dispatched events and fans them out to every registered
// channel. A channel failure NAKs the message for redelivery; consumers are
// expected to tolerate duplicates.
type Worker struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	channels []Channel
	sub      *nats.Subscription
}

// NewWorker creates a new dispatch worker
func NewWorker(logger *zap.Logger, js nats.JetStreamContext, channels ...Channel) *Worker {
	return &Worker{
		logger:   logger,
		js:       js,
		channels: channels,
	}
}

// Start subscribes to incident events
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.js.Subscribe(incidentSubjects, func(msg *nats.Msg) {
		w.handle(ctx, msg)
	}, nats.Durable("incident-dispatch"), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("failed to subscribe to incident events: %w", err)
	}
	w.sub = sub

	w.logger.Info("Dispatch worker started", zap.Int("channels", len(w.channels)))
	return nil
}

// Stop unsubscribes the worker
func (w *Worker) Stop() {
	if w.sub != nil {
		w.sub.Unsubscribe()
	}
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		w.logger.Error("Failed to unmarshal incident event", zap.Error(err))
		msg.Term()
		return
	}

	failed := false
	for _, channel := range w.channels {
		if err := channel.Send(ctx, &event); err != nil {
			failed = true
			w.logger.Error("Failed to deliver notification",
				zap.String("channel", channel.Name()),
				zap.String("event_id", event.ID),
				zap.String("incident_id", event.IncidentID),
				zap.Error(err))
		}
	}

	if failed {
		msg.Nak()
		return
	}
	msg.Ack()
}
