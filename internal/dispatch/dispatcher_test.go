package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
	"github.com/uptimekit/incident-engine/internal/testutil"
)

func TestDispatcher_Publish(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	dispatcher, err := NewDispatcher(js, zap.NewNop())
	require.NoError(t, err)

	sub, err := js.SubscribeSync("incident.created")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	err = dispatcher.Publish(context.Background(), &Event{
		Kind:        model.EventCreated,
		IncidentID:  "incident-1",
		ProjectID:   "project-1",
		MonitorID:   "monitor-1",
		ComponentID: "component-1",
		Title:       "API is offline",
	})
	require.NoError(t, err)

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var received Event
	require.NoError(t, json.Unmarshal(msg.Data, &received))
	assert.Equal(t, "incident-1", received.IncidentID)
	assert.Equal(t, model.EventCreated, received.Kind)
	assert.Equal(t, "API is offline", received.Title)
	assert.NotEmpty(t, received.ID)
	assert.False(t, received.OccurredAt.IsZero())
}

func TestDispatcher_CreatingStreamTwiceIsHarmless(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := NewDispatcher(js, zap.NewNop())
	require.NoError(t, err)
	_, err = NewDispatcher(js, zap.NewNop())
	require.NoError(t, err)
}

func TestDispatcher_SlaNotificationSubjects(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	dispatcher, err := NewDispatcher(js, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	warnings, err := js.SubscribeSync("incident.sla_warning")
	require.NoError(t, err)
	defer warnings.Unsubscribe()
	breaches, err := js.SubscribeSync("incident.sla_breach")
	require.NoError(t, err)
	defer breaches.Unsubscribe()

	require.NoError(t, dispatcher.SlaWarning(ctx, "incident-1", "project-1", "monitor-1", 120))
	require.NoError(t, dispatcher.SlaBreach(ctx, "incident-1", "project-1", "monitor-1"))

	msg, err := warnings.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var warning Event
	require.NoError(t, json.Unmarshal(msg.Data, &warning))
	assert.Equal(t, model.EventSlaWarning, warning.Kind)
	assert.Equal(t, 120, warning.SecondsLeft)

	msg, err = breaches.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var breach Event
	require.NoError(t, json.Unmarshal(msg.Data, &breach))
	assert.Equal(t, model.EventSlaBreach, breach.Kind)
	assert.Equal(t, "monitor-1", breach.MonitorID)
}
