package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
	"github.com/uptimekit/incident-engine/internal/testutil"
)

func TestPublisher_PublishCountdown(t *testing.T) {
	nc, _, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	sub, err := nc.SubscribeSync("sla.countdown.incident-1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publisher := NewPublisher(nc, zap.NewNop())
	require.NoError(t, publisher.PublishCountdown("incident-1", "monitor-1", 42))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var update CountdownUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, "incident-1", update.IncidentID)
	assert.Equal(t, "monitor-1", update.MonitorID)
	assert.Equal(t, 42, update.SecondsLeft)
}

func TestPublisher_PublishIncident(t *testing.T) {
	nc, _, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	sub, err := nc.SubscribeSync("realtime.incident.incident-1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publisher := NewPublisher(nc, zap.NewNop())
	require.NoError(t, publisher.PublishIncident(model.EventResolved, &model.Incident{
		ID:        "incident-1",
		ProjectID: "project-1",
		Title:     "API is offline",
		Resolved:  true,
	}))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var update IncidentUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, model.EventResolved, update.Kind)
	require.NotNil(t, update.Incident)
	assert.True(t, update.Incident.Resolved)
	assert.False(t, update.SentAt.IsZero())
}
