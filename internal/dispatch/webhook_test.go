package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

func TestWebhookChannel_Send(t *testing.T) {
	var received SlackWebhookRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(zap.NewNop(), server.URL)
	err := channel.Send(context.Background(), &Event{
		Kind:        model.EventSlaBreach,
		IncidentID:  "incident-1",
		ProjectID:   "project-1",
		MonitorID:   "monitor-1",
		ComponentID: "component-1",
		OccurredAt:  time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Communication SLA breached", received.Text)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "danger", received.Attachments[0].Color)

	fields := map[string]string{}
	for _, field := range received.Attachments[0].Fields {
		fields[field.Title] = field.Value
	}
	assert.Equal(t, "incident-1", fields["Incident"])
	assert.Equal(t, "monitor-1", fields["Monitor"])
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewWebhookChannel(zap.NewNop(), server.URL)
	err := channel.Send(context.Background(), &Event{
		Kind:       model.EventCreated,
		IncidentID: "incident-1",
	})
	assert.Error(t, err)
}

func TestSubjectAndBody(t *testing.T) {
	created := &Event{Kind: model.EventCreated, Title: "API is offline", IncidentID: "incident-1", ProjectID: "project-1"}
	assert.Equal(t, "Incident detected: API is offline", subjectFor(created))

	warning := &Event{Kind: model.EventSlaWarning, IncidentID: "incident-1", ProjectID: "project-1", MonitorID: "monitor-1", SecondsLeft: 120}
	assert.Equal(t, "Communication SLA warning", subjectFor(warning))
	body := bodyFor(warning)
	assert.Contains(t, body, "Monitor: monitor-1")
	assert.Contains(t, body, "120 seconds remain")
}
