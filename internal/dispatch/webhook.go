package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

// SlackField is one key/value pair inside a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackAttachment is the colored block of a Slack webhook message
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields"`
	Timestamp int64        `json:"ts"`
}

// SlackWebhookRequest is the payload posted to a Slack-compatible webhook
type SlackWebhookRequest struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

// WebhookChannel posts incident events to a Slack-compatible webhook URL
type WebhookChannel struct {
	logger *zap.Logger
	url    string
	client *http.Client
}

// NewWebhookChannel creates a new webhook channel
func NewWebhookChannel(logger *zap.Logger, url string) *WebhookChannel {
	return &WebhookChannel{
		logger: logger,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Channel.Name
func (c *WebhookChannel) Name() string { return "webhook" }

// Send implements Channel.Send
func (c *WebhookChannel) Send(ctx context.Context, event *Event) error {
	payload := SlackWebhookRequest{
		Username:  "Incident Engine",
		IconEmoji: emojiFor(event.Kind),
		Text:      subjectFor(event),
		Attachments: []SlackAttachment{
			{
				Color: colorFor(event.Kind),
				Title: subjectFor(event),
				Fields: []SlackField{
					{Title: "Incident", Value: event.IncidentID, Short: true},
					{Title: "Project", Value: event.ProjectID, Short: true},
					{Title: "Monitor", Value: event.MonitorID, Short: true},
					{Title: "Component", Value: event.ComponentID, Short: true},
				},
				Timestamp: event.OccurredAt.Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Webhook notification sent",
		zap.String("incident_id", event.IncidentID),
		zap.String("kind", string(event.Kind)))
	return nil
}

func colorFor(kind model.EventKind) string {
	switch kind {
	case model.EventCreated, model.EventSlaBreach:
		return "danger"
	case model.EventSlaWarning:
		return "warning"
	case model.EventResolved:
		return "good"
	default:
		return "#439FE0"
	}
}

func emojiFor(kind model.EventKind) string {
	switch kind {
	case model.EventCreated:
		return ":rotating_light:"
	case model.EventResolved:
		return ":white_check_mark:"
	case model.EventSlaWarning, model.EventSlaBreach:
		return ":alarm_clock:"
	default:
		return ":bell:"
	}
}
