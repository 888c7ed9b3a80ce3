package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

// EmailConfig holds SMTP settings for the email channel
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// EmailChannel delivers incident notifications over SMTP
type EmailChannel struct {
	logger *zap.Logger
	config EmailConfig
}

// NewEmailChannel creates a new email channel
func NewEmailChannel(logger *zap.Logger, config EmailConfig) *EmailChannel {
	return &EmailChannel{
		logger: logger,
		config: config,
	}
}

// Name implements Channel.Name
func (c *EmailChannel) Name() string { return "email" }

// Send implements Channel.Send
func (c *EmailChannel) Send(ctx context.Context, event *Event) error {
	if len(c.config.Recipients) == 0 {
		return nil
	}

	auth := smtp.PlainAuth("",
		c.config.Username,
		c.config.Password,
		c.config.Host)

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n",
		c.config.From,
		strings.Join(c.config.Recipients, ", "),
		subjectFor(event),
		bodyFor(event))

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	if err := smtp.SendMail(addr, auth, c.config.From, c.config.Recipients, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Info("Email notification sent",
		zap.String("incident_id", event.IncidentID),
		zap.String("kind", string(event.Kind)),
		zap.Int("recipients", len(c.config.Recipients)))
	return nil
}

func subjectFor(event *Event) string {
	switch event.Kind {
	case model.EventCreated:
		return fmt.Sprintf("Incident detected: %s", event.Title)
	case model.EventAcknowledged:
		return fmt.Sprintf("Incident acknowledged: %s", event.Title)
	case model.EventResolved:
		return fmt.Sprintf("Incident resolved: %s", event.Title)
	case model.EventSlaWarning:
		return "Communication SLA warning"
	case model.EventSlaBreach:
		return "Communication SLA breached"
	default:
		return fmt.Sprintf("Incident update: %s", event.Kind)
	}
}

func bodyFor(event *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\r\n", event.IncidentID)
	fmt.Fprintf(&b, "Project: %s\r\n", event.ProjectID)
	if event.MonitorID != "" {
		fmt.Fprintf(&b, "Monitor: %s\r\n", event.MonitorID)
	}
	if event.ComponentID != "" {
		fmt.Fprintf(&b, "Component: %s\r\n", event.ComponentID)
	}
	switch event.Kind {
	case model.EventSlaWarning:
		fmt.Fprintf(&b, "The incident is still unacknowledged. %d seconds remain before the communication SLA is breached.\r\n", event.SecondsLeft)
	case model.EventSlaBreach:
		b.WriteString("The communication SLA for this incident has been breached.\r\n")
	}
	return b.String()
}
