package model

import "time"

// EventKind identifies an incident lifecycle transition or SLA threshold
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventAcknowledged EventKind = "acknowledged"
	EventResolved     EventKind = "resolved"
	EventDeleted      EventKind = "deleted"
	EventRestored     EventKind = "restored"
	EventSlaWarning   EventKind = "sla_warning"
	EventSlaBreach    EventKind = "sla_breach"
)

// TimelineEvent is an audit record of a single incident transition.
// Breach history is recoverable from the timeline when a write to the
// incident record itself fails.
type TimelineEvent struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Kind       EventKind `json:"kind"`
	Actor      string    `json:"actor,omitempty"`
	ProbeID    string    `json:"probe_id,omitempty"`
	MonitorID  string    `json:"monitor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
