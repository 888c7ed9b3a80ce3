package model

import (
	"time"
)

// MonitorStatus represents the operational status of a monitor
type MonitorStatus string

const (
	MonitorStatusOnline    MonitorStatus = "online"
	MonitorStatusDegraded  MonitorStatus = "degraded"
	MonitorStatusOffline   MonitorStatus = "offline"
	MonitorStatusRecovered MonitorStatus = "recovered"
)

// MonitorRef is a reference to a monitor attached to an incident
type MonitorRef struct {
	MonitorID string `json:"monitor_id"`
}

// ProbeReport is a probe observation contributing evidence for an incident
type ProbeReport struct {
	ProbeID        string    `json:"probe_id"`
	ReportedStatus string    `json:"reported_status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Incident represents a tracked outage record linked to one or more monitors.
//
// IDNumber is a per-project sequence assigned at creation and never reused:
// it counts both live and soft-deleted incidents, so deleting an incident
// does not free its number.
type Incident struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	IDNumber        int    `json:"id_number"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	IncidentType    string `json:"incident_type"`
	ManuallyCreated bool   `json:"manually_created"`
	CreatedByID     string `json:"created_by_id,omitempty"`

	// Monitors is ordered and non-empty while the incident is not deleted.
	Monitors []MonitorRef `json:"monitors"`

	// NotClosedBy holds user ids that have not yet dismissed the incident
	// in their own view. It starts as the full project membership.
	NotClosedBy []string `json:"not_closed_by"`

	// BreachedCommunicationSlas lists monitors whose SLA countdown reached
	// zero before acknowledgment, deduplicated by monitor id.
	BreachedCommunicationSlas []MonitorRef `json:"breached_communication_slas,omitempty"`

	Probes []ProbeReport `json:"probes,omitempty"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`

	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasMonitor reports whether the incident references the given monitor.
func (i *Incident) HasMonitor(monitorID string) bool {
	for _, ref := range i.Monitors {
		if ref.MonitorID == monitorID {
			return true
		}
	}
	return false
}

// HasBreached reports whether the monitor is already recorded as breached.
func (i *Incident) HasBreached(monitorID string) bool {
	for _, ref := range i.BreachedCommunicationSlas {
		if ref.MonitorID == monitorID {
			return true
		}
	}
	return false
}
