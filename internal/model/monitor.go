package model

// Monitor represents a monitored resource belonging to a project
type Monitor struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	ComponentID string        `json:"component_id,omitempty"`
	Name        string        `json:"name"`
	Type        string        `json:"type"` // "http", "ping", "database", etc.
	Status      MonitorStatus `json:"status"`
	Disabled    bool          `json:"disabled"`

	// SlaPolicyID is an optional per-monitor communication SLA override.
	// When empty, the project's default policy applies.
	SlaPolicyID string `json:"sla_policy_id,omitempty"`
}

// Project groups monitors and the members that receive incident updates
type Project struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`

	// Templates used to render title/description of automatically
	// created incidents.
	TitleTemplate       string `json:"title_template,omitempty"`
	DescriptionTemplate string `json:"description_template,omitempty"`
}
