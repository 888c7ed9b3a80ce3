package incident

import "errors"

var (
	// ErrIncidentNotFound is returned when an incident does not exist or
	// is soft-deleted
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrNoMonitors is returned when create is called without monitors
	ErrNoMonitors = errors.New("at least one monitor is required to create an incident")

	// ErrDuplicateMonitor is returned when the same monitor is selected twice
	ErrDuplicateMonitor = errors.New("duplicate monitor selection")

	// ErrMonitorNotFound is returned when a referenced monitor does not
	// exist or belongs to another project
	ErrMonitorNotFound = errors.New("monitor not found in project")

	// ErrNoEnabledMonitors is returned when every selected monitor is disabled
	ErrNoEnabledMonitors = errors.New("at least one enabled monitor is required to create an incident")

	// ErrTemplateRender is returned when the project's incident templates
	// fail to render
	ErrTemplateRender = errors.New("failed to render incident template")
)
