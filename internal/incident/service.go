package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/dispatch"
	"github.com/uptimekit/incident-engine/internal/model"
	"github.com/uptimekit/incident-engine/internal/store"
	"github.com/uptimekit/incident-engine/internal/timeline"
)

// EscalationMode names what acknowledgment does to the SLA countdown
type EscalationMode string

const (
	// EscalationSingleWindow stops SLA tracking on acknowledgment: the
	// countdown measures time to first response only.
	EscalationSingleWindow EscalationMode = "singleWindow"

	// EscalationRepeatingWindow restarts the countdown on acknowledgment,
	// so the SLA governs a chain of escalation waves until resolution.
	// This is the default.
	EscalationRepeatingWindow EscalationMode = "repeatingWindow"
)

// TimerRegistry is the SLA timer registry consumed by the state machine
type TimerRegistry interface {
	StartTracking(ctx context.Context, incidentID, projectID string, monitorIDs []string)
	StopTracking(incidentID, monitorID string)
	StopAll(incidentID string)
	RefreshTracking(ctx context.Context, incidentID, monitorID string)
}

// Dispatcher publishes lifecycle events across the dispatch boundary
type Dispatcher interface {
	Publish(ctx context.Context, event *dispatch.Event) error
}

// RealtimePublisher pushes best-effort live updates to UI subscribers
type RealtimePublisher interface {
	PublishIncident(kind model.EventKind, incident *model.Incident) error
}

// Options configures the state machine
type Options struct {
	EscalationMode EscalationMode
}

// Service is the incident state machine. It is the only writer of incident
// status fields. Transitions fully apply their primary state change or fail
// atomically; timers, notifications and realtime updates are secondary
// effects whose failures are logged and never propagated.
type Service struct {
	logger     *zap.Logger
	incidents  store.IncidentStorage
	catalog    store.CatalogStorage
	timers     TimerRegistry
	dispatcher Dispatcher
	realtime   RealtimePublisher
	timeline   timeline.Storage
	mode       EscalationMode
	now        func() time.Time
}

// NewService creates the incident state machine
func NewService(logger *zap.Logger, incidents store.IncidentStorage, catalog store.CatalogStorage,
	timers TimerRegistry, dispatcher Dispatcher, realtime RealtimePublisher,
	timelineStore timeline.Storage, opts Options) *Service {
	mode := opts.EscalationMode
	if mode == "" {
		mode = EscalationRepeatingWindow
	}
	return &Service{
		logger:     logger,
		incidents:  incidents,
		catalog:    catalog,
		timers:     timers,
		dispatcher: dispatcher,
		realtime:   realtime,
		timeline:   timelineStore,
		mode:       mode,
		now:        time.Now,
	}
}

// CreateInput carries everything needed to open an incident
type CreateInput struct {
	ProjectID       string
	MonitorIDs      []string
	CreatedByID     string
	IncidentType    string
	ManuallyCreated bool
	Title           string // manual incidents only
	Description     string // manual incidents only
	ProbeID         string
}

// Create opens a new incident. Validation happens before any side effect:
// a rejected create leaves no record, no timer and no notification behind.
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Incident, error) {
	if len(input.MonitorIDs) == 0 {
		return nil, ErrNoMonitors
	}
	seen := make(map[string]struct{}, len(input.MonitorIDs))
	for _, id := range input.MonitorIDs {
		if _, ok := seen[id]; ok {
			return nil, ErrDuplicateMonitor
		}
		seen[id] = struct{}{}
	}

	monitors, err := s.catalog.MonitorsByID(ctx, input.MonitorIDs)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMonitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load monitors: %w", err)
	}

	enabled := make([]*model.Monitor, 0, len(monitors))
	for _, monitor := range monitors {
		if monitor.ProjectID != input.ProjectID {
			return nil, ErrMonitorNotFound
		}
		if !monitor.Disabled {
			enabled = append(enabled, monitor)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoEnabledMonitors
	}

	project, err := s.catalog.Project(ctx, input.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	liveCount, err := s.incidents.CountByProject(ctx, input.ProjectID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	deletedCount, err := s.incidents.CountByProject(ctx, input.ProjectID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count deleted incidents: %w", err)
	}

	now := s.now()
	incident := &model.Incident{
		ID:              uuid.New().String(),
		ProjectID:       input.ProjectID,
		IDNumber:        liveCount + deletedCount + 1,
		IncidentType:    input.IncidentType,
		ManuallyCreated: input.ManuallyCreated,
		CreatedByID:     input.CreatedByID,
		Monitors:        make([]model.MonitorRef, 0, len(enabled)),
		NotClosedBy:     append([]string(nil), project.Members...),
		CreatedAt:       now,
	}
	for _, monitor := range enabled {
		incident.Monitors = append(incident.Monitors, model.MonitorRef{MonitorID: monitor.ID})
	}

	if input.ManuallyCreated {
		incident.Title = input.Title
		incident.Description = input.Description
		if incident.Title == "" {
			incident.Title = fallbackTitle
		}
	} else {
		title, description, err := renderTemplates(project,
			newTemplateInput(project, enabled[0], input.IncidentType, now))
		if err != nil {
			return nil, err
		}
		incident.Title = title
		incident.Description = description
	}

	if input.ProbeID != "" {
		incident.Probes = []model.ProbeReport{{
			ProbeID:        input.ProbeID,
			ReportedStatus: input.IncidentType,
			UpdatedAt:      now,
		}}
	}

	if err := s.incidents.Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist incident: %w", err)
	}

	s.appendTimeline(ctx, incident.ID, model.EventCreated, input.CreatedByID, input.ProbeID, "")
	s.dispatchPerMonitor(ctx, model.EventCreated, incident)
	s.publishRealtime(model.EventCreated, incident)

	monitorIDs := make([]string, 0, len(enabled))
	for _, monitor := range enabled {
		monitorIDs = append(monitorIDs, monitor.ID)
	}
	s.timers.StartTracking(ctx, incident.ID, incident.ProjectID, monitorIDs)

	s.logger.Info("Incident created",
		zap.String("incident_id", incident.ID),
		zap.String("project_id", incident.ProjectID),
		zap.Int("id_number", incident.IDNumber),
		zap.Int("monitors", len(incident.Monitors)))
	return incident, nil
}

// Get retrieves a live incident
func (s *Service) Get(ctx context.Context, id string) (*model.Incident, error) {
	incident, err := s.incidents.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrIncidentNotFound
	}
	return incident, err
}

// Acknowledge marks the incident acknowledged. Calling it on an already
// acknowledged incident returns the current state unchanged.
func (s *Service) Acknowledge(ctx context.Context, id, userID, probeID string) (*model.Incident, error) {
	incident, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Acknowledged {
		return incident, nil
	}

	now := s.now()
	incident.Acknowledged = true
	incident.AcknowledgedAt = &now
	incident.AcknowledgedBy = userID
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist acknowledgment: %w", err)
	}

	s.appendTimeline(ctx, incident.ID, model.EventAcknowledged, userID, probeID, "")
	s.dispatchPerMonitor(ctx, model.EventAcknowledged, incident)
	s.publishRealtime(model.EventAcknowledged, incident)

	for _, ref := range incident.Monitors {
		switch s.mode {
		case EscalationSingleWindow:
			s.timers.StopTracking(incident.ID, ref.MonitorID)
		default:
			s.timers.RefreshTracking(ctx, incident.ID, ref.MonitorID)
		}
	}

	s.logger.Info("Incident acknowledged",
		zap.String("incident_id", incident.ID),
		zap.String("user_id", userID))
	return incident, nil
}

// Resolve marks the incident resolved, force-acknowledging it first when
// needed. Resolution always disarms SLA tracking and transitions the
// affected monitors to recovered.
func (s *Service) Resolve(ctx context.Context, id, userID, probeID string) (*model.Incident, error) {
	incident, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.Resolved {
		return incident, nil
	}

	now := s.now()
	if !incident.Acknowledged {
		incident.Acknowledged = true
		incident.AcknowledgedAt = &now
		incident.AcknowledgedBy = userID
		s.appendTimeline(ctx, incident.ID, model.EventAcknowledged, userID, probeID, "")
	}
	incident.Resolved = true
	incident.ResolvedAt = &now
	incident.ResolvedBy = userID
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}

	for _, ref := range incident.Monitors {
		s.timers.StopTracking(incident.ID, ref.MonitorID)
		if err := s.catalog.SetMonitorStatus(ctx, ref.MonitorID, model.MonitorStatusRecovered); err != nil {
			s.logger.Error("Failed to update monitor status",
				zap.String("monitor_id", ref.MonitorID),
				zap.Error(err))
		}
	}

	s.appendTimeline(ctx, incident.ID, model.EventResolved, userID, probeID, "")
	s.dispatchPerMonitor(ctx, model.EventResolved, incident)
	s.publishRealtime(model.EventResolved, incident)

	s.logger.Info("Incident resolved",
		zap.String("incident_id", incident.ID),
		zap.String("user_id", userID))
	return incident, nil
}

// Close removes the user from the incident's notClosedBy set. Purely a
// per-user view-state change; timers are untouched.
func (s *Service) Close(ctx context.Context, id, userID string) (*model.Incident, error) {
	incident, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	remaining := incident.NotClosedBy[:0]
	for _, uid := range incident.NotClosedBy {
		if uid != userID {
			remaining = append(remaining, uid)
		}
	}
	incident.NotClosedBy = remaining

	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist close: %w", err)
	}
	return incident, nil
}

// AddNotClosedBy grows the notClosedBy set when users join the project,
// so the incident appears as unclosed in their view.
func (s *Service) AddNotClosedBy(ctx context.Context, id string, userIDs []string) (*model.Incident, error) {
	incident, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(incident.NotClosedBy))
	for _, uid := range incident.NotClosedBy {
		existing[uid] = struct{}{}
	}
	for _, uid := range userIDs {
		if _, ok := existing[uid]; !ok {
			incident.NotClosedBy = append(incident.NotClosedBy, uid)
			existing[uid] = struct{}{}
		}
	}

	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist viewers: %w", err)
	}
	return incident, nil
}

// Delete soft-deletes the incident and cancels all of its SLA timers
func (s *Service) Delete(ctx context.Context, id, userID string) (*model.Incident, error) {
	incident, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.timers.StopAll(incident.ID)

	now := s.now()
	incident.Deleted = true
	incident.DeletedAt = &now
	incident.DeletedBy = userID
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist deletion: %w", err)
	}

	s.appendTimeline(ctx, incident.ID, model.EventDeleted, userID, "", "")
	s.publishRealtime(model.EventDeleted, incident)
	return incident, nil
}

// Restore reverses a soft delete. SLA tracking is not resurrected: timers
// are only created by Create and by acknowledge-refresh, never by Restore.
func (s *Service) Restore(ctx context.Context, id string) (*model.Incident, error) {
	incident, err := s.incidents.GetAny(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !incident.Deleted {
		return incident, nil
	}

	incident.Deleted = false
	incident.DeletedAt = nil
	incident.DeletedBy = ""
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to persist restore: %w", err)
	}

	s.appendTimeline(ctx, incident.ID, model.EventRestored, "", "", "")
	s.publishRealtime(model.EventRestored, incident)
	return incident, nil
}

// RemoveMonitor drops the monitor from every incident referencing it. An
// incident left with no monitors is soft-deleted, since the non-empty
// monitor invariant only holds for live incidents. The pair's timer is
// stopped before the record changes so no dangling tick can fire.
func (s *Service) RemoveMonitor(ctx context.Context, monitorID, userID string) error {
	incidents, err := s.incidents.ListByMonitor(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("failed to list incidents for monitor: %w", err)
	}

	for _, incident := range incidents {
		s.timers.StopTracking(incident.ID, monitorID)

		remaining := make([]model.MonitorRef, 0, len(incident.Monitors))
		for _, ref := range incident.Monitors {
			if ref.MonitorID != monitorID {
				remaining = append(remaining, ref)
			}
		}
		incident.Monitors = remaining

		if len(remaining) == 0 {
			now := s.now()
			incident.Deleted = true
			incident.DeletedAt = &now
			incident.DeletedBy = userID
			s.appendTimeline(ctx, incident.ID, model.EventDeleted, userID, "", monitorID)
		}

		if err := s.incidents.Update(ctx, incident); err != nil {
			return fmt.Errorf("failed to persist monitor removal: %w", err)
		}
		s.publishRealtime(model.EventDeleted, incident)
	}
	return nil
}

// RecordBreach appends the monitor to the incident's breached SLA set,
// deduplicated by monitor id. The timeline entry is written first so the
// breach stays discoverable even when the incident write fails.
func (s *Service) RecordBreach(ctx context.Context, incidentID, monitorID string) error {
	incident, err := s.Get(ctx, incidentID)
	if err != nil {
		return err
	}
	if incident.HasBreached(monitorID) {
		return nil
	}

	s.appendTimeline(ctx, incidentID, model.EventSlaBreach, "", "", monitorID)

	incident.BreachedCommunicationSlas = append(incident.BreachedCommunicationSlas,
		model.MonitorRef{MonitorID: monitorID})
	if err := s.incidents.Update(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist breach: %w", err)
	}
	return nil
}

// dispatchPerMonitor emits one event per affected monitor. Component
// attribution uses the first monitor's component for every event; it is
// not resolved per monitor.
func (s *Service) dispatchPerMonitor(ctx context.Context, kind model.EventKind, incident *model.Incident) {
	componentID := s.componentFor(ctx, incident)
	for _, ref := range incident.Monitors {
		event := &dispatch.Event{
			Kind:        kind,
			IncidentID:  incident.ID,
			ProjectID:   incident.ProjectID,
			MonitorID:   ref.MonitorID,
			ComponentID: componentID,
			Title:       incident.Title,
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to dispatch incident event",
				zap.String("incident_id", incident.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}

func (s *Service) componentFor(ctx context.Context, incident *model.Incident) string {
	if len(incident.Monitors) == 0 {
		return ""
	}
	monitor, err := s.catalog.Monitor(ctx, incident.Monitors[0].MonitorID)
	if err != nil {
		s.logger.Warn("Failed to resolve component for notification",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
		return ""
	}
	return monitor.ComponentID
}

func (s *Service) appendTimeline(ctx context.Context, incidentID string, kind model.EventKind, actor, probeID, monitorID string) {
	event := &model.TimelineEvent{
		IncidentID: incidentID,
		Kind:       kind,
		Actor:      actor,
		ProbeID:    probeID,
		MonitorID:  monitorID,
		CreatedAt:  s.now(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.Error("Failed to append timeline event",
			zap.String("incident_id", incidentID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *Service) publishRealtime(kind model.EventKind, incident *model.Incident) {
	if err := s.realtime.PublishIncident(kind, incident); err != nil {
		s.logger.Warn("Failed to publish realtime update",
			zap.String("incident_id", incident.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
