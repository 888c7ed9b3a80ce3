package sla

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

const defaultTickInterval = time.Second

// BreachRecorder records an SLA breach on the owning incident. Implemented
// by the incident state machine, which deduplicates by monitor id.
type BreachRecorder interface {
	RecordBreach(ctx context.Context, incidentID, monitorID string) error
}

// CountdownPublisher pushes live countdown updates to subscribers.
// Best-effort; errors are logged and the tick carries on.
type CountdownPublisher interface {
	PublishCountdown(incidentID, monitorID string, secondsLeft int) error
}

// Notifier emits escalation notifications across the dispatch boundary.
// Implementations must not block the caller; delivery happens out of band.
type Notifier interface {
	SlaWarning(ctx context.Context, incidentID, projectID, monitorID string, secondsLeft int) error
	SlaBreach(ctx context.Context, incidentID, projectID, monitorID string) error
}

type timerKey struct {
	incidentID string
	monitorID  string
}

// slaTimer is the runtime-only countdown for one (incident, monitor) pair.
// It is never persisted; process restart loses all pending timers.
type slaTimer struct {
	key       timerKey
	projectID string
	policy    *model.CommunicationSlaPolicy
	cancel    context.CancelFunc

	mu        sync.Mutex
	countDown int // seconds remaining
	alertTime int // seconds remaining at which the warning fires
	stopped   bool
}

// Registry owns all SLA timers, keyed by (incident, monitor). At most one
// timer exists per key; starting over an existing key cancels the old timer
// first. Removal is synchronous: once StopTracking returns, no breach can
// be recorded for that pair.
type Registry struct {
	logger    *zap.Logger
	resolver  *Resolver
	breaches  BreachRecorder
	countdown CountdownPublisher
	notifier  Notifier
	interval  time.Duration

	mu     sync.Mutex
	timers map[timerKey]*slaTimer
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates a new timer registry. A zero interval selects the
// production one-second tick; tests shrink it.
func NewRegistry(logger *zap.Logger, resolver *Resolver, breaches BreachRecorder,
	countdown CountdownPublisher, notifier Notifier, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:    logger,
		resolver:  resolver,
		breaches:  breaches,
		countdown: countdown,
		notifier:  notifier,
		interval:  interval,
		timers:    make(map[timerKey]*slaTimer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartTracking arms one countdown per monitor. Monitors without an
// applicable policy are skipped. Failures here are secondary effects of a
// state transition and are logged, never propagated.
func (r *Registry) StartTracking(ctx context.Context, incidentID, projectID string, monitorIDs []string) {
	for _, monitorID := range monitorIDs {
		policy, err := r.resolver.Resolve(ctx, projectID, monitorID)
		if err == ErrPolicyNotFound {
			continue
		}
		if err != nil {
			r.logger.Error("Failed to resolve sla policy",
				zap.String("incident_id", incidentID),
				zap.String("monitor_id", monitorID),
				zap.Error(err))
			continue
		}
		r.startTimer(incidentID, projectID, monitorID, policy)
	}
}

func (r *Registry) startTimer(incidentID, projectID, monitorID string, policy *model.CommunicationSlaPolicy) {
	key := timerKey{incidentID: incidentID, monitorID: monitorID}
	timerCtx, timerCancel := context.WithCancel(r.ctx)
	timer := &slaTimer{
		key:       key,
		projectID: projectID,
		policy:    policy,
		cancel:    timerCancel,
		countDown: policy.CountdownSeconds(),
		alertTime: policy.AlertSeconds(),
	}

	r.mu.Lock()
	if existing, ok := r.timers[key]; ok {
		existing.markStopped()
		existing.cancel()
	}
	r.timers[key] = timer
	r.mu.Unlock()

	go r.run(timerCtx, timer)

	r.logger.Info("Started sla tracking",
		zap.String("incident_id", incidentID),
		zap.String("monitor_id", monitorID),
		zap.String("policy_id", policy.ID),
		zap.Int("countdown_seconds", timer.countDown))
}

// StopTracking cancels and removes the timer for the pair. Safe to call
// when no timer exists.
func (r *Registry) StopTracking(incidentID, monitorID string) {
	key := timerKey{incidentID: incidentID, monitorID: monitorID}
	r.mu.Lock()
	timer, ok := r.timers[key]
	if ok {
		delete(r.timers, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	timer.markStopped()
	timer.cancel()
	r.logger.Info("Stopped sla tracking",
		zap.String("incident_id", incidentID),
		zap.String("monitor_id", monitorID))
}

// StopAll cancels every timer belonging to the incident
func (r *Registry) StopAll(incidentID string) {
	r.mu.Lock()
	var stopped []*slaTimer
	for key, timer := range r.timers {
		if key.incidentID == incidentID {
			delete(r.timers, key)
			stopped = append(stopped, timer)
		}
	}
	r.mu.Unlock()

	for _, timer := range stopped {
		timer.markStopped()
		timer.cancel()
	}
}

// RefreshTracking restarts the pair's countdown from a freshly resolved
// policy. A pair that is not currently tracked stays untracked, matching
// the acknowledge-refresh semantics: refresh re-arms, it never arms.
func (r *Registry) RefreshTracking(ctx context.Context, incidentID, monitorID string) {
	key := timerKey{incidentID: incidentID, monitorID: monitorID}
	r.mu.Lock()
	timer, ok := r.timers[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	projectID := timer.projectID
	r.StopTracking(incidentID, monitorID)
	r.StartTracking(ctx, incidentID, projectID, []string{monitorID})
}

// IsTracking reports whether a live timer exists for the pair
func (r *Registry) IsTracking(incidentID, monitorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[timerKey{incidentID: incidentID, monitorID: monitorID}]
	return ok
}

// ActiveTimers returns the number of live timers
func (r *Registry) ActiveTimers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every timer and shuts the registry down
func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for key, timer := range r.timers {
		timer.markStopped()
		delete(r.timers, key)
	}
	r.mu.Unlock()
	r.logger.Info("Sla timer registry stopped")
}

func (r *Registry) run(ctx context.Context, timer *slaTimer) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := r.tick(ctx, timer); done {
				return
			}
		}
	}
}

// tick advances the countdown by one second. It publishes the remaining
// time, fires the warning exactly once when the countdown equals the
// policy's alert threshold, and on zero records the breach and removes the
// timer. A stopped timer performs no side effects, which makes redundant
// invocations harmless.
func (r *Registry) tick(ctx context.Context, timer *slaTimer) bool {
	timer.mu.Lock()
	if timer.stopped {
		timer.mu.Unlock()
		return true
	}
	timer.countDown--
	remaining := timer.countDown
	timer.mu.Unlock()

	if err := r.countdown.PublishCountdown(timer.key.incidentID, timer.key.monitorID, remaining); err != nil {
		r.logger.Warn("Failed to publish sla countdown",
			zap.String("incident_id", timer.key.incidentID),
			zap.String("monitor_id", timer.key.monitorID),
			zap.Error(err))
	}

	// The countdown decrements monotonically, so equality holds at most
	// once per timer lifetime.
	if remaining == timer.alertTime {
		if err := r.notifier.SlaWarning(ctx, timer.key.incidentID, timer.projectID,
			timer.key.monitorID, remaining); err != nil {
			r.logger.Error("Failed to send sla warning",
				zap.String("incident_id", timer.key.incidentID),
				zap.String("monitor_id", timer.key.monitorID),
				zap.Error(err))
		}
	}

	if remaining > 0 {
		return false
	}

	// Only the goroutine that removes the timer from the registry records
	// the breach; a concurrent StopTracking wins or loses atomically.
	if !r.remove(timer) {
		return true
	}

	if err := r.breaches.RecordBreach(ctx, timer.key.incidentID, timer.key.monitorID); err != nil {
		// The timer still deregisters. The breach stays discoverable via
		// the timeline log written by the recorder.
		r.logger.Error("Failed to record sla breach",
			zap.String("incident_id", timer.key.incidentID),
			zap.String("monitor_id", timer.key.monitorID),
			zap.Error(err))
	}

	if err := r.notifier.SlaBreach(ctx, timer.key.incidentID, timer.projectID, timer.key.monitorID); err != nil {
		r.logger.Error("Failed to send sla breach notification",
			zap.String("incident_id", timer.key.incidentID),
			zap.String("monitor_id", timer.key.monitorID),
			zap.Error(err))
	}

	r.logger.Info("Communication sla breached",
		zap.String("incident_id", timer.key.incidentID),
		zap.String("monitor_id", timer.key.monitorID))
	return true
}

// remove takes the timer out of the registry if it is still the registered
// one. Returns false when another goroutine already removed or replaced it.
func (r *Registry) remove(timer *slaTimer) bool {
	r.mu.Lock()
	current, ok := r.timers[timer.key]
	if !ok || current != timer {
		r.mu.Unlock()
		return false
	}
	delete(r.timers, timer.key)
	r.mu.Unlock()

	timer.markStopped()
	timer.cancel()
	return true
}

func (t *slaTimer) markStopped() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
