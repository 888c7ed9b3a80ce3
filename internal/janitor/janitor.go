package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/store"
	"github.com/uptimekit/incident-engine/internal/timeline"
)

// Config holds retention settings
type Config struct {
	// Schedule is the cron expression for retention runs
	Schedule string

	// DeletedIncidentRetention is how long soft-deleted incidents are kept
	// before they are hard-deleted
	DeletedIncidentRetention time.Duration

	// TimelineRetention is how long timeline events are kept
	TimelineRetention time.Duration
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// Janitor runs scheduled retention jobs: hard-deleting incidents that have
// been soft-deleted longer than the retention window and pruning old
// timeline events.
type Janitor struct {
	logger    *zap.Logger
	incidents store.IncidentStorage
	timeline  timeline.Storage
	config    Config
	cron      *cron.Cron
}

// New creates a new janitor
func New(logger *zap.Logger, incidents store.IncidentStorage, timelineStore timeline.Storage, config Config) *Janitor {
	if config.Schedule == "" {
		config.Schedule = "@daily"
	}
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	return &Janitor{
		logger:    logger,
		incidents: incidents,
		timeline:  timelineStore,
		config:    config,
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start schedules the retention jobs
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.config.Schedule, func() {
		j.Run(ctx)
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("Janitor started", zap.String("schedule", j.config.Schedule))
	return nil
}

// Stop halts scheduling and waits for a running job to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("Janitor stopped")
}

// Run executes one retention pass
func (j *Janitor) Run(ctx context.Context) {
	if j.config.DeletedIncidentRetention > 0 {
		cutoff := time.Now().Add(-j.config.DeletedIncidentRetention)
		incidents, err := j.incidents.ListDeletedBefore(ctx, cutoff)
		if err != nil {
			j.logger.Error("Failed to list deleted incidents", zap.Error(err))
		} else {
			for _, incident := range incidents {
				if err := j.incidents.HardDelete(ctx, incident.ID); err != nil {
					j.logger.Error("Failed to hard delete incident",
						zap.String("incident_id", incident.ID),
						zap.Error(err))
					continue
				}
				if err := j.timeline.DeleteByIncident(ctx, incident.ID); err != nil {
					j.logger.Error("Failed to delete incident timeline",
						zap.String("incident_id", incident.ID),
						zap.Error(err))
				}
			}
			if len(incidents) > 0 {
				j.logger.Info("Hard-deleted old incidents", zap.Int("count", len(incidents)))
			}
		}
	}

	if j.config.TimelineRetention > 0 {
		cutoff := time.Now().Add(-j.config.TimelineRetention)
		if err := j.timeline.DeleteBefore(ctx, cutoff); err != nil {
			j.logger.Error("Failed to prune timeline events", zap.Error(err))
		}
	}
}
