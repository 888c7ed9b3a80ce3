package timeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

// Storage records every incident transition for audit. Breach history is
// recoverable from here when a write to the incident record fails.
type Storage interface {
	// Append stores a timeline event
	Append(ctx context.Context, event *model.TimelineEvent) error

	// List retrieves all events for an incident, oldest first
	List(ctx context.Context, incidentID string) ([]*model.TimelineEvent, error)

	// DeleteByIncident removes all events for an incident
	DeleteByIncident(ctx context.Context, incidentID string) error

	// DeleteBefore removes events older than the cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) error
}

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteStorage creates a new SQLite-backed timeline store
func NewSQLiteStorage(logger *zap.Logger, db *sql.DB) (*SQLiteStorage, error) {
	s := &SQLiteStorage{
		logger: logger,
		db:     db,
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS incident_timeline (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT,
			probe_id TEXT,
			monitor_id TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_timeline_incident ON incident_timeline(incident_id);
		CREATE INDEX IF NOT EXISTS idx_timeline_created ON incident_timeline(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize timeline table: %w", err)
	}
	return nil
}

// Append implements Storage.Append
func (s *SQLiteStorage) Append(ctx context.Context, event *model.TimelineEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_timeline (id, incident_id, kind, actor, probe_id, monitor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.IncidentID, event.Kind, event.Actor,
		event.ProbeID, event.MonitorID, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append timeline event: %w", err)
	}
	return nil
}

// List implements Storage.List
func (s *SQLiteStorage) List(ctx context.Context, incidentID string) ([]*model.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, kind, actor, probe_id, monitor_id, created_at
		FROM incident_timeline WHERE incident_id = ? ORDER BY created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline events: %w", err)
	}
	defer rows.Close()

	var events []*model.TimelineEvent
	for rows.Next() {
		var (
			event     model.TimelineEvent
			actor     sql.NullString
			probeID   sql.NullString
			monitorID sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.IncidentID, &event.Kind,
			&actor, &probeID, &monitorID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		event.Actor = actor.String
		event.ProbeID = probeID.String
		event.MonitorID = monitorID.String
		events = append(events, &event)
	}
	return events, rows.Err()
}

// DeleteByIncident implements Storage.DeleteByIncident
func (s *SQLiteStorage) DeleteByIncident(ctx context.Context, incidentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM incident_timeline WHERE incident_id = ?`, incidentID)
	if err != nil {
		return fmt.Errorf("failed to delete timeline events: %w", err)
	}
	return nil
}

// DeleteBefore implements Storage.DeleteBefore
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM incident_timeline WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune timeline events: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		s.logger.Info("Pruned timeline events", zap.Int64("count", rows))
	}
	return nil
}
