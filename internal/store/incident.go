package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

// IncidentStorage defines the persistence boundary for incident records.
// All operations are atomic per-record read-modify-writes; the engine does
// not require cross-record transactions.
type IncidentStorage interface {
	// Create stores a new incident record
	Create(ctx context.Context, incident *model.Incident) error

	// Get retrieves a live incident by id. Soft-deleted incidents are
	// excluded and reported as ErrNotFound.
	Get(ctx context.Context, id string) (*model.Incident, error)

	// GetAny retrieves an incident regardless of its deleted flag
	GetAny(ctx context.Context, id string) (*model.Incident, error)

	// Update overwrites an existing incident record
	Update(ctx context.Context, incident *model.Incident) error

	// CountByProject counts incidents in a project, split by deleted flag
	CountByProject(ctx context.Context, projectID string, deleted bool) (int, error)

	// ListByMonitor lists live incidents referencing the given monitor
	ListByMonitor(ctx context.Context, monitorID string) ([]*model.Incident, error)

	// ListUnresolved lists live incidents not yet resolved in a project
	ListUnresolved(ctx context.Context, projectID string) ([]*model.Incident, error)

	// ListDeletedBefore lists incidents soft-deleted before the cutoff
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]*model.Incident, error)

	// HardDelete permanently removes an incident record
	HardDelete(ctx context.Context, id string) error
}

// SQLiteIncidentStore implements IncidentStorage using SQLite
type SQLiteIncidentStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteIncidentStore creates a new SQLite-backed incident store
func NewSQLiteIncidentStore(logger *zap.Logger, db *sql.DB) (*SQLiteIncidentStore, error) {
	s := &SQLiteIncidentStore{
		logger: logger,
		db:     db,
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteIncidentStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			id_number INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			incident_type TEXT,
			manually_created INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			monitors TEXT NOT NULL,
			not_closed_by TEXT,
			breached_slas TEXT,
			probes TEXT,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			acknowledged_at DATETIME,
			acknowledged_by TEXT,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at DATETIME,
			resolved_by TEXT,
			deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME,
			deleted_by TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_incidents_project ON incidents(project_id, deleted);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_number ON incidents(project_id, id_number);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize incidents table: %w", err)
	}
	return nil
}

const incidentColumns = `id, project_id, id_number, title, description, incident_type,
	manually_created, created_by, monitors, not_closed_by, breached_slas, probes,
	acknowledged, acknowledged_at, acknowledged_by,
	resolved, resolved_at, resolved_by,
	deleted, deleted_at, deleted_by, created_at`

// Create implements IncidentStorage.Create
func (s *SQLiteIncidentStore) Create(ctx context.Context, incident *model.Incident) error {
	monitors, notClosedBy, breaches, probes, err := marshalIncidentLists(incident)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.ID, incident.ProjectID, incident.IDNumber, incident.Title,
		incident.Description, incident.IncidentType, incident.ManuallyCreated,
		incident.CreatedByID, monitors, notClosedBy, breaches, probes,
		incident.Acknowledged, incident.AcknowledgedAt, incident.AcknowledgedBy,
		incident.Resolved, incident.ResolvedAt, incident.ResolvedBy,
		incident.Deleted, incident.DeletedAt, incident.DeletedBy, incident.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store incident: %w", err)
	}
	return nil
}

// Get implements IncidentStorage.Get
func (s *SQLiteIncidentStore) Get(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ? AND deleted = 0`, id)
	return scanIncident(row)
}

// GetAny implements IncidentStorage.GetAny
func (s *SQLiteIncidentStore) GetAny(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	return scanIncident(row)
}

// Update implements IncidentStorage.Update
func (s *SQLiteIncidentStore) Update(ctx context.Context, incident *model.Incident) error {
	monitors, notClosedBy, breaches, probes, err := marshalIncidentLists(incident)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET
			title = ?, description = ?, monitors = ?, not_closed_by = ?,
			breached_slas = ?, probes = ?,
			acknowledged = ?, acknowledged_at = ?, acknowledged_by = ?,
			resolved = ?, resolved_at = ?, resolved_by = ?,
			deleted = ?, deleted_at = ?, deleted_by = ?
		WHERE id = ?`,
		incident.Title, incident.Description, monitors, notClosedBy,
		breaches, probes,
		incident.Acknowledged, incident.AcknowledgedAt, incident.AcknowledgedBy,
		incident.Resolved, incident.ResolvedAt, incident.ResolvedBy,
		incident.Deleted, incident.DeletedAt, incident.DeletedBy,
		incident.ID)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByProject implements IncidentStorage.CountByProject
func (s *SQLiteIncidentStore) CountByProject(ctx context.Context, projectID string, deleted bool) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE project_id = ? AND deleted = ?`,
		projectID, deleted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return count, nil
}

// ListByMonitor implements IncidentStorage.ListByMonitor. Monitor refs are
// stored as a JSON array, so matching happens in memory after a project-wide
// scan of live incidents.
func (s *SQLiteIncidentStore) ListByMonitor(ctx context.Context, monitorID string) ([]*model.Incident, error) {
	incidents, err := s.list(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE deleted = 0`)
	if err != nil {
		return nil, err
	}

	matched := make([]*model.Incident, 0, len(incidents))
	for _, incident := range incidents {
		if incident.HasMonitor(monitorID) {
			matched = append(matched, incident)
		}
	}
	return matched, nil
}

// ListUnresolved implements IncidentStorage.ListUnresolved
func (s *SQLiteIncidentStore) ListUnresolved(ctx context.Context, projectID string) ([]*model.Incident, error) {
	return s.list(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE project_id = ? AND deleted = 0 AND resolved = 0
		 ORDER BY created_at DESC`, projectID)
}

// ListDeletedBefore implements IncidentStorage.ListDeletedBefore
func (s *SQLiteIncidentStore) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]*model.Incident, error) {
	return s.list(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE deleted = 1 AND deleted_at < ?`, cutoff)
}

// HardDelete implements IncidentStorage.HardDelete
func (s *SQLiteIncidentStore) HardDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to hard delete incident: %w", err)
	}
	return nil
}

func (s *SQLiteIncidentStore) list(ctx context.Context, query string, args ...interface{}) ([]*model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*model.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var (
		incident    model.Incident
		description sql.NullString
		createdBy   sql.NullString
		monitors    string
		notClosedBy sql.NullString
		breaches    sql.NullString
		probes      sql.NullString
		ackAt       sql.NullTime
		ackBy       sql.NullString
		resolvedAt  sql.NullTime
		resolvedBy  sql.NullString
		deletedAt   sql.NullTime
		deletedBy   sql.NullString
	)

	err := row.Scan(
		&incident.ID, &incident.ProjectID, &incident.IDNumber, &incident.Title,
		&description, &incident.IncidentType, &incident.ManuallyCreated,
		&createdBy, &monitors, &notClosedBy, &breaches, &probes,
		&incident.Acknowledged, &ackAt, &ackBy,
		&incident.Resolved, &resolvedAt, &resolvedBy,
		&incident.Deleted, &deletedAt, &deletedBy, &incident.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}

	incident.Description = description.String
	incident.CreatedByID = createdBy.String
	incident.AcknowledgedBy = ackBy.String
	incident.ResolvedBy = resolvedBy.String
	incident.DeletedBy = deletedBy.String
	if ackAt.Valid {
		incident.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		incident.ResolvedAt = &resolvedAt.Time
	}
	if deletedAt.Valid {
		incident.DeletedAt = &deletedAt.Time
	}

	if err := json.Unmarshal([]byte(monitors), &incident.Monitors); err != nil {
		return nil, fmt.Errorf("failed to decode monitors: %w", err)
	}
	if notClosedBy.Valid && notClosedBy.String != "" {
		if err := json.Unmarshal([]byte(notClosedBy.String), &incident.NotClosedBy); err != nil {
			return nil, fmt.Errorf("failed to decode not_closed_by: %w", err)
		}
	}
	if breaches.Valid && breaches.String != "" {
		if err := json.Unmarshal([]byte(breaches.String), &incident.BreachedCommunicationSlas); err != nil {
			return nil, fmt.Errorf("failed to decode breached_slas: %w", err)
		}
	}
	if probes.Valid && probes.String != "" {
		if err := json.Unmarshal([]byte(probes.String), &incident.Probes); err != nil {
			return nil, fmt.Errorf("failed to decode probes: %w", err)
		}
	}

	return &incident, nil
}

func marshalIncidentLists(incident *model.Incident) (monitors, notClosedBy, breaches, probes string, err error) {
	m, err := json.Marshal(incident.Monitors)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode monitors: %w", err)
	}
	n, err := json.Marshal(incident.NotClosedBy)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode not_closed_by: %w", err)
	}
	b, err := json.Marshal(incident.BreachedCommunicationSlas)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode breached_slas: %w", err)
	}
	p, err := json.Marshal(incident.Probes)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode probes: %w", err)
	}
	return string(m), string(n), string(b), string(p), nil
}
