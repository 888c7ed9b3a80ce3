package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

// CatalogStorage provides read-mostly lookups over projects, monitors and
// communication SLA policies. Lookups distinguish "not found" (ErrNotFound)
// from "soft-deleted" (record returned with Deleted set).
type CatalogStorage interface {
	// Monitor retrieves a monitor by id
	Monitor(ctx context.Context, id string) (*model.Monitor, error)

	// MonitorsByID retrieves the given monitors, erroring on any missing id
	MonitorsByID(ctx context.Context, ids []string) ([]*model.Monitor, error)

	// Project retrieves a project by id
	Project(ctx context.Context, id string) (*model.Project, error)

	// SetMonitorStatus updates a monitor's operational status
	SetMonitorStatus(ctx context.Context, monitorID string, status model.MonitorStatus) error

	// MonitorPolicy returns the monitor's own SLA policy override.
	// ErrNotFound when the monitor carries no override.
	MonitorPolicy(ctx context.Context, monitorID string) (*model.CommunicationSlaPolicy, error)

	// DefaultPolicy returns the project's default SLA policy.
	// ErrNotFound when the project has none.
	DefaultPolicy(ctx context.Context, projectID string) (*model.CommunicationSlaPolicy, error)

	// PutProject, PutMonitor and PutPolicy seed catalog records. The engine
	// itself only reads the catalog; these exist for provisioning and tests.
	PutProject(ctx context.Context, project *model.Project) error
	PutMonitor(ctx context.Context, monitor *model.Monitor) error
	PutPolicy(ctx context.Context, policy *model.CommunicationSlaPolicy) error
}

// SQLiteCatalogStore implements CatalogStorage using SQLite
type SQLiteCatalogStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteCatalogStore creates a new SQLite-backed catalog store
func NewSQLiteCatalogStore(logger *zap.Logger, db *sql.DB) (*SQLiteCatalogStore, error) {
	s := &SQLiteCatalogStore{
		logger: logger,
		db:     db,
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCatalogStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			members TEXT,
			title_template TEXT,
			description_template TEXT
		);
		CREATE TABLE IF NOT EXISTS monitors (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			component_id TEXT,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			disabled INTEGER NOT NULL DEFAULT 0,
			sla_policy_id TEXT
		);
		CREATE TABLE IF NOT EXISTS sla_policies (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			duration_minutes REAL NOT NULL,
			alert_minutes REAL NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_monitors_project ON monitors(project_id);
		CREATE INDEX IF NOT EXISTS idx_policies_project ON sla_policies(project_id, is_default);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog tables: %w", err)
	}
	return nil
}

// Monitor implements CatalogStorage.Monitor
func (s *SQLiteCatalogStore) Monitor(ctx context.Context, id string) (*model.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, component_id, name, type, status, disabled, sla_policy_id
		FROM monitors WHERE id = ?`, id)
	return scanMonitor(row)
}

// MonitorsByID implements CatalogStorage.MonitorsByID
func (s *SQLiteCatalogStore) MonitorsByID(ctx context.Context, ids []string) ([]*model.Monitor, error) {
	monitors := make([]*model.Monitor, 0, len(ids))
	for _, id := range ids {
		monitor, err := s.Monitor(ctx, id)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, monitor)
	}
	return monitors, nil
}

// Project implements CatalogStorage.Project
func (s *SQLiteCatalogStore) Project(ctx context.Context, id string) (*model.Project, error) {
	var (
		project  model.Project
		members  sql.NullString
		titleTpl sql.NullString
		descTpl  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, members, title_template, description_template
		FROM projects WHERE id = ?`, id).
		Scan(&project.ID, &project.Name, &members, &titleTpl, &descTpl)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if members.Valid && members.String != "" {
		if err := json.Unmarshal([]byte(members.String), &project.Members); err != nil {
			return nil, fmt.Errorf("failed to decode project members: %w", err)
		}
	}
	project.TitleTemplate = titleTpl.String
	project.DescriptionTemplate = descTpl.String
	return &project, nil
}

// SetMonitorStatus implements CatalogStorage.SetMonitorStatus
func (s *SQLiteCatalogStore) SetMonitorStatus(ctx context.Context, monitorID string, status model.MonitorStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE monitors SET status = ? WHERE id = ?`, status, monitorID)
	if err != nil {
		return fmt.Errorf("failed to update monitor status: %w", err)
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

// MonitorPolicy implements CatalogStorage.MonitorPolicy
func (s *SQLiteCatalogStore) MonitorPolicy(ctx context.Context, monitorID string) (*model.CommunicationSlaPolicy, error) {
	monitor, err := s.Monitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	if monitor.SlaPolicyID == "" {
		return nil, ErrNotFound
	}
	return s.policy(ctx, `SELECT id, project_id, name, duration_minutes, alert_minutes, is_default, deleted
		FROM sla_policies WHERE id = ?`, monitor.SlaPolicyID)
}

// DefaultPolicy implements CatalogStorage.DefaultPolicy
func (s *SQLiteCatalogStore) DefaultPolicy(ctx context.Context, projectID string) (*model.CommunicationSlaPolicy, error) {
	return s.policy(ctx, `SELECT id, project_id, name, duration_minutes, alert_minutes, is_default, deleted
		FROM sla_policies WHERE project_id = ? AND is_default = 1`, projectID)
}

func (s *SQLiteCatalogStore) policy(ctx context.Context, query string, args ...interface{}) (*model.CommunicationSlaPolicy, error) {
	var policy model.CommunicationSlaPolicy
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&policy.ID, &policy.ProjectID, &policy.Name,
		&policy.Duration, &policy.AlertTime, &policy.IsDefault, &policy.Deleted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sla policy: %w", err)
	}
	return &policy, nil
}

// PutProject implements CatalogStorage.PutProject
func (s *SQLiteCatalogStore) PutProject(ctx context.Context, project *model.Project) error {
	members, err := json.Marshal(project.Members)
	if err != nil {
		return fmt.Errorf("failed to encode project members: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO projects (id, name, members, title_template, description_template)
		VALUES (?, ?, ?, ?, ?)`,
		project.ID, project.Name, string(members),
		project.TitleTemplate, project.DescriptionTemplate)
	if err != nil {
		return fmt.Errorf("failed to store project: %w", err)
	}
	return nil
}

// PutMonitor implements CatalogStorage.PutMonitor
func (s *SQLiteCatalogStore) PutMonitor(ctx context.Context, monitor *model.Monitor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO monitors (id, project_id, component_id, name, type, status, disabled, sla_policy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		monitor.ID, monitor.ProjectID, monitor.ComponentID, monitor.Name,
		monitor.Type, monitor.Status, monitor.Disabled, monitor.SlaPolicyID)
	if err != nil {
		return fmt.Errorf("failed to store monitor: %w", err)
	}
	return nil
}

// PutPolicy implements CatalogStorage.PutPolicy
func (s *SQLiteCatalogStore) PutPolicy(ctx context.Context, policy *model.CommunicationSlaPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sla_policies (id, project_id, name, duration_minutes, alert_minutes, is_default, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		policy.ID, policy.ProjectID, policy.Name,
		policy.Duration, policy.AlertTime, policy.IsDefault, policy.Deleted)
	if err != nil {
		return fmt.Errorf("failed to store sla policy: %w", err)
	}
	return nil
}

func scanMonitor(row rowScanner) (*model.Monitor, error) {
	var (
		monitor     model.Monitor
		componentID sql.NullString
		slaPolicyID sql.NullString
	)
	err := row.Scan(&monitor.ID, &monitor.ProjectID, &componentID, &monitor.Name,
		&monitor.Type, &monitor.Status, &monitor.Disabled, &slaPolicyID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitor: %w", err)
	}
	monitor.ComponentID = componentID.String
	monitor.SlaPolicyID = slaPolicyID.String
	return &monitor, nil
}
