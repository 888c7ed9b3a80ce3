package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
)

func newTestCatalog(t *testing.T) *SQLiteCatalogStore {
	t.Helper()

	catalog, err := NewSQLiteCatalogStore(zap.NewNop(), newTestDB(t))
	require.NoError(t, err)
	return catalog
}

func TestCatalogStore_MonitorLookup(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	monitor := &model.Monitor{
		ID:          "monitor-1",
		ProjectID:   "project-1",
		ComponentID: "component-1",
		Name:        "API",
		Type:        "http",
		Status:      model.MonitorStatusOnline,
	}
	require.NoError(t, catalog.PutMonitor(ctx, monitor))

	stored, err := catalog.Monitor(ctx, "monitor-1")
	require.NoError(t, err)
	assert.Equal(t, "API", stored.Name)
	assert.Equal(t, "component-1", stored.ComponentID)

	_, err = catalog.Monitor(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = catalog.MonitorsByID(ctx, []string{"monitor-1", "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogStore_SetMonitorStatus(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.PutMonitor(ctx, &model.Monitor{
		ID:        "monitor-1",
		ProjectID: "project-1",
		Name:      "API",
		Type:      "http",
		Status:    model.MonitorStatusOffline,
	}))

	require.NoError(t, catalog.SetMonitorStatus(ctx, "monitor-1", model.MonitorStatusRecovered))
	stored, err := catalog.Monitor(ctx, "monitor-1")
	require.NoError(t, err)
	assert.Equal(t, model.MonitorStatusRecovered, stored.Status)

	err = catalog.SetMonitorStatus(ctx, "missing", model.MonitorStatusRecovered)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogStore_PolicyLookups(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.PutPolicy(ctx, &model.CommunicationSlaPolicy{
		ID:        "policy-default",
		ProjectID: "project-1",
		Name:      "Default",
		Duration:  10,
		AlertTime: 2,
		IsDefault: true,
	}))
	require.NoError(t, catalog.PutPolicy(ctx, &model.CommunicationSlaPolicy{
		ID:        "policy-override",
		ProjectID: "project-1",
		Name:      "Strict",
		Duration:  5,
		AlertTime: 1,
	}))
	require.NoError(t, catalog.PutMonitor(ctx, &model.Monitor{
		ID:          "monitor-override",
		ProjectID:   "project-1",
		Name:        "DB",
		Type:        "database",
		Status:      model.MonitorStatusOnline,
		SlaPolicyID: "policy-override",
	}))
	require.NoError(t, catalog.PutMonitor(ctx, &model.Monitor{
		ID:        "monitor-plain",
		ProjectID: "project-1",
		Name:      "API",
		Type:      "http",
		Status:    model.MonitorStatusOnline,
	}))

	override, err := catalog.MonitorPolicy(ctx, "monitor-override")
	require.NoError(t, err)
	assert.Equal(t, "policy-override", override.ID)

	_, err = catalog.MonitorPolicy(ctx, "monitor-plain")
	assert.ErrorIs(t, err, ErrNotFound)

	def, err := catalog.DefaultPolicy(ctx, "project-1")
	require.NoError(t, err)
	assert.Equal(t, "policy-default", def.ID)

	_, err = catalog.DefaultPolicy(ctx, "project-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogStore_ProjectRoundTrip(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	project := &model.Project{
		ID:            "project-1",
		Name:          "Production",
		Members:       []string{"user-1", "user-2"},
		TitleTemplate: "{{.MonitorName}} is {{.IncidentType}}",
	}
	require.NoError(t, catalog.PutProject(ctx, project))

	stored, err := catalog.Project(ctx, "project-1")
	require.NoError(t, err)
	assert.Equal(t, project.Members, stored.Members)
	assert.Equal(t, project.TitleTemplate, stored.TitleTemplate)

	_, err = catalog.Project(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
