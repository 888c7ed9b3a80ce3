package timeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uptimekit/incident-engine/internal/model"
	"github.com/uptimekit/incident-engine/internal/store"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewSQLiteStorage(zap.NewNop(), db)
	require.NoError(t, err)
	return storage
}

func TestStorage_AppendAndList(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	kinds := []model.EventKind{model.EventCreated, model.EventAcknowledged, model.EventResolved}
	for i, kind := range kinds {
		require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
			IncidentID: "incident-1",
			Kind:       kind,
			Actor:      "user-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
		IncidentID: "incident-2",
		Kind:       model.EventCreated,
		CreatedAt:  base,
	}))

	events, err := storage.List(ctx, "incident-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, kind := range kinds {
		assert.Equal(t, kind, events[i].Kind)
		assert.NotEmpty(t, events[i].ID)
	}
}

func TestStorage_AppendFillsDefaults(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	event := &model.TimelineEvent{
		IncidentID: "incident-1",
		Kind:       model.EventSlaBreach,
		MonitorID:  "monitor-1",
	}
	require.NoError(t, storage.Append(ctx, event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())

	events, err := storage.List(ctx, "incident-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "monitor-1", events[0].MonitorID)
}

func TestStorage_DeleteByIncident(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
		IncidentID: "incident-1", Kind: model.EventCreated,
	}))
	require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
		IncidentID: "incident-2", Kind: model.EventCreated,
	}))

	require.NoError(t, storage.DeleteByIncident(ctx, "incident-1"))

	events, err := storage.List(ctx, "incident-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = storage.List(ctx, "incident-2")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStorage_DeleteBefore(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
		IncidentID: "incident-1", Kind: model.EventCreated,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, storage.Append(ctx, &model.TimelineEvent{
		IncidentID: "incident-1", Kind: model.EventResolved,
		CreatedAt: time.Now(),
	}))

	require.NoError(t, storage.DeleteBefore(ctx, time.Now().Add(-24*time.Hour)))

	events, err := storage.List(ctx, "incident-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventResolved, events[0].Kind)
}
