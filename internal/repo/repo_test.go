package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaworkbench/internal/db"
	"qaworkbench/internal/events"
	"qaworkbench/internal/migrate"
	"qaworkbench/internal/registry"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	applied, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	applied, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	require.Zero(t, applied)
	return Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.GetSetting(ctx, "identity/validator")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.SetSetting(ctx, nil, "identity/validator", "alice"))
	require.NoError(t, r.SetSetting(ctx, nil, "identity/validator", "bob"))
	v, err := r.GetSetting(ctx, "identity/validator")
	require.NoError(t, err)
	assert.Equal(t, "bob", v)

	require.NoError(t, r.SetSetting(ctx, nil, "checklist_servers/a", "{}"))
	keys, err := r.SettingKeys(ctx, "checklist_servers/")
	require.NoError(t, err)
	assert.Equal(t, []string{"checklist_servers/a"}, keys)

	require.NoError(t, r.DeleteSetting(ctx, nil, "identity/validator"))
	_, err = r.GetSetting(ctx, "identity/validator")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsStoreBacksRegistry(t *testing.T) {
	ctx := context.Background()
	reg := registry.Registry{Store: SettingsStore{Repo: newTestRepo(t)}}

	s, err := reg.Add(ctx, "Team", "https://example.org/checklists.json")
	require.NoError(t, err)
	_, err = reg.EnsureDefaults(ctx)
	require.NoError(t, err)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, reg.Remove(ctx, s.Identifier))
	list, err = reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLatestEvents(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	w := events.Writer{DB: r.DB, Now: r.Now}

	require.NoError(t, w.Append(ctx, nil, events.ServerAdded, "server", "s1", "alice", events.EventPayload{"name": "Team"}))
	require.NoError(t, w.Append(ctx, nil, events.ChecklistInstalled, "checklist", "c1", "alice", nil))
	require.NoError(t, w.Append(ctx, nil, events.ReportGenerated, "checklist", "c1", "bob", events.EventPayload{"valid": true}))

	all, err := r.LatestEvents(ctx, EventFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, events.ReportGenerated, all[0].Type)
	assert.Equal(t, `{"valid":true}`, all[0].Payload)
	assert.Equal(t, "2024-01-01T00:00:00Z", all[0].TS)

	filtered, err := r.LatestEvents(ctx, EventFilters{EntityKind: "checklist", Limit: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "bob", filtered[0].ActorID)

	older, err := r.LatestEvents(ctx, EventFilters{Cursor: all[0].ID})
	require.NoError(t, err)
	assert.Len(t, older, 2)
}
